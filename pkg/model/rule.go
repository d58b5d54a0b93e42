package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RuleStatus automation rule lifecycle
type RuleStatus string

const (
	RuleStatusActive RuleStatus = "ACTIVE"
	RuleStatusPaused RuleStatus = "PAUSED"
	RuleStatusDraft  RuleStatus = "DRAFT"
)

// IsValid reports whether s is a known status
func (s RuleStatus) IsValid() bool {
	switch s {
	case RuleStatusActive, RuleStatusPaused, RuleStatusDraft:
		return true
	}
	return false
}

// TriggerType business event kinds a rule can react to
type TriggerType string

const (
	TriggerOrderCreated            TriggerType = "ORDER_CREATED"
	TriggerInventoryBelowThreshold TriggerType = "INVENTORY_BELOW_THRESHOLD"
	TriggerPriceBelowMinMargin     TriggerType = "PRICE_BELOW_MIN_MARGIN"
	TriggerNewNegativeReview       TriggerType = "NEW_NEGATIVE_REVIEW"
	TriggerChannelSyncFailed       TriggerType = "CHANNEL_SYNC_FAILED"
	TriggerDailySchedule           TriggerType = "DAILY_SCHEDULE"
	TriggerWeeklySchedule          TriggerType = "WEEKLY_SCHEDULE"
)

// TriggerTypes every supported trigger, in declaration order
var TriggerTypes = []TriggerType{
	TriggerOrderCreated,
	TriggerInventoryBelowThreshold,
	TriggerPriceBelowMinMargin,
	TriggerNewNegativeReview,
	TriggerChannelSyncFailed,
	TriggerDailySchedule,
	TriggerWeeklySchedule,
}

// IsValid reports whether t is a known trigger
func (t TriggerType) IsValid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsSchedule reports whether events of this type are synthesized by the scheduler
func (t TriggerType) IsSchedule() bool {
	return t == TriggerDailySchedule || t == TriggerWeeklySchedule
}

// Operator condition comparison operator
type Operator string

const (
	OpEQ       Operator = "EQ"
	OpNEQ      Operator = "NEQ"
	OpGT       Operator = "GT"
	OpGTE      Operator = "GTE"
	OpLT       Operator = "LT"
	OpLTE      Operator = "LTE"
	OpContains Operator = "CONTAINS"
)

// IsValid reports whether op is a known operator
func (op Operator) IsValid() bool {
	switch op {
	case OpEQ, OpNEQ, OpGT, OpGTE, OpLT, OpLTE, OpContains:
		return true
	}
	return false
}

// IsOrdering reports whether op needs an ordered comparison
func (op Operator) IsOrdering() bool {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE:
		return true
	}
	return false
}

// LiteralKind type of a condition literal
type LiteralKind string

const (
	LiteralNull   LiteralKind = "null"
	LiteralNumber LiteralKind = "number"
	LiteralString LiteralKind = "string"
	LiteralBool   LiteralKind = "bool"
	LiteralList   LiteralKind = "list"
)

// Literal typed condition value. The zero value is null.
type Literal struct {
	kind LiteralKind
	num  decimal.Decimal
	str  string
	b    bool
	list []string
}

func NumberLiteral(d decimal.Decimal) Literal { return Literal{kind: LiteralNumber, num: d} }
func IntLiteral(i int64) Literal              { return NumberLiteral(decimal.NewFromInt(i)) }
func StringLiteral(s string) Literal          { return Literal{kind: LiteralString, str: s} }
func BoolLiteral(b bool) Literal              { return Literal{kind: LiteralBool, b: b} }

func ListLiteral(items ...string) Literal {
	return Literal{kind: LiteralList, list: append([]string(nil), items...)}
}

// Kind literal type; null when unset
func (l Literal) Kind() LiteralKind {
	if l.kind == "" {
		return LiteralNull
	}
	return l.kind
}

func (l Literal) Number() decimal.Decimal { return l.num }
func (l Literal) Text() string            { return l.str }
func (l Literal) Bool() bool              { return l.b }
func (l Literal) List() []string          { return l.list }

func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind() {
	case LiteralNumber:
		return []byte(l.num.String()), nil
	case LiteralString:
		return json.Marshal(l.str)
	case LiteralBool:
		return json.Marshal(l.b)
	case LiteralList:
		if l.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.list)
	default:
		return []byte("null"), nil
	}
}

func (l *Literal) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode literal: %w", err)
	}

	switch val := v.(type) {
	case nil:
		*l = Literal{}
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return fmt.Errorf("decode number literal %q: %w", val, err)
		}
		*l = NumberLiteral(d)
	case string:
		*l = StringLiteral(val)
	case bool:
		*l = BoolLiteral(val)
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list literals may only contain strings, got %T", item)
			}
			items = append(items, s)
		}
		*l = ListLiteral(items...)
	default:
		return fmt.Errorf("unsupported literal type %T", v)
	}
	return nil
}

// SameSet reports whether two string lists hold the same members
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Condition single field comparison; conditions of a rule are AND-combined
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Literal  `json:"value"`
}

// AutomationRule trigger -> conditions -> actions
type AutomationRule struct {
	ID          string                         `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID       string                         `gorm:"type:varchar(64);not null;index:idx_rules_org_trigger" json:"org_id"`
	Name        string                         `gorm:"not null" json:"name"`
	Description string                         `gorm:"type:text" json:"description"`
	Status      RuleStatus                     `gorm:"type:varchar(16);not null;default:'DRAFT';index" json:"status"`
	TriggerType TriggerType                    `gorm:"type:varchar(40);not null;index:idx_rules_org_trigger" json:"trigger_type"`
	Conditions  datatypes.JSONSlice[Condition] `json:"conditions"`
	Actions     datatypes.JSONSlice[Action]    `json:"actions"`
	CreatedAt   time.Time                      `json:"created_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

// RuleFilter rule listing query; zero fields match everything
type RuleFilter struct {
	Status      RuleStatus
	TriggerType TriggerType
}

// Matches reports whether r passes the filter
func (f RuleFilter) Matches(r *AutomationRule) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.TriggerType != "" && r.TriggerType != f.TriggerType {
		return false
	}
	return true
}

func (r *AutomationRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
