package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// EventContext flattened view of an event handed to conditions and actions
type EventContext struct {
	Event  model.Event
	RuleID string
	Fields map[string]interface{}
}

// NewEventContext flattens the payload into dot separated keys, e.g. order.total
func NewEventContext(ev model.Event) *EventContext {
	fields := make(map[string]interface{}, len(ev.Payload)+2)
	flatten("", ev.Payload, fields)
	fields["org_id"] = ev.OrgID
	fields["event_type"] = string(ev.Type)
	return &EventContext{Event: ev, Fields: fields}
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// WithRule copy bound to a rule; Fields is shared read-only
func (c *EventContext) WithRule(ruleID string) *EventContext {
	cp := *c
	cp.RuleID = ruleID
	return &cp
}

// Lookup field value as text, "" when missing
func (c *EventContext) Lookup(field string) string {
	v, ok := c.Fields[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	}
	if d, ok := toDecimal(v); ok {
		return d.String()
	}
	return fmt.Sprint(v)
}

// EvaluateConditions AND of all conditions; an empty list always matches.
// Missing fields and type mismatches make a condition false.
func EvaluateConditions(conds []model.Condition, fields map[string]interface{}) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, fields) {
			return false
		}
	}
	return true
}

// EvaluateCondition single comparison
func EvaluateCondition(c model.Condition, fields map[string]interface{}) bool {
	actual, ok := fields[c.Field]
	if !ok || actual == nil {
		return false
	}

	lit := c.Value
	switch lit.Kind() {
	case model.LiteralBool:
		b, ok := actual.(bool)
		if !ok {
			return false
		}
		switch c.Operator {
		case model.OpEQ:
			return b == lit.Bool()
		case model.OpNEQ:
			return b != lit.Bool()
		}
		return false

	case model.LiteralNumber:
		if c.Operator == model.OpContains {
			return false
		}
		n, ok := toDecimal(actual)
		if !ok {
			return false
		}
		return compareOrdered(c.Operator, n.Cmp(lit.Number()))

	case model.LiteralString:
		kind, _ := declaredKind(fields, c.Field)
		return evaluateString(c.Operator, kind, actual, lit.Text())

	case model.LiteralList:
		list, ok := toStringList(actual)
		if !ok {
			return false
		}
		switch c.Operator {
		case model.OpEQ:
			return model.SameSet(list, lit.List())
		case model.OpNEQ:
			return !model.SameSet(list, lit.List())
		case model.OpContains:
			for _, want := range lit.List() {
				if !containsString(list, want) {
					return false
				}
			}
			return true
		}
		return false
	}
	return false
}

func evaluateString(op model.Operator, kind FieldKind, actual interface{}, want string) bool {
	if op == model.OpContains {
		if s, ok := actual.(string); ok {
			return strings.Contains(s, want)
		}
		if list, ok := toStringList(actual); ok {
			return containsString(list, want)
		}
		return false
	}

	s, isString := actual.(string)
	if kind == KindString && isString {
		return compareOrdered(op, strings.Compare(s, want))
	}

	// coercion applies only when both sides parse as the same type
	if at, ok := toTime(actual); ok {
		if wt, ok := parseTime(want); ok {
			return compareOrdered(op, compareTime(at, wt))
		}
	}
	if an, ok := toDecimal(actual); ok {
		if wn, err := decimal.NewFromString(strings.TrimSpace(want)); err == nil {
			return compareOrdered(op, an.Cmp(wn))
		}
	}

	if !isString {
		return false
	}
	return compareOrdered(op, strings.Compare(s, want))
}

// declaredKind kind the field catalog gives a field, preferring the event's own trigger
func declaredKind(fields map[string]interface{}, field string) (FieldKind, bool) {
	if et, ok := fields["event_type"].(string); ok {
		if kind, ok := FieldKindOf(model.TriggerType(et), field); ok {
			return kind, true
		}
	}
	if kind, ok := commonFields[field]; ok {
		return kind, true
	}
	for _, byField := range fieldCatalog {
		if kind, ok := byField[field]; ok {
			return kind, true
		}
	}
	return "", false
}

func compareOrdered(op model.Operator, cmp int) bool {
	switch op {
	case model.OpEQ:
		return cmp == 0
	case model.OpNEQ:
		return cmp != 0
	case model.OpGT:
		return cmp > 0
	case model.OpGTE:
		return cmp >= 0
	case model.OpLT:
		return cmp < 0
	case model.OpLTE:
		return cmp <= 0
	}
	return false
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromInt(int64(n)), true
	case uint8:
		return decimal.NewFromInt(int64(n)), true
	case uint16:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		if n > math.MaxInt64 {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(int64(n)), true
	case float32:
		return floatDecimal(float64(n))
	case float64:
		return floatDecimal(n)
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

func floatDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return parseTime(t)
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func toStringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
