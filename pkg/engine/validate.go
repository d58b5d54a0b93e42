package engine

import (
	"errors"
	"fmt"
	"strings"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// FieldKind value type of a payload field
type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindString FieldKind = "string"
	KindTime   FieldKind = "time"
	KindBool   FieldKind = "bool"
	KindList   FieldKind = "list"
)

// FreeFormPrefix payload fields under this prefix are not type checked
const FreeFormPrefix = "attributes."

var commonFields = map[string]FieldKind{
	"org_id":     KindString,
	"event_type": KindString,
}

var fieldCatalog = map[model.TriggerType]map[string]FieldKind{
	model.TriggerOrderCreated: {
		"order.id":             KindString,
		"order.number":         KindString,
		"order.channel_id":     KindString,
		"order.total":          KindNumber,
		"order.currency":       KindString,
		"order.item_count":     KindNumber,
		"order.customer_email": KindString,
		"order.tags":           KindList,
		"order.created_at":     KindTime,
		"order.is_first_order": KindBool,
	},
	model.TriggerInventoryBelowThreshold: {
		"sku":          KindString,
		"product_name": KindString,
		"available":    KindNumber,
		"threshold":    KindNumber,
		"warehouse_id": KindString,
	},
	model.TriggerPriceBelowMinMargin: {
		"sku":        KindString,
		"channel_id": KindString,
		"price":      KindNumber,
		"cost":       KindNumber,
		"margin":     KindNumber,
		"min_margin": KindNumber,
	},
	model.TriggerNewNegativeReview: {
		"review_id":  KindString,
		"sku":        KindString,
		"channel_id": KindString,
		"rating":     KindNumber,
		"title":      KindString,
		"body":       KindString,
	},
	model.TriggerChannelSyncFailed: {
		"channel_id":    KindString,
		"sync_type":     KindString,
		"error_message": KindString,
		"failure_count": KindNumber,
	},
	model.TriggerDailySchedule: {
		"scheduled_at": KindTime,
		"period":       KindString,
		"weekday":      KindString,
		"date":         KindString,
		"timezone":     KindString,
	},
	model.TriggerWeeklySchedule: {
		"scheduled_at": KindTime,
		"period":       KindString,
		"weekday":      KindString,
		"date":         KindString,
		"timezone":     KindString,
	},
}

// actions that need an order in the event
var orderActions = map[model.ActionType]bool{
	model.ActionTagOrder:               true,
	model.ActionTriggerAutoFulfillment: true,
}

// FieldKindOf kind of field for trigger; ok is false for unknown fields
func FieldKindOf(trigger model.TriggerType, field string) (FieldKind, bool) {
	if kind, ok := commonFields[field]; ok {
		return kind, true
	}
	kind, ok := fieldCatalog[trigger][field]
	return kind, ok
}

// ValidateRule save-time configuration check. Every problem is reported.
func ValidateRule(rule *model.AutomationRule) error {
	var errs []error

	if strings.TrimSpace(rule.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if rule.OrgID == "" {
		errs = append(errs, errors.New("org_id is required"))
	}
	if !rule.Status.IsValid() {
		errs = append(errs, fmt.Errorf("unknown status %q", rule.Status))
	}
	if !rule.TriggerType.IsValid() {
		errs = append(errs, fmt.Errorf("unknown trigger type %q", rule.TriggerType))
	} else {
		for i, c := range rule.Conditions {
			if err := validateCondition(rule.TriggerType, c); err != nil {
				errs = append(errs, fmt.Errorf("conditions[%d]: %w", i, err))
			}
		}
		for i, a := range rule.Actions {
			if err := a.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("actions[%d]: %w", i, err))
				continue
			}
			if orderActions[a.Type] && rule.TriggerType != model.TriggerOrderCreated {
				errs = append(errs, fmt.Errorf("actions[%d]: %s needs an %s trigger", i, a.Type, model.TriggerOrderCreated))
			}
		}
	}
	if rule.Status == model.RuleStatusActive && len(rule.Actions) == 0 {
		errs = append(errs, errors.New("an active rule needs at least one action"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", model.ErrInvalidRule, errors.Join(errs...))
	}
	return nil
}

// ValidateRuleUpdate trigger type is fixed at creation
func ValidateRuleUpdate(existing, updated *model.AutomationRule) error {
	if existing.TriggerType != updated.TriggerType {
		return fmt.Errorf("%w: trigger type cannot change from %s to %s",
			model.ErrInvalidRule, existing.TriggerType, updated.TriggerType)
	}
	return ValidateRule(updated)
}

func validateCondition(trigger model.TriggerType, c model.Condition) error {
	if strings.TrimSpace(c.Field) == "" {
		return errors.New("field is required")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	lit := c.Value
	if lit.Kind() == model.LiteralNull {
		return errors.New("value is required")
	}

	if strings.HasPrefix(c.Field, FreeFormPrefix) {
		return validateFreeForm(c)
	}

	kind, ok := FieldKindOf(trigger, c.Field)
	if !ok {
		return fmt.Errorf("unknown field %q for trigger %s", c.Field, trigger)
	}

	switch kind {
	case KindNumber:
		if c.Operator == model.OpContains {
			return fmt.Errorf("operator CONTAINS cannot be used with number field %q", c.Field)
		}
		switch lit.Kind() {
		case model.LiteralNumber:
		case model.LiteralString:
			if _, err := decimal.NewFromString(lit.Text()); err != nil {
				return fmt.Errorf("field %q needs a number, got %q", c.Field, lit.Text())
			}
		default:
			return fmt.Errorf("field %q needs a number value", c.Field)
		}
	case KindString:
		if lit.Kind() != model.LiteralString {
			return fmt.Errorf("field %q needs a string value", c.Field)
		}
	case KindTime:
		if c.Operator == model.OpContains {
			return fmt.Errorf("operator CONTAINS cannot be used with time field %q", c.Field)
		}
		if lit.Kind() != model.LiteralString {
			return fmt.Errorf("field %q needs an RFC3339 timestamp", c.Field)
		}
		if _, ok := parseTime(lit.Text()); !ok {
			return fmt.Errorf("field %q needs an RFC3339 timestamp, got %q", c.Field, lit.Text())
		}
	case KindBool:
		if lit.Kind() != model.LiteralBool {
			return fmt.Errorf("field %q needs a bool value", c.Field)
		}
		if c.Operator != model.OpEQ && c.Operator != model.OpNEQ {
			return fmt.Errorf("bool field %q only supports EQ and NEQ", c.Field)
		}
	case KindList:
		switch lit.Kind() {
		case model.LiteralString:
			if c.Operator != model.OpContains {
				return fmt.Errorf("list field %q with a single value only supports CONTAINS", c.Field)
			}
		case model.LiteralList:
			if c.Operator.IsOrdering() {
				return fmt.Errorf("list field %q cannot be ordered", c.Field)
			}
		default:
			return fmt.Errorf("list field %q needs a string or list value", c.Field)
		}
	}
	return nil
}

func validateFreeForm(c model.Condition) error {
	switch c.Value.Kind() {
	case model.LiteralBool:
		if c.Operator != model.OpEQ && c.Operator != model.OpNEQ {
			return errors.New("bool values only support EQ and NEQ")
		}
	case model.LiteralNumber:
		if c.Operator == model.OpContains {
			return errors.New("CONTAINS needs a string value")
		}
	case model.LiteralList:
		if c.Operator.IsOrdering() {
			return errors.New("list values cannot be ordered")
		}
	}
	return nil
}
