package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ActionType closed set of rule actions
type ActionType string

const (
	ActionAdjustPrice            ActionType = "ADJUST_PRICE"
	ActionCreateTask             ActionType = "CREATE_TASK"
	ActionSendNotification       ActionType = "SEND_NOTIFICATION"
	ActionTagOrder               ActionType = "TAG_ORDER"
	ActionTriggerAutoFulfillment ActionType = "TRIGGER_AUTO_FULFILLMENT"
)

// ErrUnknownActionType action type outside the closed set
var ErrUnknownActionType = errors.New("unknown action type")

// ActionParams variant payload of an Action
type ActionParams interface {
	ActionType() ActionType
	Validate() error
}

// PriceAdjustMode how AdjustPriceParams.Amount is applied
type PriceAdjustMode string

const (
	PriceAdjustPercent  PriceAdjustMode = "PERCENT"
	PriceAdjustAbsolute PriceAdjustMode = "ABSOLUTE"
	PriceAdjustSet      PriceAdjustMode = "SET"
)

// AdjustPriceParams change a product price. Empty SKU means the sku of the event.
type AdjustPriceParams struct {
	SKU    string          `json:"sku,omitempty"`
	Mode   PriceAdjustMode `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

func (p *AdjustPriceParams) ActionType() ActionType { return ActionAdjustPrice }

func (p *AdjustPriceParams) Validate() error {
	switch p.Mode {
	case PriceAdjustPercent:
		if p.Amount.LessThanOrEqual(decimal.NewFromInt(-100)) {
			return errors.New("percent adjustment must be greater than -100")
		}
	case PriceAdjustAbsolute:
	case PriceAdjustSet:
		if !p.Amount.IsPositive() {
			return errors.New("price must be positive")
		}
	default:
		return fmt.Errorf("unknown price adjust mode %q", p.Mode)
	}
	return nil
}

// CreateTaskParams open a back office task
type CreateTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueInHours  int    `json:"due_in_hours,omitempty"`
}

func (p *CreateTaskParams) ActionType() ActionType { return ActionCreateTask }

func (p *CreateTaskParams) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("task title is required")
	}
	if p.DueInHours < 0 {
		return errors.New("due_in_hours must not be negative")
	}
	return nil
}

// NotificationChannel delivery channel of SEND_NOTIFICATION
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSlack NotificationChannel = "SLACK"
	ChannelInApp NotificationChannel = "IN_APP"
	ChannelSNS   NotificationChannel = "SNS"
)

// SendNotificationParams message supports {{field}} placeholders resolved from the event
type SendNotificationParams struct {
	Channel   NotificationChannel `json:"channel"`
	Recipient string              `json:"recipient,omitempty"`
	Subject   string              `json:"subject,omitempty"`
	Message   string              `json:"message"`
}

func (p *SendNotificationParams) ActionType() ActionType { return ActionSendNotification }

func (p *SendNotificationParams) Validate() error {
	switch p.Channel {
	case ChannelEmail, ChannelSlack, ChannelInApp, ChannelSNS:
	default:
		return fmt.Errorf("unknown notification channel %q", p.Channel)
	}
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("notification message is required")
	}
	if p.Channel == ChannelEmail && p.Recipient == "" {
		return errors.New("email notifications need a recipient")
	}
	return nil
}

// TagOrderParams attach tags to the order of the event
type TagOrderParams struct {
	Tags []string `json:"tags"`
}

func (p *TagOrderParams) ActionType() ActionType { return ActionTagOrder }

func (p *TagOrderParams) Validate() error {
	if len(p.Tags) == 0 {
		return errors.New("at least one tag is required")
	}
	for _, tag := range p.Tags {
		if strings.TrimSpace(tag) == "" {
			return errors.New("tags must not be blank")
		}
	}
	return nil
}

// TriggerAutoFulfillmentParams submit line items of the order for auto-fulfillment.
// Empty LineItemID means every line item.
type TriggerAutoFulfillmentParams struct {
	LineItemID string `json:"line_item_id,omitempty"`
}

func (p *TriggerAutoFulfillmentParams) ActionType() ActionType {
	return ActionTriggerAutoFulfillment
}

func (p *TriggerAutoFulfillmentParams) Validate() error { return nil }

// NewActionParams empty params for t
func NewActionParams(t ActionType) (ActionParams, error) {
	switch t {
	case ActionAdjustPrice:
		return &AdjustPriceParams{}, nil
	case ActionCreateTask:
		return &CreateTaskParams{}, nil
	case ActionSendNotification:
		return &SendNotificationParams{}, nil
	case ActionTagOrder:
		return &TagOrderParams{}, nil
	case ActionTriggerAutoFulfillment:
		return &TriggerAutoFulfillmentParams{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
}

// Action tagged union keyed by Type
type Action struct {
	Type   ActionType   `json:"type"`
	Label  string       `json:"label,omitempty"`
	Params ActionParams `json:"params"`
}

// NewAction builds an action whose type follows its params
func NewAction(label string, params ActionParams) Action {
	return Action{Type: params.ActionType(), Label: label, Params: params}
}

// Validate checks the variant and its params
func (a Action) Validate() error {
	if a.Params == nil {
		if _, err := NewActionParams(a.Type); err != nil {
			return err
		}
		return fmt.Errorf("action %s has no params", a.Type)
	}
	if a.Params.ActionType() != a.Type {
		return fmt.Errorf("action type %s does not match params of %s", a.Type, a.Params.ActionType())
	}
	return a.Params.Validate()
}

type actionEnvelope struct {
	Type   ActionType      `json:"type"`
	Label  string          `json:"label,omitempty"`
	Params json.RawMessage `json:"params"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	params := json.RawMessage("{}")
	if a.Params != nil {
		raw, err := json.Marshal(a.Params)
		if err != nil {
			return nil, err
		}
		params = raw
	}
	return json.Marshal(actionEnvelope{Type: a.Type, Label: a.Label, Params: params})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	params, err := NewActionParams(env.Type)
	if err != nil {
		return err
	}
	if len(env.Params) > 0 && string(env.Params) != "null" {
		if err := json.Unmarshal(env.Params, params); err != nil {
			return fmt.Errorf("decode %s params: %w", env.Type, err)
		}
	}
	a.Type = env.Type
	a.Label = env.Label
	a.Params = params
	return nil
}
