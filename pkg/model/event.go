package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event business event delivered to the automation engine
type Event struct {
	ID         string                 `json:"id"`
	OrgID      string                 `json:"org_id"`
	Type       TriggerType            `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewEvent event with a fresh id
func NewEvent(orgID string, t TriggerType, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Validate checks the envelope, not the payload
func (e Event) Validate() error {
	if e.OrgID == "" {
		return errors.New("event org_id is required")
	}
	if !e.Type.IsValid() {
		return errors.New("unknown event type " + string(e.Type))
	}
	return nil
}

// Preview short human readable summary stored with executions
func (e Event) Preview() string {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return string(e.Type)
	}
	s := string(e.Type) + " " + string(raw)
	if len(s) > 280 {
		s = s[:277] + "..."
	}
	return s
}

// Notification message produced by SEND_NOTIFICATION
type Notification struct {
	OrgID     string              `json:"org_id"`
	RuleID    string              `json:"rule_id,omitempty"`
	Channel   NotificationChannel `json:"channel"`
	Recipient string              `json:"recipient,omitempty"`
	Subject   string              `json:"subject,omitempty"`
	Message   string              `json:"message"`
	CreatedAt time.Time           `json:"created_at"`
}
