package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionStatus aggregate outcome of one rule firing
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionPartial ExecutionStatus = "PARTIAL"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// ActionOutcome result of a single action
type ActionOutcome string

const (
	OutcomeOK    ActionOutcome = "OK"
	OutcomeError ActionOutcome = "ERROR"
)

// ActionResult per-action record inside an execution
type ActionResult struct {
	ActionIndex int           `json:"action_index"`
	ActionType  ActionType    `json:"action_type"`
	Label       string        `json:"label,omitempty"`
	Outcome     ActionOutcome `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Execution append-only audit record, one per matched rule per event
type Execution struct {
	ID             string                            `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID         string                            `gorm:"type:uuid;not null;index" json:"rule_id"`
	OrgID          string                            `gorm:"type:varchar(64);not null;index" json:"org_id"`
	TriggerType    TriggerType                       `gorm:"type:varchar(40);not null" json:"trigger_type"`
	EventID        string                            `gorm:"type:varchar(64);index" json:"event_id"`
	Status         ExecutionStatus                   `gorm:"type:varchar(16);not null;index" json:"status"`
	TriggerPreview string                            `gorm:"type:text" json:"trigger_preview"`
	Results        datatypes.JSONSlice[ActionResult] `json:"results"`
	StartedAt      time.Time                         `json:"started_at"`
	FinishedAt     time.Time                         `json:"finished_at"`
	CreatedAt      time.Time                         `gorm:"index" json:"created_at"`
}

func (e *Execution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// ExecutionStatusOf SUCCESS if every action succeeded, FAILED if none did, PARTIAL otherwise.
// An empty action list succeeds.
func ExecutionStatusOf(results []ActionResult) ExecutionStatus {
	ok := 0
	for _, r := range results {
		if r.Outcome == OutcomeOK {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return ExecutionSuccess
	case ok == 0:
		return ExecutionFailed
	default:
		return ExecutionPartial
	}
}
