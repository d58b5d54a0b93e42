package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExecutionSink append-only execution log
type ExecutionSink interface {
	AppendExecution(ctx context.Context, exec *model.Execution) error
}

// Recorder execution metrics
type Recorder interface {
	ObserveExecution(trigger model.TriggerType, status model.ExecutionStatus, d time.Duration)
	ObserveActionResult(actionType model.ActionType, outcome model.ActionOutcome)
}

// AutomationEngine evaluates rules for incoming events and records one execution per firing
type AutomationEngine struct {
	matcher     *TriggerMatcher
	dispatcher  *Dispatcher
	executions  ExecutionSink
	recorder    Recorder
	concurrency int
	now         func() time.Time
	log         *zap.Logger
}

// Option configures an AutomationEngine
type Option func(*AutomationEngine)

// WithConcurrency max rules evaluated in parallel for one event
func WithConcurrency(n int) Option {
	return func(e *AutomationEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *AutomationEngine) { e.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *AutomationEngine) { e.now = now }
}

// NewAutomationEngine engine over a rule source and an execution log
func NewAutomationEngine(rules RuleSource, executions ExecutionSink, dispatcher *Dispatcher, opts ...Option) *AutomationEngine {
	e := &AutomationEngine{
		matcher:     NewTriggerMatcher(rules),
		dispatcher:  dispatcher,
		executions:  executions,
		concurrency: 8,
		now:         time.Now,
		log:         logger.Named("automation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnEvent runs every matching rule. Rules whose conditions fail write nothing.
// A rule failure never aborts the others; execution log write errors are joined into err.
func (e *AutomationEngine) OnEvent(ctx context.Context, ev model.Event) ([]model.Execution, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	rules, err := e.matcher.Match(ctx, ev.OrgID, ev.Type)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return []model.Execution{}, nil
	}

	evctx := NewEventContext(ev)
	fired := make([]*model.Execution, len(rules))

	var (
		mu       sync.Mutex
		sinkErrs []error
	)

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range rules {
		rule := rules[i]
		idx := i
		g.Go(func() error {
			exec, err := e.runRule(ctx, rule, evctx.WithRule(rule.ID))
			fired[idx] = exec
			if err != nil {
				mu.Lock()
				sinkErrs = append(sinkErrs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	executions := make([]model.Execution, 0, len(fired))
	for _, exec := range fired {
		if exec != nil {
			executions = append(executions, *exec)
		}
	}
	return executions, errors.Join(sinkErrs...)
}

func (e *AutomationEngine) runRule(ctx context.Context, rule model.AutomationRule, evctx *EventContext) (*model.Execution, error) {
	if !EvaluateConditions(rule.Conditions, evctx.Fields) {
		return nil, nil
	}

	started := e.now()
	results := e.dispatcher.Dispatch(ctx, rule.Actions, evctx)
	finished := e.now()

	exec := &model.Execution{
		RuleID:         rule.ID,
		OrgID:          rule.OrgID,
		TriggerType:    rule.TriggerType,
		EventID:        evctx.Event.ID,
		Status:         model.ExecutionStatusOf(results),
		TriggerPreview: evctx.Event.Preview(),
		Results:        results,
		StartedAt:      started,
		FinishedAt:     finished,
	}

	if e.recorder != nil {
		e.recorder.ObserveExecution(rule.TriggerType, exec.Status, finished.Sub(started))
		for _, r := range results {
			e.recorder.ObserveActionResult(r.ActionType, r.Outcome)
		}
	}

	// the execution is recorded even when ctx was cancelled mid-rule
	if err := e.executions.AppendExecution(context.WithoutCancel(ctx), exec); err != nil {
		e.log.Error("append execution failed",
			zap.String("rule_id", rule.ID),
			zap.String("event_id", evctx.Event.ID),
			zap.Error(err),
		)
		return exec, fmt.Errorf("append execution for rule %s: %w", rule.ID, err)
	}

	e.log.Info("rule fired",
		zap.String("org_id", rule.OrgID),
		zap.String("rule_id", rule.ID),
		zap.String("trigger", string(rule.TriggerType)),
		zap.String("status", string(exec.Status)),
	)
	return exec, nil
}
