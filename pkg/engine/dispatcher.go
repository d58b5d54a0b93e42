package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"go.uber.org/zap"
)

// ActionHandler performs one action type. The returned string is a human readable outcome.
type ActionHandler interface {
	Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error)
}

// ActionHandlerFunc adapter for plain functions
type ActionHandlerFunc func(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error)

func (f ActionHandlerFunc) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	return f(ctx, params, evctx)
}

// Dispatcher runs a rule's actions in order, isolating every failure
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[model.ActionType]ActionHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[model.ActionType]ActionHandler)}
}

// Register installs the handler for t, replacing any previous one
func (d *Dispatcher) Register(t model.ActionType, h ActionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

func (d *Dispatcher) handler(t model.ActionType) (ActionHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[t]
	return h, ok
}

// Dispatch one result per action, in order. Errors and panics are recorded, never propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []model.Action, evctx *EventContext) []model.ActionResult {
	results := make([]model.ActionResult, 0, len(actions))
	for i, action := range actions {
		results = append(results, d.run(ctx, i, action, evctx))
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, idx int, action model.Action, evctx *EventContext) (result model.ActionResult) {
	result = model.ActionResult{
		ActionIndex: idx,
		ActionType:  action.Type,
		Label:       action.Label,
		Outcome:     model.OutcomeError,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("action handler panicked",
				zap.String("rule_id", evctx.RuleID),
				zap.Int("action_index", idx),
				zap.String("action_type", string(action.Type)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result.Outcome = model.OutcomeError
			result.Message = ""
			result.Error = fmt.Sprintf("handler panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Error = fmt.Sprintf("not run: %v", err)
		return result
	}

	h, ok := d.handler(action.Type)
	if !ok {
		result.Error = fmt.Sprintf("no handler registered for %s", action.Type)
		return result
	}
	if action.Params == nil {
		result.Error = "action has no params"
		return result
	}

	msg, err := h.Execute(ctx, action.Params, evctx)
	if err != nil {
		result.Message = msg
		result.Error = err.Error()
		return result
	}
	result.Outcome = model.OutcomeOK
	result.Message = msg
	return result
}
