package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"ShopPilot/pkg/fulfillment"
	"ShopPilot/pkg/model"
	"ShopPilot/pkg/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) SubmitOrder(ctx context.Context, orgID, orderID, lineItemID string) ([]fulfillment.SubmitResult, error) {
	args := m.Called(ctx, orgID, orderID, lineItemID)
	results, _ := args.Get(0).([]fulfillment.SubmitResult)
	return results, args.Error(1)
}

func orderContext(orderID string) *EventContext {
	ev := model.NewEvent("org-1", model.TriggerOrderCreated, map[string]interface{}{
		"order": map[string]interface{}{
			"id":     orderID,
			"number": "#1001",
			"total":  4200,
			"tags":   []interface{}{"vip", "gift"},
		},
	})
	return NewEventContext(ev).WithRule("rule-1")
}

func TestRenderPlaceholders(t *testing.T) {
	evctx := orderContext("o-1")
	assert.Equal(t, "Order #1001 total 4200", Render("Order {{order.number}} total {{ order.total }}", evctx))
	assert.Equal(t, "tags: vip, gift", Render("tags: {{order.tags}}", evctx))
	assert.Equal(t, "missing: ", Render("missing: {{order.nope}}", evctx))
	assert.Equal(t, "no placeholders", Render("no placeholders", evctx))
}

func TestTagOrderHandler(t *testing.T) {
	repo := repository.NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.SaveOrder(ctx, &model.Order{ID: "o-1", OrgID: "org-1", Tags: []string{"vip"}}))

	d := NewDispatcher()
	RegisterDefaultHandlers(d, HandlerDeps{Orders: repo})

	results := d.Dispatch(ctx, []model.Action{
		model.NewAction("", &model.TagOrderParams{Tags: []string{"vip", "priority"}}),
	}, orderContext("o-1"))
	require.Len(t, results, 1)
	assert.Equal(t, model.OutcomeOK, results[0].Outcome)
	assert.Equal(t, "order o-1 tagged vip, priority", results[0].Message)

	order, err := repo.GetOrder(ctx, "org-1", "o-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vip", "priority"}, []string(order.Tags))

	results = d.Dispatch(ctx, []model.Action{
		model.NewAction("", &model.TagOrderParams{Tags: []string{"x"}}),
	}, orderContext("o-missing"))
	assert.Equal(t, model.OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "not found")
}

func TestCreateTaskHandler(t *testing.T) {
	repo := repository.NewRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := NewDispatcher()
	RegisterDefaultHandlers(d, HandlerDeps{Tasks: repo, Now: func() time.Time { return now }})

	results := d.Dispatch(context.Background(), []model.Action{
		model.NewAction("", &model.CreateTaskParams{
			Title:      "Check order {{order.number}}",
			Assignee:   "ops",
			DueInHours: 24,
		}),
	}, orderContext("o-1"))
	require.Equal(t, model.OutcomeOK, results[0].Outcome, results[0].Error)

	tasks, err := repo.ListTasks(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Check order #1001", tasks[0].Title)
	assert.Equal(t, "rule-1", tasks[0].RuleID)
	assert.Equal(t, model.TaskOpen, tasks[0].Status)
	require.NotNil(t, tasks[0].DueAt)
	assert.Equal(t, now.Add(24*time.Hour), *tasks[0].DueAt)
}

func TestAutoFulfillmentHandlerSummarizes(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("SubmitOrder", mock.Anything, "org-1", "o-1", "").Return([]fulfillment.SubmitResult{
		{LineItemID: "li-1", Job: &model.FulfillmentJob{ID: "job-1"}},
		{LineItemID: "li-2", Eligibility: fulfillment.EligibilityResult{ReasonCode: model.ReasonInsufficientProfit}},
	}, nil)

	d := NewDispatcher()
	RegisterDefaultHandlers(d, HandlerDeps{Fulfillment: sub})

	results := d.Dispatch(context.Background(), []model.Action{
		model.NewAction("", &model.TriggerAutoFulfillmentParams{}),
	}, orderContext("o-1"))
	require.Equal(t, model.OutcomeOK, results[0].Outcome, results[0].Error)
	assert.Equal(t, "order o-1: li-1 queued as job job-1; li-2 not eligible (INSUFFICIENT_PROFIT)", results[0].Message)
	sub.AssertExpectations(t)
}

func TestAutoFulfillmentHandlerPropagatesError(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("SubmitOrder", mock.Anything, "org-1", "o-1", "li-9").Return(nil, model.ErrNotFound)

	d := NewDispatcher()
	RegisterDefaultHandlers(d, HandlerDeps{Fulfillment: sub})

	results := d.Dispatch(context.Background(), []model.Action{
		model.NewAction("", &model.TriggerAutoFulfillmentParams{LineItemID: "li-9"}),
	}, orderContext("o-1"))
	assert.Equal(t, model.OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "submit order o-1")
	sub.AssertExpectations(t)
}

func TestAutoFulfillmentHandlerKeepsPartialSubmissions(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("SubmitOrder", mock.Anything, "org-1", "o-1", "").Return([]fulfillment.SubmitResult{
		{LineItemID: "li-1", Job: &model.FulfillmentJob{ID: "job-1"}},
	}, errors.New("li-2: quote service unavailable"))

	d := NewDispatcher()
	RegisterDefaultHandlers(d, HandlerDeps{Fulfillment: sub})

	results := d.Dispatch(context.Background(), []model.Action{
		model.NewAction("", &model.TriggerAutoFulfillmentParams{}),
	}, orderContext("o-1"))
	assert.Equal(t, model.OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "li-2: quote service unavailable")
	assert.Contains(t, results[0].Error, "li-1 queued as job job-1")
	assert.Equal(t, "order o-1: li-1 queued as job job-1", results[0].Message)
	sub.AssertExpectations(t)
}

func TestDispatchWithoutHandlerOrAfterCancel(t *testing.T) {
	d := NewDispatcher()
	actions := []model.Action{
		model.NewAction("", &model.TagOrderParams{Tags: []string{"x"}}),
	}

	results := d.Dispatch(context.Background(), actions, orderContext("o-1"))
	assert.Equal(t, "no handler registered for TAG_ORDER", results[0].Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	RegisterDefaultHandlers(d, HandlerDeps{Orders: repository.NewRepository()})
	results = d.Dispatch(ctx, actions, orderContext("o-1"))
	assert.Equal(t, model.OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "not run")
}

func TestSummarizeEmptySubmission(t *testing.T) {
	assert.Equal(t, "order o-1 has no line items to fulfill", summarizeSubmissions("o-1", nil))
}
