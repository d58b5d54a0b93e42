package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ShopPilot/pkg/fulfillment"
	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// PriceAdjuster product catalog write side
type PriceAdjuster interface {
	AdjustPrice(ctx context.Context, orgID, sku string, mode model.PriceAdjustMode, amount decimal.Decimal) (before, after decimal.Decimal, err error)
}

// TaskCreator back office task store
type TaskCreator interface {
	CreateTask(ctx context.Context, task *model.Task) error
}

// Notifier delivers notifications to a channel
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// OrderTagger order store write side
type OrderTagger interface {
	TagOrder(ctx context.Context, orgID, orderID string, tags []string) error
}

// FulfillmentSubmitter hands order line items to auto-fulfillment
type FulfillmentSubmitter interface {
	SubmitOrder(ctx context.Context, orgID, orderID, lineItemID string) ([]fulfillment.SubmitResult, error)
}

// HandlerDeps collaborators of the built-in handlers; nil ones are not registered
type HandlerDeps struct {
	Prices      PriceAdjuster
	Tasks       TaskCreator
	Notifier    Notifier
	Orders      OrderTagger
	Fulfillment FulfillmentSubmitter
	Now         func() time.Time
}

// RegisterDefaultHandlers installs a handler for every action type with a collaborator
func RegisterDefaultHandlers(d *Dispatcher, deps HandlerDeps) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Prices != nil {
		d.Register(model.ActionAdjustPrice, &adjustPriceHandler{prices: deps.Prices})
	}
	if deps.Tasks != nil {
		d.Register(model.ActionCreateTask, &createTaskHandler{tasks: deps.Tasks, now: now})
	}
	if deps.Notifier != nil {
		d.Register(model.ActionSendNotification, &notificationHandler{notifier: deps.Notifier, now: now})
	}
	if deps.Orders != nil {
		d.Register(model.ActionTagOrder, &tagOrderHandler{orders: deps.Orders})
	}
	if deps.Fulfillment != nil {
		d.Register(model.ActionTriggerAutoFulfillment, &autoFulfillmentHandler{submitter: deps.Fulfillment})
	}
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render replaces {{field}} placeholders with event values
func Render(tmpl string, evctx *EventContext) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		field := placeholder.FindStringSubmatch(m)[1]
		return evctx.Lookup(field)
	})
}

var errParamsType = errors.New("params do not match the handler")

type adjustPriceHandler struct {
	prices PriceAdjuster
}

func (h *adjustPriceHandler) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	p, ok := params.(*model.AdjustPriceParams)
	if !ok {
		return "", errParamsType
	}
	sku := p.SKU
	if sku == "" {
		sku = evctx.Lookup("sku")
	}
	if sku == "" {
		return "", errors.New("no sku in action params or event")
	}
	before, after, err := h.prices.AdjustPrice(ctx, evctx.Event.OrgID, sku, p.Mode, p.Amount)
	if err != nil {
		return "", fmt.Errorf("adjust price of %s: %w", sku, err)
	}
	return fmt.Sprintf("price of %s changed from %s to %s", sku, before.StringFixed(2), after.StringFixed(2)), nil
}

type createTaskHandler struct {
	tasks TaskCreator
	now   func() time.Time
}

func (h *createTaskHandler) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	p, ok := params.(*model.CreateTaskParams)
	if !ok {
		return "", errParamsType
	}
	task := &model.Task{
		OrgID:       evctx.Event.OrgID,
		RuleID:      evctx.RuleID,
		Title:       Render(p.Title, evctx),
		Description: Render(p.Description, evctx),
		Assignee:    p.Assignee,
		Status:      model.TaskOpen,
	}
	if p.DueInHours > 0 {
		due := h.now().Add(time.Duration(p.DueInHours) * time.Hour)
		task.DueAt = &due
	}
	if err := h.tasks.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return fmt.Sprintf("task %s created: %s", task.ID, task.Title), nil
}

type notificationHandler struct {
	notifier Notifier
	now      func() time.Time
}

func (h *notificationHandler) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	p, ok := params.(*model.SendNotificationParams)
	if !ok {
		return "", errParamsType
	}
	n := model.Notification{
		OrgID:     evctx.Event.OrgID,
		RuleID:    evctx.RuleID,
		Channel:   p.Channel,
		Recipient: p.Recipient,
		Subject:   Render(p.Subject, evctx),
		Message:   Render(p.Message, evctx),
		CreatedAt: h.now(),
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		return "", fmt.Errorf("send %s notification: %w", p.Channel, err)
	}
	to := string(p.Channel)
	if p.Recipient != "" {
		to += " " + p.Recipient
	}
	return "notification sent to " + to, nil
}

type tagOrderHandler struct {
	orders OrderTagger
}

func (h *tagOrderHandler) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	p, ok := params.(*model.TagOrderParams)
	if !ok {
		return "", errParamsType
	}
	orderID := evctx.Lookup("order.id")
	if orderID == "" {
		return "", errors.New("event has no order.id")
	}
	if err := h.orders.TagOrder(ctx, evctx.Event.OrgID, orderID, p.Tags); err != nil {
		return "", fmt.Errorf("tag order %s: %w", orderID, err)
	}
	return fmt.Sprintf("order %s tagged %s", orderID, strings.Join(p.Tags, ", ")), nil
}

type autoFulfillmentHandler struct {
	submitter FulfillmentSubmitter
}

func (h *autoFulfillmentHandler) Execute(ctx context.Context, params model.ActionParams, evctx *EventContext) (string, error) {
	p, ok := params.(*model.TriggerAutoFulfillmentParams)
	if !ok {
		return "", errParamsType
	}
	orderID := evctx.Lookup("order.id")
	if orderID == "" {
		return "", errors.New("event has no order.id")
	}
	results, err := h.submitter.SubmitOrder(ctx, evctx.Event.OrgID, orderID, p.LineItemID)
	if err != nil {
		if len(results) > 0 {
			summary := summarizeSubmissions(orderID, results)
			return summary, fmt.Errorf("submit order %s: %w (%s)", orderID, err, summary)
		}
		return "", fmt.Errorf("submit order %s: %w", orderID, err)
	}
	return summarizeSubmissions(orderID, results), nil
}

func summarizeSubmissions(orderID string, results []fulfillment.SubmitResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("order %s has no line items to fulfill", orderID)
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Job != nil {
			parts = append(parts, fmt.Sprintf("%s queued as job %s", r.LineItemID, r.Job.ID))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s not eligible (%s)", r.LineItemID, r.Eligibility.ReasonCode))
	}
	return fmt.Sprintf("order %s: %s", orderID, strings.Join(parts, "; "))
}
