package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type published struct {
	subject string
	data    interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

type fakeEngine struct {
	events []model.Event
	err    error
}

func (f *fakeEngine) OnEvent(_ context.Context, ev model.Event) ([]model.Execution, error) {
	f.events = append(f.events, ev)
	return nil, f.err
}

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

func TestSubjects(t *testing.T) {
	ev := model.Event{OrgID: "acme.jp", Type: model.TriggerType("ORDER_CREATED")}
	assert.Equal(t, "events.acme_jp.order_created", EventSubject(ev))
	assert.Equal(t, "events._.order_created", EventSubject(model.Event{Type: "ORDER_CREATED"}))
	assert.Equal(t, "fulfillment.jobs.completed", JobSubject(model.JobCompleted))
	assert.Equal(t, "notifications.slack", NotificationSubject(model.ChannelSlack))
}

func TestEventPublisherValidates(t *testing.T) {
	pub := &fakePublisher{}
	p := NewEventPublisher(pub)

	assert.Error(t, p.PublishEvent(context.Background(), model.Event{Type: "NOPE"}))
	assert.Empty(t, pub.msgs)

	ev := model.NewEvent("org-1", model.TriggerInventoryBelowThreshold, map[string]interface{}{"sku": "SKU-1"})
	require.NoError(t, p.PublishEvent(context.Background(), ev))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "events.org-1.inventory_below_threshold", pub.msgs[0].subject)
}

func TestEventConsumer(t *testing.T) {
	eng := &fakeEngine{}
	handle := EventConsumer(eng)
	ctx := context.Background()

	ev := model.NewEvent("org-1", model.TriggerInventoryBelowThreshold, map[string]interface{}{"available": 7})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, handle(ctx, raw))
	require.Len(t, eng.events, 1)
	assert.Equal(t, ev.ID, eng.events[0].ID)

	assert.ErrorIs(t, handle(ctx, []byte("{not json")), ErrDrop)
	assert.ErrorIs(t, handle(ctx, []byte(`{"org_id":"org-1","type":"NOPE"}`)), ErrDrop)

	eng.err = errors.New("db down")
	err = handle(ctx, raw)
	assert.EqualError(t, err, "db down")
	assert.NotErrorIs(t, err, ErrDrop, "storage failures are redelivered")
}

func TestJobNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewJobNotifier(pub)
	job := &model.FulfillmentJob{
		ID:          "job-1",
		OrgID:       "org-1",
		OrderID:     "o-1",
		SourceSKU:   "SKU-1",
		TargetSKU:   "AMZ-1",
		Quantity:    2,
		TargetPrice: decimal.NewFromInt(1800),
		Status:      model.JobPending,
	}
	order := &model.Order{ID: "o-1", OrgID: "org-1", ShippingAddress: datatypes.NewJSONType(model.Address{Name: "Tan", City: "Singapore", Country: "SG"})}

	n.JobQueued(context.Background(), job.Payload(order))
	job.Status = model.JobCompleted
	n.JobTransitioned(context.Background(), job)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, SubjectJobSubmit, pub.msgs[0].subject)
	submitted := pub.msgs[0].data.(model.JobPayload)
	assert.Equal(t, "job-1", submitted.JobID)
	assert.Equal(t, "org-1", submitted.OrgID)
	assert.Equal(t, "o-1", submitted.OrderID)
	assert.Equal(t, "SKU-1", submitted.SourceSKU)
	assert.Equal(t, "AMZ-1", submitted.TargetSKU)
	assert.Equal(t, 2, submitted.Quantity)
	assert.True(t, submitted.TargetPrice.Equal(decimal.NewFromInt(1800)))
	require.NotNil(t, submitted.ShippingAddress)
	assert.Equal(t, "Singapore", submitted.ShippingAddress.City)

	raw, err := json.Marshal(submitted)
	require.NoError(t, err)
	for _, key := range []string{"job_id", "org_id", "order_id", "source_sku", "target_sku", "quantity", "target_price", "shipping_address"} {
		assert.Contains(t, string(raw), `"`+key+`"`)
	}
	assert.Equal(t, "fulfillment.jobs.completed", pub.msgs[1].subject)

	pub.err = errors.New("nats down")
	assert.NotPanics(t, func() { n.JobQueued(context.Background(), job.Payload(nil)) })
}

func TestJobSubmitConsumerWakesPool(t *testing.T) {
	w := &countingWaker{}
	handle := JobSubmitConsumer(w)

	require.NoError(t, handle(context.Background(), []byte(`{"job_id":"job-1"}`)))
	assert.Equal(t, 1, w.n)
	assert.ErrorIs(t, handle(context.Background(), []byte("garbage")), ErrDrop)
	assert.Equal(t, 1, w.n)
}

func TestBusNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewBusNotifier(pub)

	require.NoError(t, n.Notify(context.Background(), model.Notification{OrgID: "org-1", Channel: model.ChannelEmail, Message: "hi"}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "notifications.email", pub.msgs[0].subject)
}

func TestStreamsCoverEverySubject(t *testing.T) {
	subjects := map[string]bool{}
	for _, s := range Streams() {
		for _, subj := range s.Subjects {
			subjects[subj] = true
		}
	}
	assert.True(t, subjects["events.>"])
	assert.True(t, subjects["fulfillment.>"])
	assert.True(t, subjects["notifications.>"])
}
