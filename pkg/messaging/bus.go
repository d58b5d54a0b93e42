package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"go.uber.org/zap"
)

const (
	StreamEvents        = "EVENTS"
	StreamFulfillment   = "FULFILLMENT"
	StreamNotifications = "NOTIFICATIONS"

	SubjectJobSubmit = "fulfillment.jobs.submit"
)

// EventSubject events.<org>.<trigger type>
func EventSubject(ev model.Event) string {
	return "events." + token(ev.OrgID) + "." + strings.ToLower(string(ev.Type))
}

// JobSubject fulfillment.jobs.<status>
func JobSubject(status model.JobStatus) string {
	return "fulfillment.jobs." + strings.ToLower(string(status))
}

// NotificationSubject notifications.<channel>
func NotificationSubject(ch model.NotificationChannel) string {
	return "notifications." + strings.ToLower(string(ch))
}

// token keeps a value usable as a single subject token
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

// EventPublisher hands events to the bus instead of the engine
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) PublishEvent(_ context.Context, ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return p.pub.Publish(EventSubject(ev), ev)
}

// EventHandler the automation engine
type EventHandler interface {
	OnEvent(ctx context.Context, ev model.Event) ([]model.Execution, error)
}

// EventConsumer decodes bus events into engine calls
func EventConsumer(h EventHandler) MessageHandler {
	log := logger.Named("event-consumer")
	return func(ctx context.Context, data []byte) error {
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("%w: decode event: %v", ErrDrop, err)
		}
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrDrop, err)
		}

		execs, err := h.OnEvent(ctx, ev)
		if err != nil {
			return err
		}
		log.Debug("Event processed",
			zap.String("event_id", ev.ID),
			zap.String("org_id", ev.OrgID),
			zap.String("type", string(ev.Type)),
			zap.Int("executions", len(execs)))
		return nil
	}
}

// JobNotifier publishes queue activity; implements fulfillment.JobNotifier
type JobNotifier struct {
	pub Publisher
	log *zap.Logger
}

func NewJobNotifier(pub Publisher) *JobNotifier {
	return &JobNotifier{pub: pub, log: logger.Named("job-notifier")}
}

func (n *JobNotifier) JobQueued(_ context.Context, payload model.JobPayload) {
	if err := n.pub.Publish(SubjectJobSubmit, payload); err != nil {
		n.log.Warn("Publish job submit failed", zap.String("job_id", payload.JobID), zap.Error(err))
	}
}

func (n *JobNotifier) JobTransitioned(_ context.Context, job *model.FulfillmentJob) {
	if err := n.pub.Publish(JobSubject(job.Status), job); err != nil {
		n.log.Warn("Publish job transition failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Waker worker pool side of job wake-ups
type Waker interface {
	Wake()
}

// JobSubmitConsumer wakes the worker pool when a job is queued anywhere
func JobSubmitConsumer(w Waker) MessageHandler {
	return func(_ context.Context, data []byte) error {
		var payload model.JobPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("%w: decode job payload: %v", ErrDrop, err)
		}
		w.Wake()
		return nil
	}
}

// BusNotifier delivers notifications by publishing them for downstream senders
type BusNotifier struct {
	pub Publisher
}

func NewBusNotifier(pub Publisher) *BusNotifier {
	return &BusNotifier{pub: pub}
}

func (n *BusNotifier) Notify(_ context.Context, msg model.Notification) error {
	return n.pub.Publish(NotificationSubject(msg.Channel), msg)
}
