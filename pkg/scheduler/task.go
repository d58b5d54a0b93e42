package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OrgLister orgs that have an ACTIVE rule for a trigger
type OrgLister interface {
	ListOrgsWithActiveRules(ctx context.Context, trigger model.TriggerType) ([]string, error)
}

// EventSink where synthesized schedule events go: the bus or the engine itself
type EventSink interface {
	PublishEvent(ctx context.Context, ev model.Event) error
}

// EventHandler the automation engine
type EventHandler interface {
	OnEvent(ctx context.Context, ev model.Event) ([]model.Execution, error)
}

// DirectSink runs events through the engine in-process
type DirectSink struct {
	Handler EventHandler
}

func (d DirectSink) PublishEvent(ctx context.Context, ev model.Event) error {
	_, err := d.Handler.OnEvent(ctx, ev)
	return err
}

// Config cron specs are standard five-field expressions evaluated in Timezone
type Config struct {
	Daily    string
	Weekly   string
	Timezone string
	// Timeout bounds one tick
	Timeout time.Duration
}

// Scheduler synthesizes DAILY_SCHEDULE and WEEKLY_SCHEDULE events once per period
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	loc     *time.Location
	orgs    OrgLister
	sink    EventSink
	now     func() time.Time
	log     *zap.Logger
	stopped chan struct{}
}

// NewScheduler fails on an unknown timezone or a bad cron spec
func NewScheduler(orgs OrgLister, sink EventSink, cfg Config) (*Scheduler, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		cfg:  cfg,
		loc:  loc,
		orgs: orgs,
		sink: sink,
		now:  time.Now,
		log:  logger.Named("scheduler"),
	}

	jobs := []struct {
		spec    string
		trigger model.TriggerType
	}{
		{cfg.Daily, model.TriggerDailySchedule},
		{cfg.Weekly, model.TriggerWeeklySchedule},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		trigger := j.trigger
		if _, err := s.cron.AddFunc(j.spec, func() { s.run(trigger) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", trigger, j.spec, err)
		}
	}
	return s, nil
}

// Start runs the cron in the background
func (s *Scheduler) Start() {
	s.log.Info("Scheduler started",
		zap.String("daily", s.cfg.Daily),
		zap.String("weekly", s.cfg.Weekly),
		zap.String("timezone", s.loc.String()))
	s.cron.Start()
}

// Stop waits for running ticks
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) run(trigger model.TriggerType) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	n, err := s.Tick(ctx, trigger)
	if err != nil {
		s.log.Error("Schedule tick failed", zap.String("trigger", string(trigger)), zap.Int("emitted", n), zap.Error(err))
		return
	}
	s.log.Info("Schedule tick", zap.String("trigger", string(trigger)), zap.Int("emitted", n))
}

// Tick emits one event per org with an ACTIVE rule for trigger. A failing org does not stop the others.
func (s *Scheduler) Tick(ctx context.Context, trigger model.TriggerType) (int, error) {
	if !trigger.IsSchedule() {
		return 0, fmt.Errorf("%s is not a schedule trigger", trigger)
	}
	orgs, err := s.orgs.ListOrgsWithActiveRules(ctx, trigger)
	if err != nil {
		return 0, err
	}

	now := s.now().In(s.loc)
	period := Period(trigger, now)

	var errs []error
	emitted := 0
	for _, org := range orgs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ev := model.Event{
			ID:         eventID(trigger, org, period),
			OrgID:      org,
			Type:       trigger,
			OccurredAt: now.UTC(),
			Payload: map[string]interface{}{
				"scheduled_at": now.Format(time.RFC3339),
				"period":       period,
				"date":         now.Format("2006-01-02"),
				"weekday":      now.Weekday().String(),
				"timezone":     s.loc.String(),
			},
		}
		if err := s.sink.PublishEvent(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("org %s: %w", org, err))
			continue
		}
		emitted++
	}
	return emitted, errors.Join(errs...)
}

// Period the day (2006-01-02) or ISO week (2006-W01) an event stands for
func Period(trigger model.TriggerType, t time.Time) string {
	if trigger == model.TriggerWeeklySchedule {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return t.Format("2006-01-02")
}

// eventID stable per org and period so a repeated tick is recognizable
func eventID(trigger model.TriggerType, org, period string) string {
	id := fmt.Sprintf("%s:%s:%s", strings.ToLower(string(trigger)), org, period)
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}
