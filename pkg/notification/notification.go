package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"go.uber.org/zap"
)

// Sender delivers one notification
type Sender interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Router picks a sender by channel; implements engine.Notifier
type Router struct {
	routes   map[model.NotificationChannel]Sender
	fallback Sender
	now      func() time.Time
}

// NewRouter fallback serves channels without a route
func NewRouter(fallback Sender) *Router {
	return &Router{
		routes:   make(map[model.NotificationChannel]Sender),
		fallback: fallback,
		now:      time.Now,
	}
}

// Route registers s for the channels
func (r *Router) Route(s Sender, channels ...model.NotificationChannel) *Router {
	for _, ch := range channels {
		r.routes[ch] = s
	}
	return r
}

func (r *Router) Notify(ctx context.Context, n model.Notification) error {
	if n.Subject == "" {
		n.Subject = Subject(n)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}

	s, ok := r.routes[n.Channel]
	if !ok {
		s = r.fallback
	}
	if s == nil {
		return fmt.Errorf("no sender for channel %s", n.Channel)
	}
	return s.Notify(ctx, n)
}

// Subject first line of the message, shortened
func Subject(n model.Notification) string {
	line, _, _ := strings.Cut(strings.TrimSpace(n.Message), "\n")
	if line == "" {
		line = "Automation notification"
	}
	if len([]rune(line)) > 80 {
		line = string([]rune(line)[:77]) + "..."
	}
	return "[ShopPilot] " + line
}

// LogSender writes notifications to the log
type LogSender struct {
	log *zap.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.Named("notification")}
}

func (l *LogSender) Notify(ctx context.Context, n model.Notification) error {
	l.log.Info("Notification",
		zap.String("org_id", n.OrgID),
		zap.String("rule_id", n.RuleID),
		zap.String("channel", string(n.Channel)),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("message", n.Message))
	return nil
}
