package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShopPilot/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// ErrDrop a handler returns it for messages that can never be processed; they are terminated, not redelivered
var ErrDrop = errors.New("drop message")

// Publisher JSON publishing side of the bus
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// NATSClient JetStream connection with stream setup and pull consumers
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	durable   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.Consumer
	wg        sync.WaitGroup
	mu        sync.RWMutex
	log       *zap.Logger
}

// MessageHandler processes one message payload
type MessageHandler func(ctx context.Context, data []byte) error

// NewNATSClient connects and makes sure the streams exist. durable prefixes consumer names.
func NewNATSClient(natsURL, durable string) (*NATSClient, error) {
	log := logger.Named("nats")

	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		durable:   durable,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.Consumer),
		log:       log,
	}

	if err := client.setupStreams(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Streams the streams this service owns
func Streams() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        StreamEvents,
			Subjects:    []string{"events.>"},
			Description: "business events for the automation engine",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     1_000_000,
			MaxBytes:    1024 * 1024 * 1024,
			MaxAge:      7 * 24 * time.Hour,
		},
		{
			Name:        StreamFulfillment,
			Subjects:    []string{"fulfillment.>"},
			Description: "fulfillment job submissions and transitions",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     500_000,
			MaxBytes:    512 * 1024 * 1024,
			MaxAge:      30 * 24 * time.Hour,
		},
		{
			Name:        StreamNotifications,
			Subjects:    []string{"notifications.>"},
			Description: "outbound notifications",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100_000,
			MaxBytes:    100 * 1024 * 1024,
			MaxAge:      3 * 24 * time.Hour,
		},
	}
}

func (c *NATSClient) setupStreams() error {
	for _, cfg := range Streams() {
		if _, err := c.jetStream.CreateOrUpdateStream(c.ctx, cfg); err != nil {
			return fmt.Errorf("create or update stream %s: %w", cfg.Name, err)
		}
		c.log.Info("Stream ready", zap.String("stream", cfg.Name))
	}
	return nil
}

// Publish data as raw bytes, string, or JSON for anything else
func (c *NATSClient) Publish(subject string, data interface{}) error {
	var payload []byte
	var err error

	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}

	if _, err = c.jetStream.Publish(c.ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	c.log.Debug("Published", zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

// Subscribe durable pull consumer on streamName filtered to filterSubject
func (c *NATSClient) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	name := consumerName
	if c.durable != "" {
		name = c.durable + "-" + consumerName
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, jetstream.ConsumerConfig{
		Durable:       name,
		Description:   consumerName + " consumer",
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    10,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", name, err)
	}

	c.mu.Lock()
	c.consumers[name] = consumer
	c.mu.Unlock()

	iter, err := consumer.Messages(jetstream.PullMaxMessages(10))
	if err != nil {
		return fmt.Errorf("open message iterator for %s: %w", name, err)
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		iter.Stop()
	}()
	go func() {
		defer c.wg.Done()
		c.consumeMessages(iter, name, handler)
	}()

	c.log.Info("Subscribed",
		zap.String("subject", filterSubject),
		zap.String("stream", streamName),
		zap.String("consumer", name))
	return nil
}

func (c *NATSClient) consumeMessages(iter jetstream.MessagesContext, name string, handler MessageHandler) {
	log := c.log.With(zap.String("consumer", name))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Consumer panicked", zap.Any("panic", r))
		}
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if c.ctx.Err() != nil {
				log.Info("Consumer stopped")
				return
			}
			if errors.Is(err, jetstream.ErrNoMessages) {
				continue
			}
			log.Warn("Fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		c.handle(log, msg, handler)
	}
}

func (c *NATSClient) handle(log *zap.Logger, msg jetstream.Msg, handler MessageHandler) {
	err := handler(c.ctx, msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn("Ack failed", zap.Error(ackErr))
		}
	case errors.Is(err, ErrDrop):
		log.Warn("Dropping message", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
	default:
		log.Error("Handler failed, message will be redelivered", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Nak()
	}
}

// DeleteConsumer removes a durable consumer
func (c *NATSClient) DeleteConsumer(streamName, consumerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.jetStream.DeleteConsumer(c.ctx, streamName, consumerName); err != nil {
		return fmt.Errorf("delete consumer %s: %w", consumerName, err)
	}
	delete(c.consumers, consumerName)
	return nil
}

// Close stops the consumers and drains the connection
func (c *NATSClient) Close() error {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.consumers = make(map[string]jetstream.Consumer)
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
	c.log.Info("NATS connection closed")
	return nil
}

// IsConnected readiness probe
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
