package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ShopPilot/pkg/bootstrap"
	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/messaging"

	"go.uber.org/zap"
)

// engine consumes business events from the bus and runs the automation rules
func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Log.Fatal("Failed to load config", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Named("engine")

	if !cfg.NATS.Enabled {
		log.Fatal("The engine consumer needs nats.enabled; without a bus events are evaluated by the API process")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()
	app.StartHealthChecks(ctx)

	if err := app.NATS.Subscribe(messaging.StreamEvents, "engine", "events.>", messaging.EventConsumer(app.Engine)); err != nil {
		log.Fatal("Failed to subscribe to events", zap.Error(err))
	}
	log.Info("Automation engine consuming events", zap.Int("rule_concurrency", cfg.Engine.RuleConcurrency))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info("Shutting down automation engine", zap.String("signal", sig.String()))
}
