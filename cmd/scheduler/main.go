package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ShopPilot/pkg/bootstrap"
	"ShopPilot/pkg/logger"

	"go.uber.org/zap"
)

// scheduler emits DAILY_SCHEDULE and WEEKLY_SCHEDULE events on their cron specs
func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Log.Fatal("Failed to load config", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Named("scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()

	sched, err := app.Scheduler()
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info("Shutting down scheduler", zap.String("signal", sig.String()))
	sched.Stop()
}
