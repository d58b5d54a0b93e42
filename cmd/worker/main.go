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

// worker runs the fulfillment purchase pool as its own process
func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Log.Fatal("Failed to load config", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Named("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()
	app.StartHealthChecks(ctx)

	pool := app.WorkerPool()
	if app.NATS != nil {
		// jobs queued by other processes wake the pool before the next poll
		if err := app.NATS.Subscribe(messaging.StreamFulfillment, "worker-wake", messaging.SubjectJobSubmit, messaging.JobSubmitConsumer(pool)); err != nil {
			log.Fatal("Failed to subscribe to job submissions", zap.Error(err))
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Shutting down worker pool", zap.String("signal", sig.String()))
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("Worker pool stopped", zap.Error(err))
		}
	}
}
