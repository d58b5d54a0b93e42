package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ShopPilot/pkg/api"
	"ShopPilot/pkg/bootstrap"
	"ShopPilot/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Log.Fatal("Failed to load config", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Named("api")
	log.Info("Starting API server", zap.String("env", cfg.App.Env), zap.String("port", cfg.API.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()
	app.StartHealthChecks(ctx)

	if cfg.Worker.Embedded {
		pool := app.WorkerPool()
		go func() {
			if err := pool.Run(ctx); err != nil {
				log.Error("Worker pool stopped", zap.Error(err))
			}
		}()
		log.Info("Embedded worker pool started", zap.Int("workers", cfg.Worker.Count))
	}

	if cfg.Scheduler.Embedded {
		sched, err := app.Scheduler()
		if err != nil {
			log.Fatal("Failed to create scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	server := api.NewServer(api.ServerConfig{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		Production:   cfg.IsProduction(),
	})
	server.SetupRoutes(app.Handlers())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Shutting down API server", zap.String("signal", sig.String()))
		cancel()
		if err := <-errChan; err != nil {
			log.Error("Server shutdown failed", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			log.Error("Server stopped", zap.Error(err))
		}
	}
}
