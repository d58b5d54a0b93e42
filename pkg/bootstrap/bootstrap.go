// Package bootstrap builds the object graph shared by the ShopPilot binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"ShopPilot/pkg/api"
	appaws "ShopPilot/pkg/aws"
	"ShopPilot/pkg/config"
	"ShopPilot/pkg/database"
	"ShopPilot/pkg/engine"
	"ShopPilot/pkg/fulfillment"
	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/marketplace"
	"ShopPilot/pkg/messaging"
	"ShopPilot/pkg/metrics"
	"ShopPilot/pkg/model"
	"ShopPilot/pkg/monitor"
	"ShopPilot/pkg/notification"
	"ShopPilot/pkg/quota"
	"ShopPilot/pkg/repository"
	"ShopPilot/pkg/scheduler"
	"ShopPilot/pkg/vault"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
)

// RuleStore rules, executions and the scheduler's org listing
type RuleStore interface {
	api.RuleStore
	engine.RuleSource
	engine.ExecutionSink
	scheduler.OrgLister
}

// SettingsStore fulfillment settings and mappings
type SettingsStore interface {
	api.SettingsStore
	fulfillment.MappingLookup
}

// OrderStore orders read by fulfillment and tagged by rules
type OrderStore interface {
	fulfillment.OrderReader
	engine.OrderTagger
}

// Stores persistence backends, memory or postgres
type Stores struct {
	Rules    RuleStore
	Settings SettingsStore
	Jobs     fulfillment.JobStore
	Orders   OrderStore
	Products engine.PriceAdjuster
	Tasks    engine.TaskCreator
	Quota    fulfillment.QuotaCounter
}

// App wired components of one process
type App struct {
	Config      *config.Config
	Stores      Stores
	DB          *database.PostgresDB
	NATS        *messaging.NATSClient
	Metrics     *metrics.Collector
	Monitor     *monitor.Monitor
	Vault       *vault.Vault
	Marketplace *marketplace.Client
	Notifier    *notification.Router
	Engine      *engine.AutomationEngine
	Service     *fulfillment.Service

	log     *zap.Logger
	closers []func() error
}

// New connects every backend named by cfg and wires the engine and the fulfillment service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewCollector(),
		log:     logger.Named("bootstrap"),
	}
	app.Monitor = monitor.NewMonitor(func(component, status, message string) {
		app.log.Warn("Component degraded",
			zap.String("component", component),
			zap.String("status", status),
			zap.String("message", message))
	})

	steps := []func(context.Context) error{
		app.initStores,
		app.initQuota,
		app.initMessaging,
		app.initVault,
		app.initNotifier,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	app.Marketplace = marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.APIKey, cfg.Marketplace.Timeout)

	app.Service = fulfillment.NewService(fulfillment.Deps{
		Jobs:     app.Stores.Jobs,
		Configs:  app.Stores.Settings,
		Mappings: app.Stores.Settings,
		Orders:   app.Stores.Orders,
		Quoter:   app.Marketplace,
		Currency: fulfillment.NewStaticRates(cfg.Currency.Base, cfg.Currency.Rates),
		Quota:    app.Stores.Quota,
		Recorder: app.Metrics,
	})
	if app.NATS != nil {
		app.Service.AddNotifier(messaging.NewJobNotifier(app.NATS))
	}

	dispatcher := engine.NewDispatcher()
	engine.RegisterDefaultHandlers(dispatcher, engine.HandlerDeps{
		Prices:      app.Stores.Products,
		Tasks:       app.Stores.Tasks,
		Notifier:    app.Notifier,
		Orders:      app.Stores.Orders,
		Fulfillment: app.Service,
	})
	app.Engine = engine.NewAutomationEngine(app.Stores.Rules, app.Stores.Rules, dispatcher,
		engine.WithConcurrency(cfg.Engine.RuleConcurrency),
		engine.WithRecorder(app.Metrics),
	)

	return app, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Config.Store.Backend {
	case "memory":
		repo := repository.NewRepository()
		a.Stores = Stores{
			Rules:    repo,
			Settings: repo,
			Jobs:     repo,
			Orders:   repo,
			Products: repo,
			Tasks:    repo,
			Quota:    repo,
		}
		a.log.Warn("Using the in-memory store; data is lost on restart")
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}

	db, err := database.NewPostgresDB(a.Config)
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if a.Config.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	a.Stores = Stores{
		Rules: struct {
			*database.RuleDB
			*database.ExecutionDB
		}{db.Rules(), db.Executions()},
		Settings: struct {
			*database.ConfigDB
			*database.MappingDB
		}{db.Configs(), db.Mappings()},
		Jobs:     db.Jobs(),
		Orders:   db.Orders(),
		Products: db.Products(),
		Tasks:    db.Tasks(),
		Quota:    db.Quota(),
	}
	a.Monitor.RegisterComponent("postgres")
	a.Monitor.AddProbe("postgres", db.Ping)
	return nil
}

func (a *App) initQuota(ctx context.Context) error {
	switch a.Config.Quota.Backend {
	case "redis":
		counter := quota.NewRedisCounter(a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB)
		if err := counter.Ping(ctx); err != nil {
			_ = counter.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, counter.Close)
		a.Stores.Quota = counter
		a.Monitor.RegisterComponent("redis")
		a.Monitor.AddProbe("redis", counter.Ping)
	case "memory":
		a.Stores.Quota = repository.NewRepository()
	case "postgres", "":
		if a.DB == nil {
			a.log.Warn("Postgres quota requested without the postgres store; counting in the memory store")
		}
	default:
		return fmt.Errorf("unknown quota backend %q", a.Config.Quota.Backend)
	}
	return nil
}

func (a *App) initMessaging(ctx context.Context) error {
	if !a.Config.NATS.Enabled {
		return nil
	}
	nc, err := messaging.NewNATSClient(a.Config.NATS.URL, a.Config.NATS.Durable)
	if err != nil {
		return err
	}
	a.NATS = nc
	a.closers = append(a.closers, nc.Close)
	a.Monitor.RegisterComponent("nats")
	a.Monitor.AddProbe("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	})
	return nil
}

func (a *App) awsConfig(ctx context.Context) (sdkaws.Config, error) {
	return appaws.LoadAWSConfig(ctx, a.Config.AWS.Region, a.Config.AWS.LocalEndpoint)
}

func (a *App) initVault(ctx context.Context) error {
	var backends []vault.Backend

	if a.Config.Vault.LocalKey != "" {
		local, err := vault.NewLocalVault(a.Config.Vault.LocalKey)
		if err != nil {
			return fmt.Errorf("local vault: %w", err)
		}
		backends = append(backends, local)
	}

	switch a.Config.Vault.Backend {
	case "aws":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		sm := vault.NewSecretsManagerVault(awsCfg, a.Config.Vault.SecretPrefix)
		backends = append([]vault.Backend{sm}, backends...)
	case "local", "":
		if len(backends) == 0 {
			return errors.New("local vault needs vault.local_key")
		}
	default:
		return fmt.Errorf("unknown vault backend %q", a.Config.Vault.Backend)
	}

	a.Vault = vault.New(backends[0], backends[1:]...)
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	var fallback notification.Sender = notification.NewLogSender()
	if a.NATS != nil {
		fallback = messaging.NewBusNotifier(a.NATS)
	}
	router := notification.NewRouter(fallback)

	if a.Config.AWS.SNSTopicARN != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		router.Route(notification.NewSNSSender(awsCfg, a.Config.AWS.SNSTopicARN), model.ChannelSNS)
	}
	a.Notifier = router
	return nil
}

// Handlers API handlers over the app; events go to the bus when NATS is enabled
func (a *App) Handlers() *api.Handlers {
	deps := api.Deps{
		Rules:    a.Stores.Rules,
		Settings: a.Stores.Settings,
		Jobs:     a.Service,
		Engine:   a.Engine,
		Vault:    a.Vault,
		Monitor:  a.Monitor,
		Metrics:  a.Metrics.Handler(),
	}
	if a.NATS != nil {
		deps.EventBus = messaging.NewEventPublisher(a.NATS)
	}
	return api.NewHandlers(deps)
}

// WorkerPool purchase workers; queued jobs of this process wake it directly
func (a *App) WorkerPool() *fulfillment.WorkerPool {
	w := a.Config.Worker
	pool := fulfillment.NewWorkerPool(a.Service, a.Vault, a.Marketplace, fulfillment.WorkerConfig{
		Workers:      w.Count,
		PollInterval: w.PollInterval,
		MaxAttempts:  w.MaxAttempts,
		BaseBackoff:  w.BaseBackoff,
		MaxBackoff:   w.MaxBackoff,
	})
	pool.SetHealthReporter(a.Monitor)
	a.Service.AddNotifier(pool)
	return pool
}

// Scheduler schedule triggers; published to the bus when NATS is enabled, else run in-process
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	var sink scheduler.EventSink = scheduler.DirectSink{Handler: a.Engine}
	if a.NATS != nil {
		sink = messaging.NewEventPublisher(a.NATS)
	}
	s := a.Config.Scheduler
	return scheduler.NewScheduler(a.Stores.Rules, sink, scheduler.Config{
		Daily:    s.Daily,
		Weekly:   s.Weekly,
		Timezone: s.Timezone,
	})
}

// StartHealthChecks probes registered components until ctx ends
func (a *App) StartHealthChecks(ctx context.Context) {
	a.Monitor.StartChecking(ctx, 30*time.Second)
}

// Close releases connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadConfig config from CONFIG_PATH or configs/<APP_ENV>/app.yaml, then the global logger
func LoadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Initialize(cfg.App.Env)
	return cfg, nil
}
