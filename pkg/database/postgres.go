package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ShopPilot/pkg/config"
	"ShopPilot/pkg/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresDB gorm connection shared by the per-table stores
type PostgresDB struct {
	db *gorm.DB
}

// NewPostgresDB connects, tunes the pool and optionally migrates
func NewPostgresDB(cfg *config.Config) (*PostgresDB, error) {
	level := gormlogger.Warn
	if cfg.IsProduction() {
		level = gormlogger.Error
	}

	p, err := Open(postgres.Open(cfg.PostgresDSN()), level)
	if err != nil {
		return nil, err
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := p.Migrate(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Open wraps an existing dialector; tests pass a sqlmock-backed one
func Open(dialector gorm.Dialector, level gormlogger.LogLevel) (*PostgresDB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(level),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

// activeJobIndex at most one non-terminal job per line item
const activeJobIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_line_item
	ON fulfillment_jobs (org_id, order_id, line_item_id)
	WHERE status IN ('PENDING', 'EVALUATING', 'APPROVED', 'PURCHASING')`

// Migrate creates tables and the partial unique index on active jobs
func (p *PostgresDB) Migrate() error {
	err := p.db.AutoMigrate(
		&model.AutomationRule{},
		&model.Execution{},
		&model.FulfillmentConfig{},
		&model.FulfillmentJob{},
		&model.SkuMapping{},
		&model.DailyQuotaCounter{},
		&model.Order{},
		&model.Product{},
		&model.Task{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := p.db.Exec(activeJobIndex).Error; err != nil {
		return fmt.Errorf("create active job index: %w", err)
	}
	return nil
}

// Ping readiness probe
func (p *PostgresDB) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func duplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func paginate(db *gorm.DB, limit, offset int) *gorm.DB {
	limit, offset = model.NormalizePage(limit, offset)
	return db.Limit(limit).Offset(offset)
}
