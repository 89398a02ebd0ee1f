// Package persistence keeps the signed-in user's credential across process restarts.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/config"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Database holds the gorm handle of the credential store
type Database struct {
	DB     *gorm.DB
	driver string
}

// Option configures NewDatabase.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	logLevel gormlogger.LogLevel
	tracing  bool
}

// WithLogger routes gorm output to l at the given level.
func WithLogger(l *zap.Logger, level gormlogger.LogLevel) Option {
	return func(o *options) {
		o.logger = l
		o.logLevel = level
	}
}

// WithTracing registers the otelgorm plugin so every statement becomes a span.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracing = enabled }
}

// NewDatabase opens the store selected by cfg.Driver.
func NewDatabase(cfg config.SessionConfig, opts ...Option) (*Database, error) {
	o := options{logger: zap.NewNop(), logLevel: gormlogger.Silent}
	for _, opt := range opts {
		opt(&o)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported session driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(o.logger, o.logLevel, slowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver != "postgres" {
		// an in-memory sqlite database lives and dies with its single connection
		sqlDB.SetMaxOpenConns(1)
	}

	if o.tracing {
		system := "sqlite"
		if cfg.Driver == "postgres" {
			system = "postgresql"
		}
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(system), otelgorm.WithoutQueryVariables())); err != nil {
			return nil, fmt.Errorf("failed to register gorm tracing: %w", err)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping session store: %w", err)
	}
	return &Database{DB: db, driver: cfg.Driver}, nil
}

// Ping checks the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
