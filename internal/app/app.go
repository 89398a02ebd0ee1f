// Package app assembles the entry client from configuration. entryd and entryctl share
// the same wiring and differ only in the surface they put on top.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/form"
	"github.com/DataProRU/Auto-transfers-accounting/internal/application/session"
	"github.com/DataProRU/Auto-transfers-accounting/internal/application/settlement"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/cache"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/config"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/persistence"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/storage"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/telemetry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/handler"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/router"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *telemetry.Metrics
	Client     *api.Client
	Guard      *session.Guard
	References *cache.ReferenceCache
	Invoices   *cache.InvoiceMirror
	Form       *form.Store
	Settlement *settlement.Workflow

	db     *persistence.Database
	tier   *cache.RedisTier
	tracer *telemetry.TracerProvider
	logs   *telemetry.LoggerProvider
}

// New builds the client. The returned App owns its resources; call Close when done.
// A persisted session is restored when one exists.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Metrics: telemetry.NewMetrics()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	if a.logs, err = telemetry.NewLoggerProvider(ctx, telCfg, cfg.Telemetry.LogsEnabled); err != nil {
		return nil, err
	}
	a.Logger = a.logs.Tee(log, logger.ParseLevel(cfg.Telemetry.LogsLevel))

	if a.tracer, err = telemetry.NewTracerProvider(ctx, telCfg, a.Logger); err != nil {
		return nil, err
	}

	a.db, err = persistence.NewDatabase(cfg.Session,
		persistence.WithLogger(a.Logger, logger.GormLevel(cfg.Log.Level)),
		persistence.WithTracing(cfg.Telemetry.Enabled),
	)
	if err != nil {
		return nil, err
	}
	creds, err := persistence.NewCredentialStore(a.db)
	if err != nil {
		return nil, err
	}

	retry := api.DefaultRetryConfig()
	retry.MaxRetries = cfg.Backend.MaxRetries
	retry.RetryDelay = cfg.Backend.RetryDelay

	var guard *session.Guard
	tokens := api.TokenFunc(func() string { return guard.Token() })
	a.Client, err = api.NewClient(api.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.Timeout,
		RateLimit:     cfg.Backend.RateLimit,
		Burst:         cfg.Backend.Burst,
		UserAgent:     cfg.Backend.UserAgent,
		TLSSkipVerify: cfg.Backend.TLSSkipVerify,
	}, tokens,
		api.WithLogger(a.Logger.Named("backend")),
		api.WithObserver(a.Metrics),
		api.WithRetry(retry),
		api.WithTracer(a.tracer.Provider()),
	)
	if err != nil {
		return nil, err
	}

	guard = session.NewGuard(a.Client, creds, session.Config{
		PollInterval:  cfg.Auth.PollInterval,
		RefreshBefore: cfg.Auth.RefreshBefore,
	}, session.WithLogger(a.Logger.Named("session")), session.WithRecorder(a.Metrics))
	a.Guard = guard

	catalog := cfg.OperationCatalog()
	cacheOpts := []cache.Option{cache.WithLogger(a.Logger.Named("reference"))}
	if cfg.Redis.Enabled {
		a.tier, err = cache.NewRedisTier(ctx, cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.KeyPrefix,
		})
		if err != nil {
			a.Logger.Warn("shared reference cache unavailable, using process cache only", zap.Error(err))
			a.tier, err = nil, nil
		} else {
			cacheOpts = append(cacheOpts, cache.WithTier(a.tier, cfg.Redis.TTL))
		}
	}
	a.References = cache.NewReferenceCache(a.Client, catalog, cacheOpts...)
	a.Invoices = cache.NewInvoiceMirror(a.Client, a.Logger.Named("invoices"))

	docs, err := storage.NewTempStore(cfg.Storage.TempDir, a.Logger.Named("documents"))
	if err != nil {
		return nil, err
	}
	wfOpts := []settlement.Option{
		settlement.WithCatalog(catalog),
		settlement.WithRecorder(a.Metrics),
		settlement.WithLogger(a.Logger.Named("settlement")),
		settlement.WithRefresh(func(ctx context.Context) error {
			_, err := a.Invoices.Refresh(ctx)
			return err
		}),
	}
	if cfg.Storage.ShareEnabled {
		sharer, err := storage.NewS3Sharer(ctx, storage.ShareConfig{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			Prefix:       cfg.Storage.Prefix,
			UsePathStyle: cfg.Storage.UsePathStyle,
			LinkTTL:      cfg.Storage.LinkTTL,
		}, a.Logger.Named("share"))
		if err != nil {
			return nil, err
		}
		if err := sharer.EnsureBucket(ctx); err != nil {
			a.Logger.Warn("share bucket check failed", zap.Error(err))
		}
		wfOpts = append(wfOpts, settlement.WithSharer(sharer))
	}
	a.Settlement = settlement.NewWorkflow(a.Client, docs, wfOpts...)

	a.Form = form.NewStore(formBackend{Client: a.Client, invoices: a.Invoices}, a.References, guard, form.Config{
		SuccessTTL: cfg.Form.SuccessTTL,
		ErrorTTL:   cfg.Form.ErrorTTL,
	},
		form.WithSettlement(a.Settlement),
		form.WithRecorder(a.Metrics),
		form.WithLogger(a.Logger.Named("form")),
	)

	a.wire()

	if err := guard.Restore(ctx); err != nil && !errors.Is(err, shared.ErrNoSession) {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return a, nil
}

// formBackend submits through the client. The invoice lookup after an invoice
// submission refetches, so the mirror includes the invoice just created.
type formBackend struct {
	*api.Client
	invoices *cache.InvoiceMirror
}

func (b formBackend) Invoices(ctx context.Context) (invoice.List, error) {
	return b.invoices.Refresh(ctx)
}

// wire connects the teardown and settlement listeners.
func (a *App) wire() {
	a.Client.OnUnauthorized(func() {
		a.Guard.Evict(context.Background(), session.ReasonUnauthorized)
	})
	a.Guard.OnTeardown(func(ctx context.Context, reason string) {
		a.References.Invalidate(ctx)
		a.Invoices.Invalidate()
		a.Settlement.Close()
		a.Form.Teardown(ctx, reason)
	})
	a.Settlement.OnConfirm(a.Form.MarkPaid)
	a.Settlement.OnClose(a.Form.ReleaseSuccess)
}

// Router builds the entryd HTTP engine.
func (a *App) Router() *gin.Engine {
	return router.NewRouter(router.Config{
		ServiceName: a.Config.Telemetry.ServiceName,
		Logger:      a.Logger.Named("http"),
		Tracer:      a.tracer.Provider(),
		Metrics:     a.Metrics.Handler(),
	}).
		Health(handler.NewHealthHandler(map[string]handler.Pinger{"session_store": a.db})).
		Public(handler.NewSessionHandler(a.Guard)).
		Protected(a.Guard,
			handler.NewFormHandler(a.Form),
			handler.NewInvoiceHandler(a.Invoices, a.Settlement),
			handler.NewSettlementHandler(a.Settlement, a.Invoices),
		).
		Setup()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Settlement != nil {
		a.Settlement.Close()
	}
	if a.tier != nil {
		errs = append(errs, a.tier.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
