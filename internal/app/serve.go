package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/internal/api"
	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/internal/repository"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// shutdownTimeout bounds how long in-flight requests may run once the server is stopping.
const shutdownTimeout = 15 * time.Second

func newTransactionManager(resolver database.DBConnectionResolver, cfg *config.Config) tx.TransactionManager {
	return gorm.NewGormTransactionManager(resolver, cfg.Bulkload.Server.TargetDBRef)
}

func newItemRepository(resolver database.DBConnectionResolver, tm tx.TransactionManager, cfg *config.Config) repository.ItemRepository {
	s := cfg.Bulkload.Server
	return repository.NewItemRepository(resolver, s.TargetDBRef, tm, s.BulkInsertBatchSize)
}

func newMovieRepository(resolver database.DBConnectionResolver, cfg *config.Config) repository.MovieRepository {
	return repository.NewMovieRepository(resolver, cfg.Bulkload.Server.TargetDBRef)
}

// RouterParams are the Fx inputs of NewRouter.
type RouterParams struct {
	fx.In
	Cfg      *config.Config
	Resolver database.DBConnectionResolver
	Items    *api.ItemHandler
	Movies   *api.MovieHandler
	Recorder metrics.MetricRecorder
	Gatherer prometheus.Gatherer
}

// NewRouter builds the API handler. The health check resolves the API connection, which pings it.
func NewRouter(p RouterParams) *api.Server {
	s := p.Cfg.Bulkload.Server
	health := func(ctx context.Context) error {
		_, err := p.Resolver.ResolveDBConnection(ctx, s.TargetDBRef)
		return err
	}
	handler := api.NewRouter(p.Items, p.Movies, api.Options{
		Health:       health,
		Recorder:     p.Recorder,
		Gatherer:     p.Gatherer,
		MetricsPath:  p.Cfg.Bulkload.Observability.Metrics.Path,
		MaxBodyBytes: s.MaxBodyBytes,
	})
	return api.NewServer(s, handler)
}

// migrateAPI creates the items and movies tables when server.auto_migrate is set.
func migrateAPI(ctx context.Context, resolver database.DBConnectionResolver, cfg *config.Config) error {
	s := cfg.Bulkload.Server
	if !s.AutoMigrate {
		return nil
	}
	conn, err := resolver.ResolveDBConnection(ctx, s.TargetDBRef)
	if err != nil {
		return err
	}
	if err := conn.AutoMigrate(ctx, &entity.Item{}, &entity.Movie{}); err != nil {
		return database.ClassifyError(moduleName, "failed to migrate API tables", err)
	}
	logger.Infof("API tables are up to date on '%s'.", s.TargetDBRef)
	return nil
}

func registerServer(lc fx.Lifecycle, srv *api.Server, resolver database.DBConnectionResolver, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := migrateAPI(ctx, resolver, cfg); err != nil {
				return err
			}
			return srv.Start(ctx)
		},
		OnStop: srv.Shutdown,
	})
}

// ServeModule provides the HTTP API.
var ServeModule = fx.Options(
	fx.Provide(
		newTransactionManager,
		newItemRepository,
		newMovieRepository,
		api.NewItemHandler,
		api.NewMovieHandler,
		NewRouter,
	),
	fx.Invoke(registerServer),
)

// RunServer serves the API until ctx is cancelled, then drains in-flight requests.
func RunServer(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	app := fx.New(
		commonModules(cfg),
		ServeModule,
	)
	if err := app.Start(ctx); err != nil {
		return exception.NewBatchError(moduleName, exception.KindConfig, "failed to start the API server", err)
	}

	<-ctx.Done()
	logger.Infof("Stop requested.")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return app.Stop(stopCtx)
}
