package app

import (
	"context"
	"io"

	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/tuning"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage"
	"github.com/tigerroll/bulkload/pkg/batch/component/step/reader"
	"github.com/tigerroll/bulkload/pkg/batch/component/step/writer"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/core/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/engine/step/item"
	"github.com/tigerroll/bulkload/pkg/batch/engine/step/partition"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "app"

// IngestorParams are the Fx inputs of NewIngestor.
type IngestorParams struct {
	fx.In
	Cfg      *config.Config
	Resolver database.DBConnectionResolver
	Storage  *storage.Resolver
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// Ingestor runs the configured dataset into the sink table.
type Ingestor struct {
	cfg      config.IngestConfig
	resolver database.DBConnectionResolver
	storage  *storage.Resolver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewIngestor creates an Ingestor.
func NewIngestor(p IngestorParams) *Ingestor {
	return &Ingestor{
		cfg:      p.Cfg.Bulkload.Ingest,
		resolver: p.Resolver,
		storage:  p.Storage,
		recorder: p.Recorder,
		tracer:   p.Tracer,
	}
}

// Run performs one ingestion run and returns it in its terminal state. The error is the run's
// aggregated failure, nil iff the run is DONE. Cancelling ctx stops the run between batches.
func (i *Ingestor) Run(ctx context.Context) (*model.IngestionRun, error) {
	in := i.cfg
	run := model.NewIngestionRun(in.Dataset, in.BatchSize, in.Workers)

	conn, err := i.resolver.ResolveDBConnection(ctx, in.TargetDBRef)
	if err != nil {
		return run, i.failPreparing(ctx, run, err)
	}

	tuner := tuning.Tuner(tuning.NopTuner{})
	if in.TuningEnabled {
		t, err := tuning.NewTuner(conn)
		if err != nil {
			return run, i.failPreparing(ctx, run, err)
		}
		tuner = t
	}

	c, err := partition.NewCoordinator(in.Workers,
		partition.WithTuner(in.TargetDBRef, tuner),
		partition.WithMetrics(i.recorder, i.tracer),
	)
	if err != nil {
		return run, err
	}

	w := writer.NewSqlBulkWriter[entity.LargeTableRow]("large_table", writer.BulkSizeFor(conn.Type(), entity.LargeTableColumns, in.BatchSize), in.Table)
	loaderOpts := []item.LoaderOption{
		item.WithDataset(in.Dataset),
		item.WithMetrics(i.recorder, i.tracer),
	}
	if in.TuningEnabled {
		loaderOpts = append(loaderOpts, item.WithTuner(tuner))
	}

	job := partition.Job{
		Run:     run,
		Prepare: func(ctx context.Context) error { return i.prepare(ctx, conn) },
		Open:    func(ctx context.Context) (partition.BatchSource, error) { return i.open(ctx) },
		Loader:  item.NewChunkLoader(conn, w, entity.FromRecord, loaderOpts...),
	}
	return run, c.Run(ctx, job)
}

// failPreparing reports a setup error through the coordinator so the run still passes through
// PREPARING and ends FAILED.
func (i *Ingestor) failPreparing(ctx context.Context, run *model.IngestionRun, setupErr error) error {
	c, err := partition.NewCoordinator(i.cfg.Workers, partition.WithMetrics(i.recorder, i.tracer))
	if err != nil {
		return err
	}
	return c.Run(ctx, partition.Job{
		Run:     run,
		Prepare: func(context.Context) error { return setupErr },
	})
}

// prepare sizes the pool to one connection per worker plus one for tuning and makes sure the
// sink table is usable.
func (i *Ingestor) prepare(ctx context.Context, conn database.DBConnection) error {
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return exception.NewBatchError(moduleName, exception.KindConnection, "failed to get the connection pool", err)
	}
	sqlDB.SetMaxOpenConns(i.cfg.Workers + 1)
	sqlDB.SetMaxIdleConns(i.cfg.Workers + 1)

	if i.cfg.CreateTable && i.cfg.Table == (entity.LargeTableRow{}).TableName() {
		if err := conn.AutoMigrate(ctx, &entity.LargeTableRow{}); err != nil {
			return database.ClassifyError(moduleName, "failed to create the sink table", err)
		}
	}

	if err := conn.ProbeTable(ctx, i.cfg.Table); err != nil {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "sink table %q is not usable", i.cfg.Table, err)
	}
	return nil
}

func (i *Ingestor) open(ctx context.Context) (partition.BatchSource, error) {
	rc, err := i.storage.Open(ctx, i.cfg.Dataset)
	if err != nil {
		return nil, err
	}
	r, err := reader.NewCSVChunkReader(rc, i.cfg.BatchSize)
	if err != nil {
		closeQuietly(rc)
		return nil, err
	}
	return r, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warnf("close: %v", err)
	}
}

// IngestModule provides the Ingestor and what it depends on.
var IngestModule = fx.Options(
	fx.Provide(NewStorageResolver, NewIngestor),
)

// RunIngest builds the ingest application from cfg, performs one run and shuts the application
// down, closing every pooled connection.
func RunIngest(ctx context.Context, cfg *config.Config) (model.RunSummary, error) {
	if err := cfg.ValidateIngest(); err != nil {
		return model.RunSummary{}, err
	}

	var ingestor *Ingestor
	app := fx.New(
		commonModules(cfg),
		IngestModule,
		fx.Populate(&ingestor),
	)
	if err := app.Start(ctx); err != nil {
		return model.RunSummary{}, exception.NewBatchError(moduleName, exception.KindConfig, "failed to start the ingest application", err)
	}
	defer func() {
		if err := app.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("Ingest application shutdown: %v", err)
		}
	}()

	run, err := ingestor.Run(ctx)
	return run.Summary(), err
}
