// Package app assembles the ingest and serve applications.
package app

import (
	"context"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	inframetrics "github.com/tigerroll/bulkload/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// DBProviderMap maps a DB_ADAPTORS entry to its provider module.
var DBProviderMap = map[string]fx.Option{
	"mysql":    mysql.Module,
	"postgres": postgres.Module,
	"sqlite":   sqlite.Module,
}

// DBProviderOptions selects provider modules from the comma-separated DB_ADAPTORS variable.
// All providers are registered when it is unset.
func DBProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "mysql,postgres,sqlite"
	}
	var options []fx.Option
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m, ok := DBProviderMap[name]; ok {
			options = append(options, m)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// NewStorageResolver registers the local and Cloud Storage dataset openers.
func NewStorageResolver(lc fx.Lifecycle, cfg *config.Config) *storage.Resolver {
	r := storage.NewResolver(local.NewOpener(), gcs.NewOpener(cfg.Bulkload.Storage.GCS))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.Close() }})
	return r
}

// commonModules are shared by every application: container logging, database connections,
// metrics and tracing. cfg is supplied as loaded by the caller.
func commonModules(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		logger.Module,
		fx.Options(DBProviderOptions()...),
		gorm.Module,
		inframetrics.Module,
	)
}
