// Package sqlite registers the SQLite dialector and provides the SQLite DBProvider.
package sqlite

import (
	"errors"
	"net/url"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
)

const dbType = "sqlite"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the database file path with driver parameters. A busy timeout is
// always set so concurrent writers wait for the file lock instead of failing immediately.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	for k, v := range c.Params {
		params.Set(k, v)
	}
	return c.Database + "?" + params.Encode()
}

// Provider implements database.DBProvider for SQLite.
type Provider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}

// Module adds the SQLite DBProvider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.As(new(database.DBProvider)),
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
