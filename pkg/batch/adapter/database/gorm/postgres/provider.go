// Package postgres registers the PostgreSQL dialector and provides the PostgreSQL DBProvider.
package postgres

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
)

const dbType = "postgres"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a libpq keyword/value connection string for cfg.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		"host=" + quote(c.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + quote(c.User),
		"password=" + quote(c.Password),
		"dbname=" + quote(c.Database),
		"sslmode=" + sslmode,
	}
	if c.Schema != "" {
		parts = append(parts, "search_path="+quote(c.Schema))
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quote(c.Params[k]))
	}
	return strings.Join(parts, " ")
}

// quote escapes a keyword/value connection string value.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Provider implements database.DBProvider for PostgreSQL.
type Provider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}

// Module adds the PostgreSQL DBProvider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.As(new(database.DBProvider)),
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
