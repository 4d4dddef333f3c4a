// Package mysql registers the MySQL dialector and provides the MySQL DBProvider.
package mysql

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
)

const dbType = "mysql"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the go-sql-driver DSN for cfg. Dates are parsed into time.Time
// and the connection uses utf8mb4.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = time.Local
	dc.Timeout = 10 * time.Second
	dc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range c.Params {
		dc.Params[k] = v
	}
	return dc.FormatDSN()
}

// Provider implements database.DBProvider for MySQL.
type Provider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}

// Module adds the MySQL DBProvider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.As(new(database.DBProvider)),
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
