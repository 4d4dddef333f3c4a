package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
)

// Module provides the connection resolver over every DBProvider in the db_providers group
// and closes all connections when the application stops. Concrete providers come from the
// mysql, postgres and sqlite subpackage modules.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	}),
)
