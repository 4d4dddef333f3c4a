package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	config "github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver implements database.DBConnectionResolver by dispatching to the
// provider registered for the connection's configured type.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider
	cfg         *config.Config
}

// ResolverParams are the Fx inputs of NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver creates a resolver over every provider in the Fx group.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	return NewResolver(p.Cfg, p.DBProviders...)
}

// NewResolver creates a resolver over the given providers.
func NewResolver(cfg *config.Config, providers ...database.DBProvider) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider, len(providers))
	for _, provider := range providers {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{dbProviders: providerMap, cfg: cfg}
}

// ResolveDBConnection returns the named connection, reconnecting once if it fails a ping.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig,
			"DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, err
	}
	if pingErr := conn.Ping(ctx); pingErr != nil {
		logger.Warnf("DBConnectionResolver: connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnected, err := provider.ForceReconnect(name)
		if err != nil {
			return nil, err
		}
		if err := reconnected.Ping(ctx); err != nil {
			return nil, database.ClassifyError(moduleName, "connection '"+name+"' is unreachable", err)
		}
		return reconnected, nil
	}
	return conn, nil
}

// CloseAll closes every connection of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.dbProviders {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
