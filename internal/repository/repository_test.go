package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/internal/repository"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
)

func newResolver(t *testing.T) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Bulkload.AdapterConfigs["api"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "api.db"),
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { resolver.CloseAll() })

	conn, err := resolver.ResolveDBConnection(context.Background(), "api")
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(context.Background(), &entity.Item{}, &entity.Movie{}))
	return resolver
}

func TestItemRepository_BulkCreateAndList(t *testing.T) {
	resolver := newResolver(t)
	repo := repository.NewItemRepository(resolver, "api", gormadapter.NewGormTransactionManager(resolver, "api"), 2)
	ctx := context.Background()

	in := []entity.Item{
		{Name: "pen", Description: "blue ink", Price: decimal.RequireFromString("1.50"), AvailableQuantity: 10},
		{Name: "cup", Description: "ceramic", Price: decimal.RequireFromString("7.25"), AvailableQuantity: 0},
		{Name: "hat", Description: "wool", Price: decimal.RequireFromString("19.99"), AvailableQuantity: 3},
	}
	created, err := repo.BulkCreate(ctx, in)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, it := range created {
		assert.NotZero(t, it.ID)
	}

	items, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "pen", items[0].Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(items[2].Price))
}

func TestItemRepository_ListEmptyIsNotNil(t *testing.T) {
	resolver := newResolver(t)
	repo := repository.NewItemRepository(resolver, "api", gormadapter.NewGormTransactionManager(resolver, "api"), 1000)
	items, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestMovieRepository_CRUDAndSearch(t *testing.T) {
	resolver := newResolver(t)
	repo := repository.NewMovieRepository(resolver, "api")
	ctx := context.Background()

	movies := []entity.Movie{
		{Title: "Alien", ReleaseDate: entity.NewDate(1979, time.May, 25), Genre: "Horror", Director: "Ridley Scott"},
		{Title: "Heat", ReleaseDate: entity.NewDate(1995, time.December, 15), Genre: "Crime", Director: "Michael Mann"},
		{Title: "Blade Runner", ReleaseDate: entity.NewDate(1982, time.June, 25), Genre: "Sci-Fi", Director: "Ridley Scott"},
	}
	for i := range movies {
		require.NoError(t, repo.Create(ctx, &movies[i]))
		require.NotZero(t, movies[i].ID)
	}

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scott, err := repo.List(ctx, "ridley")
	require.NoError(t, err)
	assert.Len(t, scott, 2)

	both, err := repo.List(ctx, "ridley, sci")
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Blade Runner", both[0].Title)
	assert.Equal(t, "1982-06-25", both[0].ReleaseDate.String())

	none, err := repo.List(ctx, "100%")
	require.NoError(t, err)
	assert.Empty(t, none)

	heat := movies[1]
	heat.Genre = "Thriller"
	require.NoError(t, repo.Update(ctx, &heat))
	got, err := repo.Get(ctx, heat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Thriller", got.Genre)

	require.NoError(t, repo.Delete(ctx, heat.ID))
	_, err = repo.Get(ctx, heat.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, heat.ID), database.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &heat), database.ErrNotFound)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, repository.SearchTerms(" a,b  c,"))
	assert.Empty(t, repository.SearchTerms(" , "))
}
