// Package repository persists the API entities.
package repository

import (
	"context"

	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/component/step/writer"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// ItemRepository reads and bulk-creates items.
type ItemRepository interface {
	ListAll(ctx context.Context) ([]entity.Item, error)
	// BulkCreate inserts items in one transaction and returns them with their ids.
	// Either every item is stored or none is.
	BulkCreate(ctx context.Context, items []entity.Item) ([]entity.Item, error)
}

type itemRepository struct {
	resolver database.DBConnectionResolver
	dbName   string
	tm       tx.TransactionManager
	writer   *writer.SqlBulkWriter[entity.Item]
}

// NewItemRepository creates an ItemRepository on connection dbName. Inserts are split into
// statements of at most batchSize rows, all inside the same transaction.
func NewItemRepository(resolver database.DBConnectionResolver, dbName string, tm tx.TransactionManager, batchSize int) ItemRepository {
	return &itemRepository{
		resolver: resolver,
		dbName:   dbName,
		tm:       tm,
		writer:   writer.NewSqlBulkWriter[entity.Item]("items", batchSize, entity.Item{}.TableName()),
	}
}

func (r *itemRepository) ListAll(ctx context.Context) ([]entity.Item, error) {
	conn, err := r.resolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, err
	}
	items := []entity.Item{}
	if err := conn.ExecuteQuery(ctx, &items, database.Query{OrderBy: "id"}); err != nil {
		return nil, database.ClassifyError("item_repository", "failed to list items", err)
	}
	return items, nil
}

func (r *itemRepository) BulkCreate(ctx context.Context, items []entity.Item) ([]entity.Item, error) {
	err := tx.RunInTransaction(ctx, r.tm, func(t tx.Tx) error {
		_, err := r.writer.Write(ctx, t, items)
		return err
	})
	if err != nil {
		return nil, database.ClassifyError("item_repository", "bulk insert rolled back", err)
	}
	logger.Infof("Bulk inserted %d items.", len(items))
	return items, nil
}
