package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-delivery/internal/models"
)

// CreateSchema builds the tables straight from the models and seeds the
// store_info row. Production uses the SQL files under migrations/; this path
// serves SQLite tests and throwaway databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Order)(nil), (*models.StoreInfo)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	info := models.DefaultStoreInfo()
	_, err := db.NewInsert().Model(&info).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed store_info: %w", err)
	}
	return nil
}

// DropSchema removes every table CreateSchema made.
func DropSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Order)(nil), (*models.StoreInfo)(nil)}
	for _, m := range tables {
		if _, err := db.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", m, err)
		}
	}
	return nil
}
