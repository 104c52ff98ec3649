package storeinfo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-delivery/internal/models"
)

// Store reads and writes the store_info singleton row.
type Store struct {
	Bun *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{Bun: db}
}

// Get returns the row, or the defaults when it was never written.
func (s *Store) Get(ctx context.Context) (models.StoreInfo, error) {
	var info models.StoreInfo
	err := s.Bun.NewSelect().
		Model(&info).
		Where("id = ?", models.StoreInfoID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultStoreInfo(), nil
	}
	if err != nil {
		return models.StoreInfo{}, err
	}
	return info, nil
}

// Save upserts the singleton row.
func (s *Store) Save(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error) {
	info := models.StoreInfo{
		ID:             models.StoreInfoID,
		MaxPrepMinutes: upd.MaxPrepMinutes,
		DailyPromo:     upd.DailyPromo,
		UpdatedAt:      time.Now().UTC(),
	}
	_, err := s.Bun.NewInsert().
		Model(&info).
		On("CONFLICT (id) DO UPDATE").
		Set("max_prep_minutes = EXCLUDED.max_prep_minutes").
		Set("daily_promo = EXCLUDED.daily_promo").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return models.StoreInfo{}, err
	}
	return info, nil
}
