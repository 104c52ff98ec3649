package storeinfo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

var (
	ErrForbidden  = errors.New("only admin may change store info")
	ErrValidation = errors.New("invalid store info")
)

type Backend interface {
	Get(ctx context.Context) (models.StoreInfo, error)
	Save(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error)
}

// Cache is optional; a nil Cache reads straight from the store.
type Cache interface {
	Get(ctx context.Context) (*models.StoreInfo, error)
	Set(ctx context.Context, info models.StoreInfo) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	Store   Backend
	Cache   Cache
	Changes changefeed.Publisher
	Logger  *logger.Logger

	validate *validator.Validate
}

func NewService(store Backend, cache Cache, changes changefeed.Publisher, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Cache:    cache,
		Changes:  changes,
		Logger:   log,
		validate: validator.New(),
	}
}

// Get serves from the cache when possible. Cache failures only cost a query.
func (s *Service) Get(ctx context.Context) (models.StoreInfo, error) {
	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx)
		if err != nil {
			s.Logger.Warn("STOREINFO", fmt.Sprintf("Cache read failed: %v", err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	info, err := s.Store.Get(ctx)
	if err != nil {
		return models.StoreInfo{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, info); err != nil {
			s.Logger.Warn("STOREINFO", fmt.Sprintf("Cache write failed: %v", err))
		}
	}
	return info, nil
}

func (s *Service) Update(ctx context.Context, actor models.Actor, upd models.StoreInfoUpdate) (models.StoreInfo, error) {
	if actor.Role != models.RoleAdmin {
		return models.StoreInfo{}, ErrForbidden
	}
	if err := s.validate.Struct(upd); err != nil {
		return models.StoreInfo{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	info, err := s.Store.Save(ctx, upd)
	if err != nil {
		return models.StoreInfo{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			s.Logger.Warn("STOREINFO", fmt.Sprintf("Cache invalidate failed: %v", err))
		}
	}
	s.Logger.Info("STOREINFO", fmt.Sprintf("Updated by %s: max prep %d min, promo %q", actor.ID, info.MaxPrepMinutes, info.DailyPromo))

	if s.Changes != nil {
		ev := models.ChangeEvent{Type: models.ChangeUpdate, Table: models.TableStoreInfo, CommitTime: time.Now().UTC()}
		if err := s.Changes.Publish(ctx, ev); err != nil {
			s.Logger.Warn("CHANGEFEED", fmt.Sprintf("Publish store_info change failed: %v", err))
		}
	}
	return info, nil
}
