package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	StoreInfoID           = 1
	DefaultMaxPrepMinutes = 15
	DefaultDailyPromo     = "Hambúrguer Grátis"
)

// StoreInfo is the singleton row holding operational parameters.
type StoreInfo struct {
	bun.BaseModel `bun:"table:store_info"`

	ID             int       `bun:"id,pk" json:"-"`
	MaxPrepMinutes int       `bun:"max_prep_minutes,notnull" json:"max_prep_minutes"`
	DailyPromo     string    `bun:"daily_promo" json:"daily_promo"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

func DefaultStoreInfo() StoreInfo {
	return StoreInfo{
		ID:             StoreInfoID,
		MaxPrepMinutes: DefaultMaxPrepMinutes,
		DailyPromo:     DefaultDailyPromo,
	}
}

type StoreInfoUpdate struct {
	MaxPrepMinutes int    `json:"max_prep_minutes" validate:"gte=1,lte=240"`
	DailyPromo     string `json:"daily_promo" validate:"max=200"`
}
