package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListEligible(ctx context.Context, periodStart time.Time) ([]Eligible, error)
	SumMagnitudeByCategory(ctx context.Context, periodStart time.Time) (map[string]float64, error)
	DeleteBySite(ctx context.Context, siteID snowflake.ID) (int64, error)
	BatchCreate(ctx context.Context, relations []*Relation) error
	UpdateRatio(ctx context.Context, id snowflake.ID, ratio float64) error
	ClearRatio(ctx context.Context, id snowflake.ID) error
	ListBySite(ctx context.Context, siteID snowflake.ID) ([]*Relation, error)
}
