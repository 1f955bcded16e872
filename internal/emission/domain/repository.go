package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/verdant/pkg/db/option"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertRaw(ctx context.Context, rec *Record) (*Record, error)
	UpsertDerived(ctx context.Context, rec *Record) (*Record, error)
	DeleteDerived(ctx context.Context, key *Record) (int64, error)
	FindOne(ctx context.Context, opts ...option.QueryOption) (*Record, error)
	Find(ctx context.Context, opts ...option.QueryOption) ([]*Record, error)
	SumTotals(ctx context.Context, opts ...option.QueryOption) (*float64, error)
	SetCategoryCode(ctx context.Context, code string, opts ...option.QueryOption) (int64, error)
	PeriodBounds(ctx context.Context, opts ...option.QueryOption) (*time.Time, *time.Time, error)
	SumByRegion(ctx context.Context, q RegionQuery) ([]RegionalTotal, error)
}

// RegionQuery selects the records folded into a regional summary.
type RegionQuery struct {
	Source   string
	From, To time.Time
	// ByName groups on region_name alone, for raw sources that carry no
	// region id.
	ByName bool
}
