// Package repository implements the record store shared by every writer:
// filtered finds, grouped sums and natural-key update-or-create.
package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"gorm.io/gorm"
)

var (
	ErrUpsertConflict = errors.New("upsert_conflict")
	ErrNotEntity      = errors.New("resource_not_entity")
)

// Entity is implemented by models written through UpdateOrCreate so the
// store can carry the identity of a matched row over to the new values.
type Entity interface {
	GetID() snowflake.ID
	SetID(id snowflake.ID)
}

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, id snowflake.ID, patch any) error
	UpdateWhere(ctx context.Context, patch map[string]any, opts ...option.QueryOption) (int64, error)
	UpdateOrCreate(ctx context.Context, resource *T, match ...option.QueryOption) (*T, error)
	Delete(ctx context.Context, id snowflake.ID) error
	DeleteWhere(ctx context.Context, opts ...option.QueryOption) (int64, error)
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	GroupBy(ctx context.Context, spec GroupSpec, opts ...option.QueryOption) ([]GroupRow, error)
	BatchCreate(ctx context.Context, resources []*T) error
}

// GroupSpec describes a grouped aggregation: the columns to group by and the
// numeric columns to sum per group.
type GroupSpec struct {
	By         []string
	Sum        []string
	Having     string
	HavingArgs []any
	OrderBy    string
}

// GroupRow is one group of a GroupBy result. Sums are nil when every summed
// value in the group was NULL.
type GroupRow struct {
	Keys  map[string]any
	Sums  map[string]*float64
	Count int64
}
