package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/region/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Region]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Region](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{store: r.store.WithTrx(tx)}
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Region, error) {
	return r.store.FindOne(ctx, nil, option.Equal("id", id))
}

func (r *repo) FindRoot(ctx context.Context, name string) (*domain.Region, error) {
	return r.store.FindOne(ctx, nil,
		option.Equal("name", name),
		option.IsNull("parent_id"),
		option.OrderBy("id ASC"),
	)
}

func (r *repo) FindChild(ctx context.Context, parentID snowflake.ID, name string) (*domain.Region, error) {
	return r.store.FindOne(ctx, nil,
		option.Equal("name", name),
		option.Equal("parent_id", parentID),
		option.OrderBy("id ASC"),
	)
}

// Upsert matches on (name, parent_id); a root region matches parent_id IS NULL.
func (r *repo) Upsert(ctx context.Context, region *domain.Region) (*domain.Region, error) {
	var parent any
	if region.ParentID != nil {
		parent = *region.ParentID
	}
	return r.store.UpdateOrCreate(ctx, region,
		option.Equal("name", region.Name),
		option.Equal("parent_id", parent),
	)
}

func (r *repo) List(ctx context.Context, parentID *snowflake.ID) ([]*domain.Region, error) {
	opts := []option.QueryOption{option.OrderBy("name ASC")}
	if parentID != nil {
		opts = append(opts, option.Equal("parent_id", *parentID))
	}
	return r.store.Find(ctx, nil, opts...)
}
