package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Site]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Site](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{store: r.store.WithTrx(tx)}
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Site, error) {
	return r.store.FindOne(ctx, nil, option.Equal("id", id))
}

func (r *repo) FindByKeyHash(ctx context.Context, keyHash string) (*domain.Site, error) {
	return r.store.FindOne(ctx, nil, option.Equal("key_hash", keyHash))
}

func (r *repo) Upsert(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	return r.store.UpdateOrCreate(ctx, site, option.Equal("key_hash", site.KeyHash))
}

func (r *repo) Update(ctx context.Context, id snowflake.ID, patch map[string]any) error {
	return r.store.Update(ctx, id, patch)
}

func (r *repo) UpdateWhere(ctx context.Context, patch map[string]any, opts ...option.QueryOption) (int64, error) {
	return r.store.UpdateWhere(ctx, patch, opts...)
}

func (r *repo) Find(ctx context.Context, opts ...option.QueryOption) ([]*domain.Site, error) {
	return r.store.Find(ctx, nil, opts...)
}
