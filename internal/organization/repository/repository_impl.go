package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/organization/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Organization]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Organization](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{store: r.store.WithTrx(tx)}
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return r.store.FindOne(ctx, nil, option.Equal("id", id))
}

func (r *repo) FindByLegalName(ctx context.Context, legalName string) (*domain.Organization, error) {
	return r.store.FindOne(ctx, nil, option.Equal("legal_name", legalName))
}

func (r *repo) Upsert(ctx context.Context, org *domain.Organization) (*domain.Organization, error) {
	return r.store.UpdateOrCreate(ctx, org, option.Equal("legal_name", org.LegalName))
}

func (r *repo) List(ctx context.Context, limit, offset int) ([]*domain.Organization, error) {
	return r.store.Find(ctx, nil, option.OrderBy("legal_name ASC"), option.Limit(limit), option.Offset(offset))
}
