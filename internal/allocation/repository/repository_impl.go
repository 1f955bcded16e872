package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Run]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Run](db)}
}

func (r *repo) CreateRun(ctx context.Context, run *domain.Run) error {
	return r.store.Create(ctx, run)
}

func (r *repo) UpdateRun(ctx context.Context, id snowflake.ID, patch map[string]any) error {
	return r.store.Update(ctx, id, patch)
}

func (r *repo) FindRun(ctx context.Context, runID string) (*domain.Run, error) {
	return r.store.FindOne(ctx, nil, option.Equal("run_id", runID))
}

func (r *repo) ListRuns(ctx context.Context, year *int, limit int) ([]*domain.Run, error) {
	opts := []option.QueryOption{option.OrderBy("started_at DESC, id DESC"), option.Limit(limit)}
	if year != nil {
		opts = append(opts, option.Equal("year", *year))
	}
	return r.store.Find(ctx, nil, opts...)
}
