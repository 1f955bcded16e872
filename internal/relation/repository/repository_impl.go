package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	store repository.Repository[domain.Relation]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{db: db, store: repository.ProvideStore[domain.Relation](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx, store: r.store.WithTrx(tx)}
}

// eligible selects relations whose site was operating on periodStart. A site
// with no recorded start is treated as always operating.
func eligible(columns ...string) sq.SelectBuilder {
	return sq.Select(columns...).
		From("site_category_relations r").
		Join("sites s ON s.id = r.site_id")
}

func operatingBy(periodStart time.Time) sq.Sqlizer {
	return sq.Or{
		sq.Eq{"s.operation_start": nil},
		sq.LtOrEq{"s.operation_start": periodStart.UTC()},
	}
}

func (r *repo) ListEligible(ctx context.Context, periodStart time.Time) ([]domain.Eligible, error) {
	query, args, err := eligible(
		"r.id AS id",
		"r.site_id AS site_id",
		"r.category_code AS category_code",
		"r.category_level AS category_level",
		"r.contribution_magnitude AS contribution_magnitude",
		"r.is_main_category AS is_main_category",
		"s.region_id AS region_id",
		"s.address_sub_region AS region_name",
		"s.latitude AS latitude",
		"s.longitude AS longitude",
	).
		Where(operatingBy(periodStart)).
		OrderBy("r.category_code", "r.site_id", "r.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []domain.Eligible
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type magnitudeRow struct {
	CategoryCode string
	Total        *float64
}

func (r *repo) SumMagnitudeByCategory(ctx context.Context, periodStart time.Time) (map[string]float64, error) {
	query, args, err := eligible("r.category_code AS category_code", "SUM(r.contribution_magnitude) AS total").
		Where(operatingBy(periodStart)).
		GroupBy("r.category_code").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []magnitudeRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Total != nil {
			out[row.CategoryCode] = *row.Total
		}
	}
	return out, nil
}

func (r *repo) DeleteBySite(ctx context.Context, siteID snowflake.ID) (int64, error) {
	return r.store.DeleteWhere(ctx, option.Equal("site_id", siteID))
}

func (r *repo) BatchCreate(ctx context.Context, relations []*domain.Relation) error {
	return r.store.BatchCreate(ctx, relations)
}

func (r *repo) UpdateRatio(ctx context.Context, id snowflake.ID, ratio float64) error {
	return r.store.Update(ctx, id, map[string]any{"contribution_ratio": ratio})
}

func (r *repo) ClearRatio(ctx context.Context, id snowflake.ID) error {
	return r.store.Update(ctx, id, map[string]any{"contribution_ratio": nil})
}

func (r *repo) ListBySite(ctx context.Context, siteID snowflake.ID) ([]*domain.Relation, error) {
	return r.store.Find(ctx, nil, option.Equal("site_id", siteID), option.OrderBy("category_code ASC, id ASC"))
}
