package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/smallbiznis/verdant/pkg/repository"
	"gorm.io/gorm"
)

const table = "emission_records"

type repo struct {
	db    *gorm.DB
	store repository.Repository[domain.Record]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{db: db, store: repository.ProvideStore[domain.Record](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx, store: r.store.WithTrx(tx)}
}

// UpsertRaw matches on source, category, period, pollutant and whatever of
// region name, site and organization the record carries.
func (r *repo) UpsertRaw(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	return r.store.UpdateOrCreate(ctx, rec,
		option.Equal("source", rec.Source),
		option.Equal("category_name", rec.CategoryName),
		option.Equal("period_start", rec.PeriodStart),
		option.Equal("period_end", rec.PeriodEnd),
		option.Equal("pollutant_id", rec.PollutantID),
		option.Equal("region_name", rec.RegionName),
		option.Equal("site_id", rec.SiteID),
		option.Equal("organization_id", rec.OrganizationID),
	)
}

// UpsertDerived matches on the derived key: source, category, period, site,
// pollutant and region.
func (r *repo) UpsertDerived(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	return r.store.UpdateOrCreate(ctx, rec, derivedKey(rec)...)
}

// DeleteDerived removes the record stored under key's derived key.
func (r *repo) DeleteDerived(ctx context.Context, key *domain.Record) (int64, error) {
	return r.store.DeleteWhere(ctx, derivedKey(key)...)
}

func derivedKey(rec *domain.Record) []option.QueryOption {
	return []option.QueryOption{
		option.Equal("source", rec.Source),
		option.Equal("category_name", rec.CategoryName),
		option.Equal("period_start", rec.PeriodStart),
		option.Equal("period_end", rec.PeriodEnd),
		option.Equal("site_id", rec.SiteID),
		option.Equal("pollutant_id", rec.PollutantID),
		option.Equal("region_id", rec.RegionID),
	}
}

func (r *repo) FindOne(ctx context.Context, opts ...option.QueryOption) (*domain.Record, error) {
	return r.store.FindOne(ctx, nil, opts...)
}

func (r *repo) Find(ctx context.Context, opts ...option.QueryOption) ([]*domain.Record, error) {
	return r.store.Find(ctx, nil, opts...)
}

// SumTotals returns nil when no row matched or every total was NULL.
func (r *repo) SumTotals(ctx context.Context, opts ...option.QueryOption) (*float64, error) {
	rows, err := r.store.GroupBy(ctx, repository.GroupSpec{Sum: []string{"emission_total"}}, opts...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Sums["emission_total"], nil
}

func (r *repo) SetCategoryCode(ctx context.Context, code string, opts ...option.QueryOption) (int64, error) {
	return r.store.UpdateWhere(ctx, map[string]any{"category_code": code}, opts...)
}

func (r *repo) PeriodBounds(ctx context.Context, opts ...option.QueryOption) (*time.Time, *time.Time, error) {
	first, err := r.store.FindOne(ctx, nil, append(opts, option.OrderBy("period_start ASC"))...)
	if err != nil || first == nil {
		return nil, nil, err
	}
	last, err := r.store.FindOne(ctx, nil, append(opts, option.OrderBy("period_end DESC"))...)
	if err != nil || last == nil {
		return nil, nil, err
	}
	start, end := first.PeriodStart, last.PeriodEnd
	return &start, &end, nil
}

type regionRow struct {
	RegionID   *int64
	RegionName *string
	Total      *float64
	Latitude   *float64
	Longitude  *float64
	Records    int64
}

func (r *repo) SumByRegion(ctx context.Context, q domain.RegionQuery) ([]domain.RegionalTotal, error) {
	builder := sq.Select(
		"SUM(emission_total) AS total",
		"AVG(latitude) AS latitude",
		"AVG(longitude) AS longitude",
		"COUNT(*) AS records",
	).
		From(table).
		Where(sq.Eq{"source": q.Source}).
		Where(sq.GtOrEq{"period_start": q.From}).
		Where(sq.LtOrEq{"period_end": q.To})

	if q.ByName {
		builder = builder.
			Columns("region_name").
			Where(sq.NotEq{"region_name": nil}).
			GroupBy("region_name").
			OrderBy("region_name")
	} else {
		builder = builder.
			Columns("region_id", "MAX(region_name) AS region_name").
			Where(sq.NotEq{"region_id": nil}).
			GroupBy("region_id").
			OrderBy("region_id")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []regionRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RegionalTotal, 0, len(rows))
	for _, row := range rows {
		item := domain.RegionalTotal{
			Source:    q.Source,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			Records:   row.Records,
		}
		if row.RegionID != nil {
			id := snowflake.ID(*row.RegionID)
			item.RegionID = &id
		}
		if row.RegionName != nil {
			item.RegionName = *row.RegionName
		}
		if row.Total != nil {
			item.Total = *row.Total
		}
		out = append(out, item)
	}
	return out, nil
}
