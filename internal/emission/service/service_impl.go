package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/verdant/internal/category"
	"github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 500

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("emission.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) UpsertRaw(ctx context.Context, p domain.Partial, batchID string) (*domain.Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if category.IsDerivedSource(p.Source) {
		return nil, fmt.Errorf("%w: raw record with derived source %q", domain.ErrInvalidRecord, p.Source)
	}
	rec := p.ToRecord(s.genID.Generate())
	rec.BatchID = batchID
	return s.repo.UpsertRaw(ctx, rec)
}

// UpsertDerived writes through tx so the caller can pair it with other
// writes of the same unit.
func (s *Service) UpsertDerived(ctx context.Context, tx *gorm.DB, rec *domain.Record) (*domain.Record, error) {
	if !category.IsDerivedSource(rec.Source) {
		return nil, fmt.Errorf("%w: derived record with source %q", domain.ErrInvalidRecord, rec.Source)
	}
	if rec.ID == 0 {
		rec.ID = s.genID.Generate()
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.UpsertDerived(ctx, rec)
}

// DeleteDerived drops the derived record sharing key's derived key. Only
// derived sources may be deleted this way.
func (s *Service) DeleteDerived(ctx context.Context, tx *gorm.DB, key *domain.Record) (int64, error) {
	if !category.IsDerivedSource(key.Source) {
		return 0, fmt.Errorf("%w: derived record with source %q", domain.ErrInvalidRecord, key.Source)
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.DeleteDerived(ctx, key)
}

func (s *Service) aggregateFilter(q domain.TotalQuery) []option.QueryOption {
	return []option.QueryOption{
		option.Equal("source", q.Source),
		option.Equal("category_name", q.CategoryName),
		option.Equal("period_start", q.PeriodStart.UTC()),
		option.Equal("period_end", q.PeriodEnd.UTC()),
		option.Equal("pollutant_id", q.PollutantID),
		option.NotStartsWith("source", category.DerivedSourcePrefix),
	}
}

// FindDetailed returns the single non-derived record for an exact category,
// or nil when the source has none.
func (s *Service) FindDetailed(ctx context.Context, q domain.TotalQuery) (*domain.Record, error) {
	return s.repo.FindOne(ctx, append(s.aggregateFilter(q), option.OrderBy("id ASC"))...)
}

// SumCoarse sums the non-derived totals of one label across regions and
// divides by q.Scale. Nil means nothing to allocate.
func (s *Service) SumCoarse(ctx context.Context, q domain.TotalQuery) (*float64, error) {
	sum, err := s.repo.SumTotals(ctx, s.aggregateFilter(q)...)
	if err != nil || sum == nil {
		return nil, err
	}
	total := decimal.NewFromFloat(*sum)
	if q.Scale != 0 {
		total = total.Div(decimal.NewFromFloat(q.Scale))
	}
	v := total.InexactFloat64()
	return &v, nil
}

// LinkCategories stamps the canonical code onto raw records: coarse records
// through the bridge, detailed records with their own category name.
func (s *Service) LinkCategories(ctx context.Context, bridge *taxonomy.Bridge, coarseSource, detailedSource string) (int64, error) {
	var linked int64
	for _, entry := range bridge.Entries() {
		n, err := s.repo.SetCategoryCode(ctx, entry.Code,
			option.Equal("source", coarseSource),
			option.Equal("category_name", entry.Label),
		)
		if err != nil {
			return linked, err
		}
		linked += n
	}

	if detailedSource != "" {
		records, err := s.repo.Find(ctx,
			option.Equal("source", detailedSource),
			option.IsNull("category_code"),
		)
		if err != nil {
			return linked, err
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return linked, err
			}
			code := strings.TrimSuffix(rec.CategoryName, ".")
			if category.Level(code) == 0 {
				continue
			}
			n, err := s.repo.SetCategoryCode(ctx, code, option.Equal("id", rec.ID))
			if err != nil {
				return linked, err
			}
			linked += n
		}
	}

	s.log.Info("linked category codes", zap.Int64("records", linked))
	return linked, nil
}

func (s *Service) DateBoundaries(ctx context.Context) (*domain.Boundaries, error) {
	start, end, err := s.repo.PeriodBounds(ctx, option.StartsWith("source", category.DerivedSourcePrefix))
	if err != nil {
		return nil, err
	}
	return &domain.Boundaries{Start: start, End: end}, nil
}

// RegionalSummary folds both derived series and the raw coarse series by
// region. The raw series is scaled to the derived unit and fixes the
// min-max range every series is normalized against.
func (s *Service) RegionalSummary(ctx context.Context, req domain.RegionalSummaryRequest) ([]domain.RegionalTotal, error) {
	if req.To.Before(req.From) {
		return nil, domain.ErrInvalidPeriod
	}

	coarse, err := s.repo.SumByRegion(ctx, domain.RegionQuery{Source: req.CoarseSource, From: req.From, To: req.To, ByName: true})
	if err != nil {
		return nil, err
	}
	if req.CoarseScale != 0 {
		scale := decimal.NewFromFloat(req.CoarseScale)
		for i := range coarse {
			coarse[i].Total = decimal.NewFromFloat(coarse[i].Total).Div(scale).InexactFloat64()
		}
	}

	var derived []domain.RegionalTotal
	for _, src := range []string{req.DetailedSource, req.CoarseSource} {
		rows, err := s.repo.SumByRegion(ctx, domain.RegionQuery{Source: category.DerivedSource(src), From: req.From, To: req.To})
		if err != nil {
			return nil, err
		}
		derived = append(derived, rows...)
	}

	lo, hi := minMax(coarse)
	out := make([]domain.RegionalTotal, 0, len(coarse)+len(derived))
	for _, row := range append(derived, coarse...) {
		row.Norm = normalize(row.Total, lo, hi)
		out = append(out, row)
	}
	return out, nil
}

func minMax(rows []domain.RegionalTotal) (float64, float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	lo, hi := rows[0].Total, rows[0].Total
	for _, row := range rows[1:] {
		lo = min(lo, row.Total)
		hi = max(hi, row.Total)
	}
	return lo, hi
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

func (s *Service) List(ctx context.Context, f domain.ListFilter) ([]*domain.Record, error) {
	var opts []option.QueryOption
	if f.Source != "" {
		opts = append(opts, option.Equal("source", f.Source))
	}
	if f.CategoryName != "" {
		opts = append(opts, option.Equal("category_name", f.CategoryName))
	}
	if f.Derived != nil {
		if *f.Derived {
			opts = append(opts, option.StartsWith("source", category.DerivedSourcePrefix))
		} else {
			opts = append(opts, option.NotStartsWith("source", category.DerivedSourcePrefix))
		}
	}
	if f.SiteID != nil {
		opts = append(opts, option.Equal("site_id", *f.SiteID))
	}
	if f.OrganizationID != nil {
		opts = append(opts, option.Equal("organization_id", *f.OrganizationID))
	}
	if f.From != nil {
		opts = append(opts, option.Gte("period_start", f.From.UTC()))
	}
	if f.To != nil {
		opts = append(opts, option.Lte("period_end", f.To.UTC()))
	}

	limit := f.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	opts = append(opts,
		option.OrderBy("period_start ASC, id ASC"),
		option.Limit(limit),
		option.Offset(f.Offset),
	)
	return s.repo.Find(ctx, opts...)
}
