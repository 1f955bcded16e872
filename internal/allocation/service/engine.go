package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/category"
	"github.com/smallbiznis/verdant/internal/clock"
	"github.com/smallbiznis/verdant/internal/config"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	obscontext "github.com/smallbiznis/verdant/internal/observability/context"
	"github.com/smallbiznis/verdant/internal/observability/logger"
	"github.com/smallbiznis/verdant/internal/observability/metrics"
	"github.com/smallbiznis/verdant/internal/observability/tracing"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	minYear = 1
	maxYear = 9999

	defaultRunListLimit = 50
)

type Params struct {
	fx.In

	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Relations domain.RelationSource
	Emissions domain.EmissionStore
	Taxonomy  *taxonomy.Holder
	Guard     *ratelimit.Guard `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Engine struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	relations domain.RelationSource
	emissions domain.EmissionStore
	taxonomy  *taxonomy.Holder
	guard     *ratelimit.Guard
	metrics   *metrics.Metrics
	cfg       config.AllocationConfig
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Engine{
		db:        p.DB,
		log:       p.Log.Named("allocation.engine"),
		genID:     p.GenID,
		clock:     c,
		repo:      p.Repo,
		relations: p.Relations,
		emissions: p.Emissions,
		taxonomy:  p.Taxonomy,
		guard:     p.Guard,
		metrics:   p.Metrics,
		cfg:       p.Config.Allocation,
	}
}

// Run allocates one calendar year under the per-year lock.
func (e *Engine) Run(ctx context.Context, year int) (*domain.Report, error) {
	if year < minYear || year > maxYear {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidYear, year)
	}
	start, end := emissiondomain.YearPeriod(year)

	var report *domain.Report
	err := e.guard.WithYearLock(ctx, year, func(ctx context.Context) error {
		var err error
		report, err = e.RunPeriod(ctx, domain.Period{Start: start, End: end})
		return err
	})
	return report, err
}

// RunRange allocates every year in [from, to]. Years run concurrently up to
// the configured bound; the relations of one year are processed in order. A
// year without relations is reported in the joined error and does not stop
// the other years.
func (e *Engine) RunRange(ctx context.Context, from, to int) ([]*domain.Report, error) {
	if from > to {
		return nil, fmt.Errorf("%w: %d after %d", domain.ErrInvalidYear, from, to)
	}
	if from < minYear || to > maxYear {
		return nil, fmt.Errorf("%w: %d..%d", domain.ErrInvalidYear, from, to)
	}

	limit := e.cfg.MaxParallelYears
	if limit <= 0 {
		limit = 1
	}

	reports := make([]*domain.Report, to-from+1)
	errs := make([]error, to-from+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for year := from; year <= to; year++ {
		idx := year - from
		g.Go(func() error {
			report, err := e.Run(gctx, year)
			reports[idx] = report
			if err != nil {
				errs[idx] = fmt.Errorf("year %d: %w", year, err)
			}
			// only cancellation stops sibling years
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	out := make([]*domain.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	if waitErr != nil {
		return out, waitErr
	}
	return out, errors.Join(errs...)
}

// RunPeriod allocates the aggregates of one period onto every relation whose
// site was operating at the period start.
func (e *Engine) RunPeriod(ctx context.Context, period domain.Period) (report *domain.Report, err error) {
	if period.Start.IsZero() || period.End.Before(period.Start) {
		return nil, domain.ErrInvalidPeriod
	}
	period.Start, period.End = period.Start.UTC(), period.End.UTC()
	year := period.Year()

	runID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, runID)
	ctx = obscontext.WithYear(ctx, year)
	log := logger.WithContext(ctx, e.log)

	ctx, span := tracing.Start(ctx, "allocation.period",
		attribute.String("run_id", runID),
		attribute.Int("year", year),
		attribute.String("allocation.period_start", period.Start.Format(time.DateOnly)),
	)

	started := e.clock.Now()
	report = &domain.Report{
		RunID:     runID,
		Year:      year,
		Period:    period,
		Status:    domain.RunRunning,
		StartedAt: started,
	}

	run := &domain.Run{
		ID:          e.genID.Generate(),
		RunID:       runID,
		Year:        year,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      domain.RunRunning,
		StartedAt:   started,
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		tracing.End(span, err)
		return nil, fmt.Errorf("record allocation run: %w", err)
	}

	defer func() {
		report.FinishedAt = e.clock.Now()
		switch {
		case errors.Is(err, domain.ErrNoRelationsFound):
			report.Status = domain.RunNoRelations
		case err != nil:
			report.Status = domain.RunFailed
		default:
			report.Status = domain.RunCompleted
		}
		if err != nil {
			report.Error = err.Error()
		}
		e.finishRun(context.WithoutCancel(ctx), run.ID, report, log)
		e.metrics.RecordAllocationRun(ctx, string(report.Status), report.FinishedAt.Sub(started))

		span.SetAttributes(tracing.SafeAttributes(
			attribute.Int("allocation.relations", report.Relations),
			attribute.Int("allocation.written", report.Written),
			attribute.Int("allocation.skipped", report.Skipped),
		)...)
		tracing.End(span, err)
	}()

	relations, err := e.relations.ListEligible(ctx, period.Start)
	if err != nil {
		return report, fmt.Errorf("list relations: %w", err)
	}
	if len(relations) == 0 {
		log.Warn("no relations found for period", zap.Time("period_start", period.Start))
		return report, domain.ErrNoRelationsFound
	}
	report.Relations = len(relations)

	denominators, err := e.relations.SumMagnitudeByCategory(ctx, period.Start)
	if err != nil {
		return report, fmt.Errorf("sum magnitudes: %w", err)
	}

	bridge := e.taxonomy.Bridge()
	for _, rel := range relations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := e.allocate(ctx, bridge, period, rel, denominators)
		if outcome.Status != domain.OutcomeWritten {
			log.Warn("relation not allocated",
				zap.String("site_id", rel.SiteID.String()),
				zap.String("category_code", rel.CategoryCode),
				zap.Time("period_start", period.Start),
				zap.String("status", string(outcome.Status)),
				zap.String("reason", string(outcome.Reason)),
				zap.String("detail", outcome.Detail),
			)
		}
		e.metrics.RecordAllocationOutcome(ctx, string(outcome.Status), string(outcome.Reason))
		report.Add(outcome)
	}

	log.Info("allocation period finished",
		zap.Int("relations", report.Relations),
		zap.Int("written", report.Written),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (e *Engine) ListRuns(ctx context.Context, year *int, limit int) ([]*domain.Run, error) {
	if limit <= 0 || limit > defaultRunListLimit {
		limit = defaultRunListLimit
	}
	return e.repo.ListRuns(ctx, year, limit)
}

// aggregate is the total a relation draws from, with the source and
// pollutant the derived record inherits.
type aggregate struct {
	total     *float64
	source    string
	pollutant string
	detail    string
}

func (e *Engine) resolveAggregate(ctx context.Context, bridge *taxonomy.Bridge, period domain.Period, code string) (aggregate, error) {
	if category.Level(code) > 2 {
		rec, err := e.emissions.FindDetailed(ctx, emissiondomain.TotalQuery{
			Source:       e.cfg.DetailedSource,
			CategoryName: code,
			PollutantID:  e.cfg.DetailedPollutant,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
		})
		if err != nil || rec == nil {
			return aggregate{source: e.cfg.DetailedSource, pollutant: e.cfg.DetailedPollutant}, err
		}
		return aggregate{total: rec.EmissionTotal, source: rec.Source, pollutant: rec.PollutantID}, nil
	}

	agg := aggregate{source: e.cfg.CoarseSource, pollutant: e.cfg.CoarsePollutant}
	label, ok := bridge.ToLabel(code)
	if !ok {
		agg.detail = domain.DetailUnmappedCategory
		return agg, nil
	}
	total, err := e.emissions.SumCoarse(ctx, emissiondomain.TotalQuery{
		Source:       e.cfg.CoarseSource,
		CategoryName: label,
		PollutantID:  e.cfg.CoarsePollutant,
		PeriodStart:  period.Start,
		PeriodEnd:    period.End,
		Scale:        e.cfg.CoarseScale,
	})
	agg.total = total
	return agg, err
}

func (e *Engine) allocate(ctx context.Context, bridge *taxonomy.Bridge, period domain.Period, rel relationdomain.Eligible, denominators map[string]float64) domain.Outcome {
	outcome := domain.Outcome{
		RelationID:   rel.ID,
		SiteID:       rel.SiteID,
		CategoryCode: rel.CategoryCode,
	}

	denominator, ok := denominators[rel.CategoryCode]
	if !ok || denominator <= 0 {
		return e.skip(ctx, period, rel, outcome, domain.ReasonZeroDenominator, "")
	}

	agg, err := e.resolveAggregate(ctx, bridge, period, rel.CategoryCode)
	if err != nil {
		outcome.Status = domain.OutcomeFailed
		outcome.Reason = domain.ReasonStoreError
		outcome.Detail = err.Error()
		return outcome
	}
	if agg.total == nil {
		return e.skip(ctx, period, rel, outcome, domain.ReasonMissingAggregateTotal, agg.detail)
	}

	ratioDec := decimal.NewFromFloat(rel.ContributionMagnitude).Div(decimal.NewFromFloat(denominator))
	ratio, _ := ratioDec.Float64()
	amount, _ := decimal.NewFromFloat(*agg.total).Mul(ratioDec).Float64()

	derived := e.derivedRecord(period, rel, agg.source, agg.pollutant)
	derived.ID = e.genID.Generate()
	derived.EmissionTotal = &amount

	var saved *emissiondomain.Record
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.relations.UpdateRatio(ctx, tx, rel.ID, ratio); err != nil {
			return fmt.Errorf("update ratio: %w", err)
		}
		var err error
		saved, err = e.emissions.UpsertDerived(ctx, tx, derived)
		return err
	})
	if err != nil {
		return e.failed(ctx, outcome, err)
	}

	outcome.Status = domain.OutcomeWritten
	outcome.Ratio = &ratio
	outcome.Amount = &amount
	outcome.RecordID = saved.ID
	return outcome
}

// skip withdraws whatever an earlier pass wrote for rel in this period: the
// derived record under its key is deleted and the ratio reset, together.
func (e *Engine) skip(ctx context.Context, period domain.Period, rel relationdomain.Eligible, outcome domain.Outcome, reason domain.Reason, detail string) domain.Outcome {
	source, pollutant := e.cfg.CoarseSource, e.cfg.CoarsePollutant
	if category.Level(rel.CategoryCode) > 2 {
		source, pollutant = e.cfg.DetailedSource, e.cfg.DetailedPollutant
	}
	key := e.derivedRecord(period, rel, source, pollutant)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.relations.ClearRatio(ctx, tx, rel.ID); err != nil {
			return fmt.Errorf("clear ratio: %w", err)
		}
		_, err := e.emissions.DeleteDerived(ctx, tx, key)
		return err
	})
	if err != nil {
		return e.failed(ctx, outcome, err)
	}

	outcome.Status = domain.OutcomeSkipped
	outcome.Reason = reason
	outcome.Detail = detail
	return outcome
}

func (e *Engine) failed(ctx context.Context, outcome domain.Outcome, err error) domain.Outcome {
	outcome.Status = domain.OutcomeFailed
	outcome.Reason = domain.ReasonStoreError
	if errors.Is(err, repository.ErrUpsertConflict) {
		outcome.Reason = domain.ReasonUpsertConflict
		e.metrics.RecordUpsertConflict(ctx, "emission_records")
	}
	outcome.Detail = err.Error()
	return outcome
}

// derivedRecord carries the derived key of rel in period; the total is left
// for the caller.
func (e *Engine) derivedRecord(period domain.Period, rel relationdomain.Eligible, source, pollutant string) *emissiondomain.Record {
	siteID := rel.SiteID
	code := rel.CategoryCode
	return &emissiondomain.Record{
		Source:       category.DerivedSource(source),
		CategoryName: code,
		CategoryCode: &code,
		PollutantID:  pollutant,
		PeriodStart:  period.Start,
		PeriodEnd:    period.End,
		PeriodLength: emissiondomain.PeriodLengthYear,
		SiteID:       &siteID,
		RegionID:     rel.RegionID,
		RegionName:   rel.RegionName,
		Latitude:     rel.Latitude,
		Longitude:    rel.Longitude,
	}
}

func (e *Engine) finishRun(ctx context.Context, id snowflake.ID, report *domain.Report, log *zap.Logger) {
	summary, err := json.Marshal(report.ReasonCounts())
	if err != nil {
		summary = []byte("{}")
	}
	finished := report.FinishedAt
	patch := map[string]any{
		"status":      report.Status,
		"relations":   report.Relations,
		"written":     report.Written,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"summary":     datatypes.JSON(summary),
		"error":       report.Error,
		"finished_at": &finished,
	}
	if err := e.repo.UpdateRun(ctx, id, patch); err != nil {
		log.Error("failed to record allocation run result", zap.Error(err))
	}
}
