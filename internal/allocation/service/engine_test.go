package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/allocation/repository"
	"github.com/smallbiznis/verdant/internal/clock"
	"github.com/smallbiznis/verdant/internal/config"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	emissionrepo "github.com/smallbiznis/verdant/internal/emission/repository"
	emissionservice "github.com/smallbiznis/verdant/internal/emission/service"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	regionrepo "github.com/smallbiznis/verdant/internal/region/repository"
	regionservice "github.com/smallbiznis/verdant/internal/region/service"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	relationrepo "github.com/smallbiznis/verdant/internal/relation/repository"
	relationservice "github.com/smallbiznis/verdant/internal/relation/service"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/internal/site/geocoder"
	siterepo "github.com/smallbiznis/verdant/internal/site/repository"
	siteservice "github.com/smallbiznis/verdant/internal/site/service"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/db"
	storerepo "github.com/smallbiznis/verdant/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const mineralLabel = "A.  광물산업"

func f(v float64) *float64 { return &v }

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	holder    *taxonomy.Holder
	engine    domain.Service
	sites     sitedomain.Service
	relations relationdomain.Service
	relRepo   relationdomain.Repository
	emissions emissiondomain.Service
}

func allocationConfig() config.Config {
	cfg := config.Config{}
	cfg.Allocation = config.AllocationConfig{
		DetailedSource:    "gir4",
		DetailedPollutant: "CO2",
		CoarseSource:      "gir1",
		CoarsePollutant:   "CO2eq",
		CoarseScale:       1000,
		SplitPolicy:       config.SplitPolicyEven,
		MaxParallelYears:  2,
	}
	return cfg
}

func setup(t *testing.T, tax *taxonomy.Taxonomy) fixture {
	t.Helper()
	conn, err := db.NewTest(
		&sitedomain.Site{},
		&regiondomain.Region{},
		&relationdomain.Relation{},
		&emissiondomain.Record{},
		&domain.Run{},
	)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := allocationConfig()
	holder := taxonomy.NewHolder(tax)

	regions := regionservice.New(regionservice.Params{Log: zap.NewNop(), GenID: node, Repo: regionrepo.NewRepository(conn)})
	sites := siteservice.New(siteservice.Params{
		Config:   cfg,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     siterepo.NewRepository(conn),
		Regions:  regions,
		Geocoder: geocoder.Noop{},
	})
	relRepo := relationrepo.NewRepository(conn)
	relations := relationservice.New(relationservice.Params{
		Config:   cfg,
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     relRepo,
		Sites:    sites,
		Taxonomy: holder,
	})
	emissions := emissionservice.New(emissionservice.Params{Log: zap.NewNop(), GenID: node, Repo: emissionrepo.NewRepository(conn)})

	engine := New(Params{
		Config:    cfg,
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:      repository.NewRepository(conn),
		Relations: relations,
		Emissions: emissions,
		Taxonomy:  holder,
	})
	return fixture{
		db:        conn,
		node:      node,
		holder:    holder,
		engine:    engine,
		sites:     sites,
		relations: relations,
		relRepo:   relRepo,
		emissions: emissions,
	}
}

// engineWith builds an engine over the fixture's database that writes through
// emissions instead of the real emission service.
func (fx fixture) engineWith(emissions domain.EmissionStore) domain.Service {
	return New(Params{
		Config:    allocationConfig(),
		DB:        fx.db,
		Log:       zap.NewNop(),
		GenID:     fx.node,
		Clock:     clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:      repository.NewRepository(fx.db),
		Relations: fx.relations,
		Emissions: emissions,
		Taxonomy:  fx.holder,
	})
}

func (fx fixture) ratios(t *testing.T, siteID snowflake.ID) map[string]*float64 {
	t.Helper()
	rels, err := fx.relations.ListBySite(context.Background(), siteID)
	require.NoError(t, err)
	out := map[string]*float64{}
	for _, rel := range rels {
		out[rel.CategoryCode] = rel.ContributionRatio
	}
	return out
}

// conflictingEmissions fails derived writes for one site and category.
type conflictingEmissions struct {
	emissiondomain.Service
	siteID snowflake.ID
	code   string
}

func (c conflictingEmissions) UpsertDerived(ctx context.Context, tx *gorm.DB, rec *emissiondomain.Record) (*emissiondomain.Record, error) {
	if rec.SiteID != nil && *rec.SiteID == c.siteID && rec.CategoryName == c.code {
		return nil, fmt.Errorf("upsert derived: %w", storerepo.ErrUpsertConflict)
	}
	return c.Service.UpsertDerived(ctx, tx, rec)
}

func (fx fixture) site(t *testing.T, number, sectors string, area float64, opened *time.Time) *sitedomain.Site {
	t.Helper()
	site, err := fx.sites.UpsertRegistration(context.Background(), sitedomain.Registration{
		CompanyName:               "동해시멘트",
		FactoryManagementNumber:   number,
		LandAddress:               "강원특별자치도 동해시 " + number,
		SectorIDs:                 sectors,
		SectorIDMain:              sectors,
		RegistrationDateInitial:   opened,
		ManufacturingFacilityArea: f(area),
	})
	require.NoError(t, err)
	return site
}

func (fx fixture) rebuild(t *testing.T) {
	t.Helper()
	_, err := fx.relations.RebuildDirty(context.Background(), 0)
	require.NoError(t, err)
}

func (fx fixture) detailed(t *testing.T, code string, total *float64, year int) {
	t.Helper()
	start, end := emissiondomain.YearPeriod(year)
	_, err := fx.emissions.UpsertRaw(context.Background(), emissiondomain.Partial{
		Source:        "gir4",
		CategoryName:  code,
		PollutantID:   "CO2",
		PeriodStart:   start,
		PeriodEnd:     end,
		PeriodLength:  emissiondomain.PeriodLengthYear,
		EmissionTotal: total,
	}, "batch-detailed")
	require.NoError(t, err)
}

func (fx fixture) coarse(t *testing.T, label, region string, total float64, year int) {
	t.Helper()
	start, end := emissiondomain.YearPeriod(year)
	_, err := fx.emissions.UpsertRaw(context.Background(), emissiondomain.Partial{
		Source:        "gir1",
		CategoryName:  label,
		PollutantID:   "CO2eq",
		PeriodStart:   start,
		PeriodEnd:     end,
		PeriodLength:  emissiondomain.PeriodLengthYear,
		EmissionTotal: f(total),
		RegionName:    region,
	}, "batch-coarse")
	require.NoError(t, err)
}

func (fx fixture) derived(t *testing.T) []*emissiondomain.Record {
	t.Helper()
	yes := true
	recs, err := fx.emissions.List(context.Background(), emissiondomain.ListFilter{Derived: &yes})
	require.NoError(t, err)
	return recs
}

func outcomesByCode(report *domain.Report, siteID snowflake.ID) map[string]domain.Outcome {
	out := map[string]domain.Outcome{}
	for _, o := range report.Outcomes {
		if o.SiteID == siteID {
			out[o.CategoryCode] = o
		}
	}
	return out
}

func TestRunAllocatesDetailedAndCoarseTotals(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	big := fx.site(t, "F-1", "23311", 300, nil)
	small := fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)

	fx.detailed(t, "2.A.1", f(40), 2020)
	fx.coarse(t, mineralLabel, "서울특별시", 600, 2020)
	fx.coarse(t, mineralLabel, "부산광역시", 400, 2020)

	report, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, report.Status)
	assert.Equal(t, 4, report.Relations)
	assert.Equal(t, 4, report.Written)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)

	bigOut := outcomesByCode(report, big.ID)
	smallOut := outcomesByCode(report, small.ID)
	assert.InDelta(t, 30.0, *bigOut["2.A.1"].Amount, 1e-9)
	assert.InDelta(t, 10.0, *smallOut["2.A.1"].Amount, 1e-9)
	// coarse totals are summed across regions and scaled by 1/1000
	assert.InDelta(t, 0.75, *bigOut["2.A"].Amount, 1e-9)
	assert.InDelta(t, 0.25, *smallOut["2.A"].Amount, 1e-9)

	recs := fx.derived(t)
	require.Len(t, recs, 4)
	for _, rec := range recs {
		require.NotNil(t, rec.CategoryCode)
		assert.Equal(t, rec.CategoryName, *rec.CategoryCode)
		assert.Equal(t, emissiondomain.PeriodLengthYear, rec.PeriodLength)
		switch rec.CategoryName {
		case "2.A.1":
			assert.Equal(t, "calc:gir4", rec.Source)
			assert.Equal(t, "CO2", rec.PollutantID)
		case "2.A":
			assert.Equal(t, "calc:gir1", rec.Source)
			assert.Equal(t, "CO2eq", rec.PollutantID)
		default:
			t.Fatalf("unexpected derived category %q", rec.CategoryName)
		}
	}

	// ratios of one category add up to one
	rels, err := fx.relations.ListEligible(ctx, report.Period.Start)
	require.NoError(t, err)
	sums := map[string]float64{}
	for _, rel := range rels {
		stored, err := fx.relations.ListBySite(ctx, rel.SiteID)
		require.NoError(t, err)
		for _, s := range stored {
			if s.ID == rel.ID {
				require.NotNil(t, s.ContributionRatio)
				sums[s.CategoryCode] += *s.ContributionRatio
			}
		}
	}
	assert.InDelta(t, 1.0, sums["2.A"], 1e-9)
	assert.InDelta(t, 1.0, sums["2.A.1"], 1e-9)
}

func TestRunIsIdempotent(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	fx.site(t, "F-1", "23311", 300, nil)
	fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)
	fx.detailed(t, "2.A.1", f(40), 2020)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	_, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	first := fx.derived(t)

	second, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Written)

	again := fx.derived(t)
	require.Len(t, again, len(first))
	byID := map[snowflake.ID]float64{}
	for _, rec := range first {
		byID[rec.ID] = *rec.EmissionTotal
	}
	for _, rec := range again {
		prev, ok := byID[rec.ID]
		require.True(t, ok, "derived record %s was replaced instead of updated", rec.ID)
		assert.InDelta(t, prev, *rec.EmissionTotal, 1e-9)
	}

	runs, err := fx.engine.ListRuns(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunSkipsMissingTotals(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	steel := fx.site(t, "F-1", "24111", 100, nil)
	fx.rebuild(t)
	// a null cell in the detailed inventory is not an allocatable total
	fx.detailed(t, "2.C.1", nil, 2020)

	report, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Written)

	out := outcomesByCode(report, steel.ID)
	assert.Equal(t, domain.ReasonMissingAggregateTotal, out["2.C"].Reason)
	assert.Empty(t, out["2.C"].Detail)
	assert.Equal(t, domain.ReasonMissingAggregateTotal, out["2.C.1"].Reason)
	assert.Empty(t, fx.derived(t))

	rels, err := fx.relations.ListBySite(ctx, steel.ID)
	require.NoError(t, err)
	for _, rel := range rels {
		assert.Nil(t, rel.ContributionRatio)
	}
}

func TestRunSkipsUnmappedLevelTwoCategory(t *testing.T) {
	tax := &taxonomy.Taxonomy{
		Bridge:  taxonomy.Default(),
		Sectors: taxonomy.NewSectorTable(map[string]string{"29999": "2.D.1"}),
	}
	fx := setup(t, tax)
	ctx := context.Background()

	site := fx.site(t, "F-1", "29999", 100, nil)
	fx.rebuild(t)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	report, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	out := outcomesByCode(report, site.ID)
	assert.Equal(t, domain.OutcomeSkipped, out["2.D"].Status)
	assert.Equal(t, domain.ReasonMissingAggregateTotal, out["2.D"].Reason)
	assert.Equal(t, domain.DetailUnmappedCategory, out["2.D"].Detail)
	assert.Equal(t, 1, report.ReasonCounts()["missing_aggregate_total:unmapped_category"])
}

func TestRunSkipsZeroDenominator(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	site := fx.site(t, "F-1", "23311", 100, nil)
	require.NoError(t, fx.relRepo.BatchCreate(ctx, []*relationdomain.Relation{{
		ID:                    fx.node.Generate(),
		SiteID:                site.ID,
		SectorID:              "23311",
		CategoryCode:          "2.A.1",
		CategoryLevel:         3,
		ContributionMagnitude: 0,
	}}))
	fx.detailed(t, "2.A.1", f(40), 2020)

	report, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, domain.ReasonZeroDenominator, report.Outcomes[0].Reason)
	assert.Empty(t, fx.derived(t))
}

func TestRunHonorsOperationStart(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	opened := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	early := fx.site(t, "F-1", "23311", 100, nil)
	late := fx.site(t, "F-2", "23311", 100, &opened)
	fx.rebuild(t)
	fx.detailed(t, "2.A.1", f(10), 2021)
	fx.detailed(t, "2.A.1", f(10), 2022)

	y2021, err := fx.engine.Run(ctx, 2021)
	require.NoError(t, err)
	assert.Empty(t, outcomesByCode(y2021, late.ID))
	assert.InDelta(t, 10.0, *outcomesByCode(y2021, early.ID)["2.A.1"].Amount, 1e-9)

	y2022, err := fx.engine.Run(ctx, 2022)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, *outcomesByCode(y2022, late.ID)["2.A.1"].Amount, 1e-9)
	assert.InDelta(t, 5.0, *outcomesByCode(y2022, early.ID)["2.A.1"].Amount, 1e-9)
}

func TestRunWithoutRelations(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	report, err := fx.engine.Run(ctx, 2020)
	assert.ErrorIs(t, err, domain.ErrNoRelationsFound)
	require.NotNil(t, report)
	assert.Equal(t, domain.RunNoRelations, report.Status)

	year := 2020
	runs, err := fx.engine.ListRuns(ctx, &year, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunNoRelations, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestRunRange(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	fx.site(t, "F-1", "23311", 100, nil)
	fx.rebuild(t)
	fx.detailed(t, "2.A.1", f(10), 2019)
	fx.detailed(t, "2.A.1", f(20), 2020)
	fx.detailed(t, "2.A.1", f(30), 2021)

	reports, err := fx.engine.RunRange(ctx, 2019, 2021)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, 2019+i, r.Year)
		assert.Equal(t, 1, r.Written)
	}
	assert.Len(t, fx.derived(t), 3)

	_, err = fx.engine.RunRange(ctx, 2021, 2019)
	assert.ErrorIs(t, err, domain.ErrInvalidYear)
}

func TestRunRangeReportsEmptyYearsWithoutStopping(t *testing.T) {
	fx := setup(t, nil)
	reports, err := fx.engine.RunRange(context.Background(), 2019, 2020)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoRelationsFound))
	assert.Len(t, reports, 2)
}

func TestRunValidation(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	_, err := fx.engine.Run(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidYear)

	_, err = fx.engine.RunPeriod(ctx, domain.Period{
		Start: time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestRunSkipsMissingTotalsAlongsideWrittenSiblings(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	steel := fx.site(t, "F-1", "24111", 100, nil)
	cement := fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)
	fx.detailed(t, "2.C.1", nil, 2020)
	fx.detailed(t, "2.A.1", f(40), 2020)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	report, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, report.Status)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Failed)

	for code, o := range outcomesByCode(report, steel.ID) {
		assert.Equal(t, domain.ReasonMissingAggregateTotal, o.Reason, code)
	}
	recs := fx.derived(t)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, cement.ID, *rec.SiteID)
	}

	for _, ratio := range fx.ratios(t, steel.ID) {
		assert.Nil(t, ratio)
	}
	for code, ratio := range fx.ratios(t, cement.ID) {
		require.NotNil(t, ratio, code)
		assert.InDelta(t, 1.0, *ratio, 1e-9)
	}
}

func TestRunWithdrawsShareWhenTotalDisappears(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	big := fx.site(t, "F-1", "23311", 300, nil)
	small := fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)
	fx.detailed(t, "2.A.1", f(40), 2020)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	first, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	require.Equal(t, 4, first.Written)

	// the detailed cell is later blanked out by a corrected import
	fx.detailed(t, "2.A.1", nil, 2020)

	second, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Written)
	assert.Equal(t, 2, second.Skipped)

	recs := fx.derived(t)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "2.A", rec.CategoryName)
	}
	for _, site := range []*sitedomain.Site{big, small} {
		ratios := fx.ratios(t, site.ID)
		assert.Nil(t, ratios["2.A.1"])
		assert.NotNil(t, ratios["2.A"])
	}
}

func TestRunIsolatesFailedRelation(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	big := fx.site(t, "F-1", "23311", 300, nil)
	small := fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)
	fx.detailed(t, "2.A.1", f(40), 2020)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	engine := fx.engineWith(conflictingEmissions{Service: fx.emissions, siteID: big.ID, code: "2.A.1"})
	report, err := engine.Run(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, report.Status)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, 1, report.Failed)

	failed := outcomesByCode(report, big.ID)["2.A.1"]
	assert.Equal(t, domain.OutcomeFailed, failed.Status)
	assert.Equal(t, domain.ReasonUpsertConflict, failed.Reason)
	assert.Contains(t, failed.Detail, "upsert derived")

	sibling := outcomesByCode(report, small.ID)["2.A.1"]
	assert.Equal(t, domain.OutcomeWritten, sibling.Status)
	assert.InDelta(t, 10.0, *sibling.Amount, 1e-9)

	// the ratio written before the failed upsert is rolled back with it
	assert.Nil(t, fx.ratios(t, big.ID)["2.A.1"])
	assert.NotNil(t, fx.ratios(t, big.ID)["2.A"])

	recs := fx.derived(t)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.False(t, *rec.SiteID == big.ID && rec.CategoryName == "2.A.1")
	}
}

func TestRunSumsSectorsSharingACategory(t *testing.T) {
	fx := setup(t, nil)
	ctx := context.Background()

	fx.site(t, "F-1", "23311,23312", 100, nil)
	fx.site(t, "F-2", "23311", 100, nil)
	fx.rebuild(t)
	fx.coarse(t, mineralLabel, "서울특별시", 1000, 2020)

	_, err := fx.engine.Run(ctx, 2020)
	require.NoError(t, err)

	var total float64
	for _, rec := range fx.derived(t) {
		if rec.CategoryName == "2.A" {
			total += *rec.EmissionTotal
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}
