package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/emission/repository"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/db"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func f(v float64) *float64 { return &v }

type fixture struct {
	db   *gorm.DB
	svc  domain.Service
	repo domain.Repository
	node *snowflake.Node
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest(&domain.Record{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.NewRepository(conn)
	return fixture{
		db:   conn,
		svc:  New(Params{Log: zap.NewNop(), GenID: node, Repo: repo}),
		repo: repo,
		node: node,
	}
}

func coarseRow(label, region string, total *float64, year int) domain.Partial {
	start, end := domain.YearPeriod(year)
	return domain.Partial{
		Source:        "gir1",
		CategoryName:  label,
		PollutantID:   "CO2eq",
		PeriodStart:   start,
		PeriodEnd:     end,
		PeriodLength:  domain.PeriodLengthYear,
		EmissionTotal: total,
		RegionName:    region,
	}
}

func TestUpsertRawIsIdempotent(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	first, err := fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "서울", f(10), 2020), "b1")
	require.NoError(t, err)
	second, err := fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "서울", f(12), 2020), "b2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "부산", f(3), 2020), "b2")
	require.NoError(t, err)

	rows, err := fx.svc.List(ctx, domain.ListFilter{Source: "gir1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	stored, err := fx.repo.FindOne(ctx, option.Equal("id", first.ID))
	require.NoError(t, err)
	assert.Equal(t, 12.0, *stored.EmissionTotal)
	assert.Equal(t, "b2", stored.BatchID)
}

func TestUpsertRawValidates(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	row := coarseRow("", "서울", f(1), 2020)
	_, err := fx.svc.UpsertRaw(ctx, row, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)

	row = coarseRow("x", "서울", f(1), 2020)
	row.PeriodEnd = row.PeriodStart.AddDate(-1, 0, 0)
	_, err = fx.svc.UpsertRaw(ctx, row, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)

	row = coarseRow("x", "서울", f(1), 2020)
	row.Source = "calc:gir1"
	_, err = fx.svc.UpsertRaw(ctx, row, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestSumCoarseScalesAndIgnoresDerived(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "서울", f(600), 2020), "")
	require.NoError(t, err)
	_, err = fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "부산", f(400), 2020), "")
	require.NoError(t, err)

	start, end := domain.YearPeriod(2020)
	siteID := fx.node.Generate()
	_, err = fx.svc.UpsertDerived(ctx, nil, &domain.Record{
		Source: "calc:gir1", CategoryName: "A.  광물산업", PollutantID: "CO2eq",
		PeriodStart: start, PeriodEnd: end, PeriodLength: domain.PeriodLengthYear,
		EmissionTotal: f(999), SiteID: &siteID,
	})
	require.NoError(t, err)

	q := domain.TotalQuery{Source: "gir1", CategoryName: "A.  광물산업", PollutantID: "CO2eq", PeriodStart: start, PeriodEnd: end, Scale: 1000}
	total, err := fx.svc.SumCoarse(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.InDelta(t, 1.0, *total, 1e-12)

	q.CategoryName = "B.  화학산업"
	total, err = fx.svc.SumCoarse(ctx, q)
	require.NoError(t, err)
	assert.Nil(t, total)
}

func TestSumCoarseAllNullIsNil(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.UpsertRaw(ctx, coarseRow("C.  금속산업", "서울", nil, 2021), "")
	require.NoError(t, err)

	start, end := domain.YearPeriod(2021)
	total, err := fx.svc.SumCoarse(ctx, domain.TotalQuery{Source: "gir1", CategoryName: "C.  금속산업", PollutantID: "CO2eq", PeriodStart: start, PeriodEnd: end, Scale: 1000})
	require.NoError(t, err)
	assert.Nil(t, total)
}

func TestFindDetailedExactMatch(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	start, end := domain.YearPeriod(2020)

	for _, pollutant := range []string{"CO2", "CH4"} {
		_, err := fx.svc.UpsertRaw(ctx, domain.Partial{
			Source: "gir4", CategoryName: "2.A.1", PollutantID: pollutant,
			PeriodStart: start, PeriodEnd: end, PeriodLength: domain.PeriodLengthYear,
			EmissionTotal: f(42),
		}, "")
		require.NoError(t, err)
	}

	rec, err := fx.svc.FindDetailed(ctx, domain.TotalQuery{Source: "gir4", CategoryName: "2.A.1", PollutantID: "CO2", PeriodStart: start, PeriodEnd: end})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CO2", rec.PollutantID)

	rec, err = fx.svc.FindDetailed(ctx, domain.TotalQuery{Source: "gir4", CategoryName: "2.A.2", PollutantID: "CO2", PeriodStart: start, PeriodEnd: end})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpsertDerivedRejectsRawSource(t *testing.T) {
	fx := setup(t)
	_, err := fx.svc.UpsertDerived(context.Background(), nil, &domain.Record{Source: "gir4"})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestDateBoundariesOnlyDerived(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	b, err := fx.svc.DateBoundaries(ctx)
	require.NoError(t, err)
	assert.Nil(t, b.Start)

	_, err = fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "서울", f(1), 2010), "")
	require.NoError(t, err)

	siteID := fx.node.Generate()
	for _, year := range []int{2018, 2020} {
		start, end := domain.YearPeriod(year)
		_, err := fx.svc.UpsertDerived(ctx, nil, &domain.Record{
			Source: "calc:gir4", CategoryName: "2.A.1", PollutantID: "CO2",
			PeriodStart: start, PeriodEnd: end, PeriodLength: domain.PeriodLengthYear,
			EmissionTotal: f(1), SiteID: &siteID,
		})
		require.NoError(t, err)
	}

	b, err = fx.svc.DateBoundaries(ctx)
	require.NoError(t, err)
	require.NotNil(t, b.Start)
	require.NotNil(t, b.End)
	assert.Equal(t, 2018, b.Start.Year())
	assert.Equal(t, time.December, b.End.Month())
	assert.Equal(t, 2020, b.End.Year())
}

func TestLinkCategories(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	start, end := domain.YearPeriod(2020)

	_, err := fx.svc.UpsertRaw(ctx, coarseRow("B.  화학산업", "서울", f(5), 2020), "")
	require.NoError(t, err)
	_, err = fx.svc.UpsertRaw(ctx, domain.Partial{
		Source: "gir4", CategoryName: "2.B.8", PollutantID: "CO2",
		PeriodStart: start, PeriodEnd: end, PeriodLength: domain.PeriodLengthYear,
	}, "")
	require.NoError(t, err)

	n, err := fx.svc.LinkCategories(ctx, taxonomy.Default(), "gir1", "gir4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := fx.repo.Find(ctx, option.NotNull("category_code"), option.OrderBy("source ASC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2.B", *rows[0].CategoryCode)
	assert.Equal(t, "2.B.8", *rows[1].CategoryCode)
}

func TestRegionalSummaryNormalizesAgainstCoarse(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "서울", f(1000), 2020), "")
	require.NoError(t, err)
	_, err = fx.svc.UpsertRaw(ctx, coarseRow("A.  광물산업", "부산", f(3000), 2020), "")
	require.NoError(t, err)

	start, end := domain.YearPeriod(2020)
	regionID := fx.node.Generate()
	for i, total := range []float64{1, 2} {
		siteID := fx.node.Generate()
		_, err := fx.svc.UpsertDerived(ctx, nil, &domain.Record{
			Source: "calc:gir4", CategoryName: "2.A.1", PollutantID: "CO2",
			PeriodStart: start, PeriodEnd: end, PeriodLength: domain.PeriodLengthYear,
			EmissionTotal: f(total), SiteID: &siteID, RegionID: &regionID,
			Latitude: f(37 + float64(i)), Longitude: f(127),
		})
		require.NoError(t, err)
	}

	rows, err := fx.svc.RegionalSummary(ctx, domain.RegionalSummaryRequest{
		From: start, To: end, DetailedSource: "gir4", CoarseSource: "gir1", CoarseScale: 1000,
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	derived := rows[0]
	assert.Equal(t, "calc:gir4", derived.Source)
	assert.InDelta(t, 3.0, derived.Total, 1e-9)
	assert.InDelta(t, 37.5, *derived.Latitude, 1e-9)
	assert.InDelta(t, 1.0, derived.Norm, 1e-9)
	assert.Equal(t, int64(2), derived.Records)

	assert.Equal(t, "부산", rows[1].RegionName)
	assert.InDelta(t, 3.0, rows[1].Total, 1e-9)
	assert.InDelta(t, 1.0, rows[1].Norm, 1e-9)
	assert.Equal(t, "서울", rows[2].RegionName)
	assert.InDelta(t, 0.0, rows[2].Norm, 1e-9)

	_, err = fx.svc.RegionalSummary(ctx, domain.RegionalSummaryRequest{From: end, To: start})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}
