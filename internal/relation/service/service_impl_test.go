package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/config"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	regionrepo "github.com/smallbiznis/verdant/internal/region/repository"
	regionservice "github.com/smallbiznis/verdant/internal/region/service"
	"github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/relation/repository"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/internal/site/geocoder"
	siterepo "github.com/smallbiznis/verdant/internal/site/repository"
	siteservice "github.com/smallbiznis/verdant/internal/site/service"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f(v float64) *float64 { return &v }

type fixture struct {
	svc   domain.Service
	sites sitedomain.Service
	node  *snowflake.Node
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest(&sitedomain.Site{}, &domain.Relation{}, &regiondomain.Region{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Allocation.SplitPolicy = config.SplitPolicyEven

	regions := regionservice.New(regionservice.Params{Log: zap.NewNop(), GenID: node, Repo: regionrepo.NewRepository(conn)})
	sites := siteservice.New(siteservice.Params{
		Config:   cfg,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     siterepo.NewRepository(conn),
		Regions:  regions,
		Geocoder: geocoder.Noop{},
	})
	svc := New(Params{
		Config:   cfg,
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.NewRepository(conn),
		Sites:    sites,
		Taxonomy: taxonomy.NewHolder(nil),
	})
	return fixture{svc: svc, sites: sites, node: node}
}

func register(t *testing.T, fx fixture, number, sectors, main string, area float64, opened *time.Time) *sitedomain.Site {
	t.Helper()
	site, err := fx.sites.UpsertRegistration(context.Background(), sitedomain.Registration{
		CompanyName:               "한국제철",
		FactoryManagementNumber:   number,
		LandAddress:               "경상북도 포항시 남구 " + number,
		SectorIDs:                 sectors,
		SectorIDMain:              main,
		RegistrationDateInitial:   opened,
		ManufacturingFacilityArea: f(area),
	})
	require.NoError(t, err)
	return site
}

func TestRebuildForSiteSplitsAreaAcrossSectors(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	site := register(t, fx, "F-1", "23311, 24111, 99999", "23311", 1200, nil)

	n, err := fx.svc.RebuildForSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rels, err := fx.svc.ListBySite(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, rels, 4)

	codes := make([]string, 0, len(rels))
	for _, rel := range rels {
		codes = append(codes, rel.CategoryCode)
		// the unmapped sector still counts toward the split
		assert.InDelta(t, 400.0, rel.ContributionMagnitude, 1e-9)
		assert.Equal(t, rel.SectorID == "23311", rel.IsMainCategory)
		assert.Nil(t, rel.ContributionRatio)
	}
	assert.Equal(t, []string{"2.A", "2.A.1", "2.C", "2.C.1"}, codes)
	assert.Equal(t, 3, rels[1].CategoryLevel)

	again, err := fx.sites.Get(ctx, site.ID)
	require.NoError(t, err)
	assert.False(t, again.RelationsDirty)

	// a second rebuild replaces rather than appends
	n, err = fx.svc.RebuildForSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	rels, err = fx.svc.ListBySite(ctx, site.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 4)
}

func TestBuildPolicies(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	sectors := taxonomy.DefaultSectorTable()

	site := &sitedomain.Site{ID: 7, SectorIDs: "23311,24111", SectorIDMain: "24111", BuildingArea: f(500)}
	full := Build(site, sectors, config.SplitPolicyFull, node)
	require.Len(t, full, 4)
	for _, rel := range full {
		assert.InDelta(t, 500.0, rel.ContributionMagnitude, 1e-9)
	}

	even := Build(site, sectors, config.SplitPolicyEven, node)
	require.Len(t, even, 4)
	assert.InDelta(t, 250.0, even[0].ContributionMagnitude, 1e-9)

	site.BuildingArea = f(0)
	assert.Empty(t, Build(site, sectors, config.SplitPolicyEven, node))

	site.BuildingArea = f(500)
	site.SectorIDs = ""
	assert.Empty(t, Build(site, sectors, config.SplitPolicyEven, node))
}

func TestBuildMergesSectorsSharingACategory(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	site := &sitedomain.Site{ID: 9, SectorIDs: "23311,23312", SectorIDMain: "23312", BuildingArea: f(100)}
	rels := Build(site, taxonomy.DefaultSectorTable(), config.SplitPolicyEven, node)
	require.Len(t, rels, 3)

	byCode := map[string]*domain.Relation{}
	for _, rel := range rels {
		require.NotContains(t, byCode, rel.CategoryCode)
		byCode[rel.CategoryCode] = rel
	}
	assert.InDelta(t, 100.0, byCode["2.A"].ContributionMagnitude, 1e-9)
	assert.True(t, byCode["2.A"].IsMainCategory)
	assert.Equal(t, "23312", byCode["2.A"].SectorID)
	assert.InDelta(t, 50.0, byCode["2.A.1"].ContributionMagnitude, 1e-9)
	assert.False(t, byCode["2.A.1"].IsMainCategory)
	assert.InDelta(t, 50.0, byCode["2.A.2"].ContributionMagnitude, 1e-9)
	assert.True(t, byCode["2.A.2"].IsMainCategory)
}

func TestEligibilityFollowsOperationStart(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	opened := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	late := register(t, fx, "F-1", "23311", "23311", 100, &opened)
	always := register(t, fx, "F-2", "23311", "23311", 300, nil)

	result, err := fx.svc.RebuildDirty(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.RebuildResult{Sites: 2, Relations: 4}, result)

	y2020 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := fx.svc.ListEligible(ctx, y2020)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, always.ID, row.SiteID)
		assert.NotEqual(t, late.ID, row.SiteID)
	}

	sums, err := fx.svc.SumMagnitudeByCategory(ctx, y2020)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, sums["2.A.1"], 1e-9)

	y2021 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err = fx.svc.ListEligible(ctx, y2021)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	sums, err = fx.svc.SumMagnitudeByCategory(ctx, y2021)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, sums["2.A"], 1e-9)
	assert.InDelta(t, 400.0, sums["2.A.1"], 1e-9)

	dirty, err := fx.sites.ListDirty(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestUpdateRatio(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	site := register(t, fx, "F-1", "19101", "19101", 100, nil)
	_, err := fx.svc.RebuildForSite(ctx, site.ID)
	require.NoError(t, err)

	rels, err := fx.svc.ListBySite(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "2.B", rels[0].CategoryCode)

	assert.ErrorIs(t, fx.svc.UpdateRatio(ctx, nil, rels[0].ID, -0.5), domain.ErrInvalidRatio)
	require.NoError(t, fx.svc.UpdateRatio(ctx, nil, rels[0].ID, 1))

	rels, err = fx.svc.ListBySite(ctx, site.ID)
	require.NoError(t, err)
	require.NotNil(t, rels[0].ContributionRatio)
	assert.Equal(t, 1.0, *rels[0].ContributionRatio)
}
