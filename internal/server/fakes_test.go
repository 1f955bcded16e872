package server

import (
	"context"
	"io"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/importer"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
)

type fakeEmissions struct {
	records    []*emissiondomain.Record
	lastFilter emissiondomain.ListFilter
	bounds     emissiondomain.Boundaries
	lastReq    emissiondomain.RegionalSummaryRequest
	totals     []emissiondomain.RegionalTotal
}

func (f *fakeEmissions) List(_ context.Context, filter emissiondomain.ListFilter) ([]*emissiondomain.Record, error) {
	f.lastFilter = filter
	end := min(filter.Offset+filter.Limit, len(f.records))
	if filter.Offset >= end {
		return nil, nil
	}
	return f.records[filter.Offset:end], nil
}

func (f *fakeEmissions) DateBoundaries(context.Context) (*emissiondomain.Boundaries, error) {
	b := f.bounds
	return &b, nil
}

func (f *fakeEmissions) RegionalSummary(_ context.Context, req emissiondomain.RegionalSummaryRequest) ([]emissiondomain.RegionalTotal, error) {
	f.lastReq = req
	return f.totals, nil
}

type fakeAllocator struct {
	reports  []*allocationdomain.Report
	err      error
	from, to int
	runs     []*allocationdomain.Run
	runYear  *int
}

func (f *fakeAllocator) RunRange(_ context.Context, from, to int) ([]*allocationdomain.Report, error) {
	f.from, f.to = from, to
	return f.reports, f.err
}

func (f *fakeAllocator) ListRuns(_ context.Context, year *int, _ int) ([]*allocationdomain.Run, error) {
	f.runYear = year
	return f.runs, nil
}

type fakeSites struct {
	sites    map[snowflake.ID]*sitedomain.Site
	resolved []snowflake.ID
}

func (f *fakeSites) Get(_ context.Context, id snowflake.ID) (*sitedomain.Site, error) {
	site, ok := f.sites[id]
	if !ok {
		return nil, sitedomain.ErrNotFound
	}
	return site, nil
}

func (f *fakeSites) List(context.Context, sitedomain.ListFilter) ([]*sitedomain.Site, error) {
	out := make([]*sitedomain.Site, 0, len(f.sites))
	for _, site := range f.sites {
		out = append(out, site)
	}
	return out, nil
}

func (f *fakeSites) ResolveAddress(ctx context.Context, id snowflake.ID) (*sitedomain.Site, error) {
	site, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if site.StreetAddress == "" && site.LandAddress == "" {
		return nil, sitedomain.ErrNoAddress
	}
	f.resolved = append(f.resolved, id)
	return site, nil
}

type fakeRelations struct {
	bySite map[snowflake.ID][]*relationdomain.Relation
}

func (f *fakeRelations) ListBySite(_ context.Context, siteID snowflake.ID) ([]*relationdomain.Relation, error) {
	return f.bySite[siteID], nil
}

func (f *fakeRelations) RebuildForSite(_ context.Context, siteID snowflake.ID) (int, error) {
	return len(f.bySite[siteID]), nil
}

type fakeRegions struct {
	regions []*regiondomain.Region
}

func (f *fakeRegions) List(context.Context, *snowflake.ID) ([]*regiondomain.Region, error) {
	return f.regions, nil
}

type fakeOrganizations struct {
	reports []organizationdomain.Report
}

func (f *fakeOrganizations) Get(context.Context, snowflake.ID) (*organizationdomain.Organization, error) {
	return nil, organizationdomain.ErrNotFound
}

func (f *fakeOrganizations) List(context.Context, int, int) ([]*organizationdomain.Organization, error) {
	return nil, nil
}

func (f *fakeOrganizations) Apportion(_ context.Context, report organizationdomain.Report) (*organizationdomain.ApportionResult, error) {
	if report.Year < 1900 {
		return nil, organizationdomain.ErrInvalidYear
	}
	f.reports = append(f.reports, report)
	return &organizationdomain.ApportionResult{
		Organization: &organizationdomain.Organization{LegalName: report.LegalName},
	}, nil
}

type fakeImporter struct {
	filename string
	kind     string
	body     string
}

func (f *fakeImporter) Import(_ context.Context, r io.Reader, filename, kind string) (importer.Result, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return importer.Result{}, err
	}
	f.filename, f.kind, f.body = filename, kind, string(b)
	if kind == "bogus" {
		return importer.Result{}, importer.ErrUnknownKind
	}
	return importer.Result{Kind: importer.Kind(kind), Rows: 1, Imported: 1}, nil
}

type fakeLimiter struct {
	result ratelimit.RateLimitResult
}

func (f *fakeLimiter) AllowImport(context.Context, string, int64) (*ratelimit.RateLimitResult, error) {
	res := f.result
	return &res, nil
}
