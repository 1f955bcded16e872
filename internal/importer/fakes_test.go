package importer

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
)

type fakeEmissions struct {
	mu       sync.Mutex
	partials []emissiondomain.Partial
	batches  []string
	failOn   string
}

func (f *fakeEmissions) UpsertRaw(_ context.Context, p emissiondomain.Partial, batchID string) (*emissiondomain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && p.CategoryName == f.failOn {
		return nil, emissiondomain.ErrInvalidRecord
	}
	f.partials = append(f.partials, p)
	f.batches = append(f.batches, batchID)
	return p.ToRecord(snowflake.ID(len(f.partials))), nil
}

type fakeRegions struct {
	provinces map[string]*regiondomain.Region
	imported  []regiondomain.UpsertRequest
}

func (f *fakeRegions) FindProvince(_ context.Context, name string) (*regiondomain.Region, error) {
	if r, ok := f.provinces[name]; ok {
		return r, nil
	}
	return nil, regiondomain.ErrNotFound
}

func (f *fakeRegions) ImportRows(_ context.Context, rows []regiondomain.UpsertRequest) (regiondomain.ImportResult, error) {
	f.imported = append(f.imported, rows...)
	return regiondomain.ImportResult{Upserted: len(rows)}, nil
}

type fakeSites struct {
	regs []sitedomain.Registration
}

func (f *fakeSites) UpsertRegistration(_ context.Context, reg sitedomain.Registration) (*sitedomain.Site, error) {
	f.regs = append(f.regs, reg)
	return &sitedomain.Site{ID: snowflake.ID(len(f.regs)), CompanyName: reg.CompanyName}, nil
}

type fakeApportioner struct {
	reports []organizationdomain.Report
}

func (f *fakeApportioner) Apportion(_ context.Context, report organizationdomain.Report) (*organizationdomain.ApportionResult, error) {
	f.reports = append(f.reports, report)
	return &organizationdomain.ApportionResult{}, nil
}
