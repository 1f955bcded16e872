package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/verdant/internal/category"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultListLimit = 200

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Sites     domain.SiteDirectory
	Emissions domain.EmissionWriter
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	sites     domain.SiteDirectory
	emissions domain.EmissionWriter
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("organization.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		sites:     p.Sites,
		emissions: p.Emissions,
	}
}

// UpsertByLegalName creates or refreshes the organization registered under
// req.LegalName. Empty request fields keep the stored values.
func (s *Service) UpsertByLegalName(ctx context.Context, req domain.UpsertRequest) (*domain.Organization, error) {
	legalName := strings.TrimSpace(req.LegalName)
	if legalName == "" {
		return nil, domain.ErrInvalidName
	}

	existing, err := s.repo.FindByLegalName(ctx, legalName)
	if err != nil {
		return nil, err
	}

	org := &domain.Organization{
		ID:         s.genID.Generate(),
		LegalName:  legalName,
		Name:       strings.TrimSpace(req.Name),
		SectorMain: strings.TrimSpace(req.SectorMain),
		Metadata:   req.Metadata,
	}
	if existing != nil {
		org.CreatedAt = existing.CreatedAt
		if org.Name == "" {
			org.Name = existing.Name
		}
		if org.SectorMain == "" {
			org.SectorMain = existing.SectorMain
		}
		if org.Metadata == nil {
			org.Metadata = existing.Metadata
		}
	}
	if org.Name == "" {
		org.Name = legalName
	}
	org.Slug = slug.Make(org.Name)

	return s.repo.Upsert(ctx, org)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*domain.Organization, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.List(ctx, limit, offset)
}

// Apportion records an organization's yearly report and splits it across the
// organization's sites by proxy area. The organization-level record is
// written even when the organization has no sites. Every site receives one
// derived record; a site without area receives zero.
func (s *Service) Apportion(ctx context.Context, report domain.Report) (*domain.ApportionResult, error) {
	legalName := strings.TrimSpace(report.LegalName)
	if legalName == "" {
		return nil, domain.ErrInvalidName
	}
	if report.Year < 1 || report.Year > 9999 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidYear, report.Year)
	}
	source := strings.TrimSpace(report.Source)
	if source == "" {
		source = domain.ReportSource
	}
	categoryName := strings.TrimSpace(report.CategoryName)
	if categoryName == "" {
		categoryName = domain.ReportCategory
	}

	org, err := s.UpsertByLegalName(ctx, domain.UpsertRequest{
		LegalName:  legalName,
		Name:       report.Name,
		SectorMain: report.SectorMain,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.sites.LinkOrganization(ctx, org.ID, legalName); err != nil {
		return nil, fmt.Errorf("link sites: %w", err)
	}

	start, end := domain.ReportPeriod(report.Year)
	orgID := org.ID
	q := report.Quantities
	rec, err := s.emissions.UpsertRaw(ctx, emissiondomain.Partial{
		Source:            source,
		CategoryName:      categoryName,
		PollutantID:       domain.ReportPollutant,
		PeriodStart:       start,
		PeriodEnd:         end,
		PeriodLength:      emissiondomain.PeriodLengthYear,
		EmissionTotal:     q.EmissionTotal,
		EmissionDirect:    q.EmissionDirect,
		EmissionIndirect:  q.EmissionIndirect,
		EnergyHeat:        q.EnergyHeat,
		EnergyElectricity: q.EnergyElectricity,
		EnergyFuel:        q.EnergyFuel,
		EnergyTotal:       q.EnergyTotal,
		OrganizationID:    &orgID,
	}, report.BatchID)
	if err != nil {
		return nil, fmt.Errorf("upsert organization record: %w", err)
	}

	sites, err := s.sites.ListByOrganization(ctx, org.ID, legalName)
	if err != nil {
		return nil, err
	}

	totalArea := decimal.Zero
	for _, site := range sites {
		totalArea = totalArea.Add(decimal.NewFromFloat(site.ProxyArea()))
	}

	result := &domain.ApportionResult{Organization: org, Record: rec, Sites: make([]domain.SiteShare, 0, len(sites))}
	var errs []error
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		area := site.ProxyArea()
		share := decimal.Zero
		if totalArea.IsPositive() {
			share = decimal.NewFromFloat(area).Div(totalArea)
		}

		siteID := site.ID
		derived := &emissiondomain.Record{
			ID:                s.genID.Generate(),
			Source:            category.DerivedSource(source),
			CategoryName:      categoryName,
			PollutantID:       domain.ReportPollutant,
			PeriodStart:       start,
			PeriodEnd:         end,
			PeriodLength:      emissiondomain.PeriodLengthYear,
			EmissionTotal:     apportion(q.EmissionTotal, share),
			EmissionDirect:    apportion(q.EmissionDirect, share),
			EmissionIndirect:  apportion(q.EmissionIndirect, share),
			EnergyHeat:        apportion(q.EnergyHeat, share),
			EnergyElectricity: apportion(q.EnergyElectricity, share),
			EnergyFuel:        apportion(q.EnergyFuel, share),
			EnergyTotal:       apportion(q.EnergyTotal, share),
			SiteID:            &siteID,
			OrganizationID:    &orgID,
			RegionID:          site.RegionID,
			RegionName:        site.AddressSubRegion,
			Latitude:          site.Latitude,
			Longitude:         site.Longitude,
		}
		saved, err := s.emissions.UpsertDerived(ctx, nil, derived)
		if err != nil {
			s.log.Warn("site apportionment failed",
				zap.String("organization_id", org.ID.String()),
				zap.String("site_id", site.ID.String()),
				zap.Int("year", report.Year),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("site %s: %w", site.ID, err))
			continue
		}

		shareValue, _ := share.Float64()
		result.Sites = append(result.Sites, domain.SiteShare{
			SiteID:   site.ID,
			Area:     area,
			Share:    shareValue,
			RecordID: saved.ID,
		})
	}

	s.log.Info("organization report apportioned",
		zap.String("organization_id", org.ID.String()),
		zap.Int("year", report.Year),
		zap.Int("sites", len(result.Sites)),
	)
	return result, errors.Join(errs...)
}

func apportion(v *float64, share decimal.Decimal) *float64 {
	if v == nil {
		return nil
	}
	out, _ := decimal.NewFromFloat(*v).Mul(share).Float64()
	return &out
}
