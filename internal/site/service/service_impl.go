package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/verdant/internal/cache"
	"github.com/smallbiznis/verdant/internal/config"
	"github.com/smallbiznis/verdant/internal/observability/metrics"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	"github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const defaultListLimit = 200

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Regions  domain.RegionFinder
	Geocoder domain.Geocoder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	regions  domain.RegionFinder
	geocoder domain.Geocoder
	metrics  *metrics.Metrics
	genID    *snowflake.Node

	limiter  *rate.Limiter
	geoCache cache.Cache[string, domain.GeoResult]
	cacheTTL time.Duration
	validate *validator.Validate
}

func New(p Params) domain.Service {
	rps := p.Config.Geocoder.RequestsPerSec
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := p.Config.Geocoder.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Service{
		log:      p.Log.Named("site.service"),
		repo:     p.Repo,
		regions:  p.Regions,
		geocoder: p.Geocoder,
		metrics:  p.Metrics,
		genID:    p.GenID,
		limiter:  rate.NewLimiter(limit, burst),
		geoCache: cache.NewTTLCache[string, domain.GeoResult](),
		cacheTTL: time.Duration(p.Config.Geocoder.CacheTTLMin) * time.Minute,
		validate: validator.New(),
	}
}

// UpsertRegistration writes a registry row keyed by its content hash. Fields
// the registry does not carry, such as the resolved address and the owning
// organization, survive a re-import. A change of sectors or area flags the
// site for relation rebuild.
func (s *Service) UpsertRegistration(ctx context.Context, reg domain.Registration) (*domain.Site, error) {
	reg.CompanyName = strings.TrimSpace(reg.CompanyName)
	reg.FactoryManagementNumber = strings.TrimSpace(reg.FactoryManagementNumber)
	reg.LandAddress = strings.TrimSpace(reg.LandAddress)
	if err := s.validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRegistration, err)
	}

	keyHash := reg.KeyHash()
	existing, err := s.repo.FindByKeyHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	site := &domain.Site{
		ID:                        s.genID.Generate(),
		KeyHash:                   keyHash,
		CompanyName:               reg.CompanyName,
		FactoryManagementNumber:   reg.FactoryManagementNumber,
		StreetAddress:             strings.TrimSpace(reg.StreetAddress),
		LandAddress:               reg.LandAddress,
		SectorIDs:                 strings.TrimSpace(reg.SectorIDs),
		SectorIDMain:              strings.TrimSpace(reg.SectorIDMain),
		AddressRegionName:         nonEmpty(reg.AddressRegionName),
		AddressSubRegion:          nonEmpty(reg.AddressSubRegion),
		RegistrationDateInitial:   reg.RegistrationDateInitial,
		OperationStart:            reg.RegistrationDateInitial,
		ManufacturingFacilityArea: reg.ManufacturingFacilityArea,
		BuildingArea:              reg.BuildingArea,
		LandArea:                  reg.LandArea,
		DataSource:                reg.DataSource,
		Attributes:                reg.Attributes,
		RelationsDirty:            true,
	}

	if existing != nil {
		site.StructuredAddress = existing.StructuredAddress
		site.RegionID = existing.RegionID
		site.Latitude = existing.Latitude
		site.Longitude = existing.Longitude
		site.OrganizationID = existing.OrganizationID
		if site.AddressRegionName == nil {
			site.AddressRegionName = existing.AddressRegionName
			site.AddressSubRegion = existing.AddressSubRegion
		}
		site.CreatedAt = existing.CreatedAt
		site.RelationsDirty = existing.RelationsDirty || relationInputsChanged(existing, site)
	}

	return s.repo.Upsert(ctx, site)
}

func relationInputsChanged(prev, next *domain.Site) bool {
	return prev.SectorIDs != next.SectorIDs ||
		prev.SectorIDMain != next.SectorIDMain ||
		prev.ProxyArea() != next.ProxyArea() ||
		!sameTime(prev.OperationStart, next.OperationStart)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ResolveAddress geocodes the site's street address, then its land
// address, and finally falls back to the first two words of the address.
// The region is matched by (province, district); its coordinates stand in
// when the geocoder returned none.
func (s *Service) ResolveAddress(ctx context.Context, id snowflake.ID) (*domain.Site, error) {
	site, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, raw := range []string{site.StreetAddress, site.LandAddress} {
		if addr := domain.CleanAddress(raw); addr != "" {
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoAddress
	}

	var result *domain.GeoResult
	for _, addr := range candidates {
		result, err = s.geocode(ctx, addr)
		if err != nil {
			return nil, err
		}
		if result != nil {
			break
		}
	}
	if result == nil {
		province, district, ok := domain.ParseRegionPair(candidates[len(candidates)-1])
		if !ok {
			return nil, domain.ErrNoAddress
		}
		result = &domain.GeoResult{Province: province, District: district, Parsed: true}
	}

	province, district := regiondomain.CanonicalPair(result.Province, result.District)
	structured := province + "|" + district
	patch := map[string]any{
		"structured_address":  structured,
		"address_region_name": province,
		"address_sub_region":  district,
	}

	lat, lng := result.Latitude, result.Longitude
	region, err := s.regions.FindByPair(ctx, province, district)
	switch {
	case err == nil:
		patch["region_id"] = region.ID
		if lat == nil || lng == nil {
			lat, lng = region.Latitude, region.Longitude
		}
	case errors.Is(err, regiondomain.ErrNotFound):
		s.log.Debug("no region for address",
			zap.String("site_id", site.ID.String()),
			zap.String("structured_address", structured),
		)
	default:
		return nil, err
	}
	patch["latitude"] = lat
	patch["longitude"] = lng

	if err := s.repo.Update(ctx, site.ID, patch); err != nil {
		return nil, err
	}
	return s.Get(ctx, site.ID)
}

func (s *Service) geocode(ctx context.Context, address string) (*domain.GeoResult, error) {
	if cached, ok := s.geoCache.Get(address); ok {
		s.metrics.RecordGeocodeLookup(ctx, "cache_hit")
		return &cached, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		s.metrics.RecordGeocodeLookup(ctx, "error")
		return nil, fmt.Errorf("geocode %q: %w", address, err)
	}
	if result == nil {
		s.metrics.RecordGeocodeLookup(ctx, "miss")
		return nil, nil
	}
	s.metrics.RecordGeocodeLookup(ctx, "hit")
	s.geoCache.Set(address, *result, s.cacheTTL)
	return result, nil
}

// ResolvePending resolves up to limit sites that have no structured address
// yet. A failing site is logged and skipped.
func (s *Service) ResolvePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	sites, err := s.repo.Find(ctx,
		option.IsNull("structured_address"),
		option.OrderBy("id ASC"),
		option.Limit(limit),
	)
	if err != nil {
		return 0, err
	}

	var (
		resolved int
		errs     []error
	)
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if _, err := s.ResolveAddress(ctx, site.ID); err != nil {
			s.log.Warn("address resolution failed", zap.String("site_id", site.ID.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("site %s: %w", site.ID, err))
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Site, error) {
	site, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, domain.ErrNotFound
	}
	return site, nil
}

func (s *Service) List(ctx context.Context, f domain.ListFilter) ([]*domain.Site, error) {
	var opts []option.QueryOption
	if name := strings.TrimSpace(f.CompanyName); name != "" {
		opts = append(opts, option.Equal("company_name", name))
	}
	if f.RegionID != nil {
		opts = append(opts, option.Equal("region_id", *f.RegionID))
	}
	if f.OrganizationID != nil {
		opts = append(opts, option.Equal("organization_id", *f.OrganizationID))
	}
	limit := f.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	opts = append(opts, option.OrderBy("id ASC"), option.Limit(limit), option.Offset(f.Offset))
	return s.repo.Find(ctx, opts...)
}

func (s *Service) ListDirty(ctx context.Context, limit int) ([]*domain.Site, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.Find(ctx,
		option.Equal("relations_dirty", true),
		option.OrderBy("id ASC"),
		option.Limit(limit),
	)
}

func (s *Service) SetRelationsDirty(ctx context.Context, id snowflake.ID, dirty bool) error {
	return s.repo.Update(ctx, id, map[string]any{"relations_dirty": dirty})
}

// LinkOrganization attaches unowned sites whose company name equals the
// organization's legal name.
func (s *Service) LinkOrganization(ctx context.Context, orgID snowflake.ID, legalName string) (int64, error) {
	legalName = strings.TrimSpace(legalName)
	if legalName == "" {
		return 0, nil
	}
	return s.repo.UpdateWhere(ctx,
		map[string]any{"organization_id": orgID},
		option.Equal("company_name", legalName),
		option.IsNull("organization_id"),
	)
}

// ListByOrganization returns sites owned by orgID, plus unowned sites
// registered under its legal name.
func (s *Service) ListByOrganization(ctx context.Context, orgID snowflake.ID, legalName string) ([]*domain.Site, error) {
	legalName = strings.TrimSpace(legalName)
	return s.repo.Find(ctx,
		option.QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
			if legalName == "" {
				return db.Where("organization_id = ?", orgID)
			}
			return db.Where("organization_id = ? OR (organization_id IS NULL AND company_name = ?)", orgID, legalName)
		}),
		option.OrderBy("id ASC"),
	)
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
