package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/category"
	"github.com/smallbiznis/verdant/internal/config"
	"github.com/smallbiznis/verdant/internal/relation/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRebuildBatch = 100

type Params struct {
	fx.In

	Config   config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Sites    domain.SiteSource
	Taxonomy *taxonomy.Holder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	sites    domain.SiteSource
	taxonomy *taxonomy.Holder
	policy   string
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("relation.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		sites:    p.Sites,
		taxonomy: p.Taxonomy,
		policy:   p.Config.Allocation.SplitPolicy,
	}
}

func (s *Service) ListEligible(ctx context.Context, periodStart time.Time) ([]domain.Eligible, error) {
	return s.repo.ListEligible(ctx, periodStart)
}

func (s *Service) SumMagnitudeByCategory(ctx context.Context, periodStart time.Time) (map[string]float64, error) {
	return s.repo.SumMagnitudeByCategory(ctx, periodStart)
}

// RebuildForSite replaces every relation of the site. Each listed sector
// counts toward the split, mapped or not, and each mapped sector yields one
// relation for its level-2 category and one for its level-3 category.
func (s *Service) RebuildForSite(ctx context.Context, siteID snowflake.ID) (int, error) {
	site, err := s.sites.Get(ctx, siteID)
	if err != nil {
		return 0, err
	}

	relations := Build(site, s.taxonomy.Sectors(), s.policy, s.genID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.DeleteBySite(ctx, site.ID); err != nil {
			return fmt.Errorf("delete relations: %w", err)
		}
		return repo.BatchCreate(ctx, relations)
	})
	if err != nil {
		return 0, err
	}

	if err := s.sites.SetRelationsDirty(ctx, site.ID, false); err != nil {
		return 0, err
	}

	s.log.Debug("relations rebuilt",
		zap.String("site_id", site.ID.String()),
		zap.Int("relations", len(relations)),
	)
	return len(relations), nil
}

// RebuildDirty rebuilds up to limit sites whose sectors or area changed
// since their relations were last generated.
func (s *Service) RebuildDirty(ctx context.Context, limit int) (domain.RebuildResult, error) {
	if limit <= 0 {
		limit = defaultRebuildBatch
	}

	var result domain.RebuildResult
	sites, err := s.sites.ListDirty(ctx, limit)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := s.RebuildForSite(ctx, site.ID)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("site %s: %w", site.ID, err))
			continue
		}
		result.Sites++
		result.Relations += n
	}
	return result, errors.Join(errs...)
}

func (s *Service) UpdateRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID, ratio float64) error {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return domain.ErrInvalidRatio
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.UpdateRatio(ctx, id, ratio)
}

// ClearRatio resets the ratio of a relation that no longer draws a share.
func (s *Service) ClearRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.ClearRatio(ctx, id)
}

func (s *Service) ListBySite(ctx context.Context, siteID snowflake.ID) ([]*domain.Relation, error) {
	return s.repo.ListBySite(ctx, siteID)
}

// Build derives the relations of one site. A site without a positive proxy
// area contributes nothing. Sectors that reach the same category are merged
// into one relation carrying the summed magnitude, so the derived record of
// that category holds the site's whole share.
func Build(site *sitedomain.Site, sectors *taxonomy.SectorTable, policy string, genID *snowflake.Node) []*domain.Relation {
	area := site.ProxyArea()
	ids := site.Sectors()
	if area <= 0 || len(ids) == 0 {
		return nil
	}

	magnitude := area
	if policy != config.SplitPolicyFull {
		magnitude = area / float64(len(ids))
	}

	var out []*domain.Relation
	byCode := map[string]*domain.Relation{}
	for _, sectorID := range ids {
		main := sectorID == site.SectorIDMain
		for _, code := range sectors.Categories(sectorID) {
			if rel, ok := byCode[code]; ok {
				rel.ContributionMagnitude += magnitude
				if main && !rel.IsMainCategory {
					rel.SectorID = sectorID
					rel.IsMainCategory = true
				}
				continue
			}
			rel := &domain.Relation{
				ID:                    genID.Generate(),
				SiteID:                site.ID,
				SectorID:              sectorID,
				CategoryCode:          code,
				CategoryLevel:         category.Level(code),
				ContributionMagnitude: magnitude,
				IsMainCategory:        main,
			}
			byCode[code] = rel
			out = append(out, rel)
		}
	}
	return out
}
