package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/region/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

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
		log:   p.Log.Named("region.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Region, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	var parentID *snowflake.ID
	if parentName := strings.TrimSpace(req.ParentName); parentName != "" {
		parent, err := s.repo.FindRoot(ctx, parentName)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrParentNotFound, parentName)
		}
		parentID = &parent.ID
	}

	regionType := strings.TrimSpace(req.Type)
	if regionType == "" {
		regionType = domain.TypeProvince
		if parentID != nil {
			regionType = domain.TypeDistrict
		}
	}

	return s.repo.Upsert(ctx, &domain.Region{
		ID:        s.genID.Generate(),
		Name:      name,
		Type:      regionType,
		ParentID:  parentID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

// ImportRows upserts rows in order, so parents must precede their children.
// A failing row is recorded and the import continues.
func (s *Service) ImportRows(ctx context.Context, rows []domain.UpsertRequest) (domain.ImportResult, error) {
	var (
		result domain.ImportResult
		errs   []error
	)
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(append(errs, err)...)
		}
		if _, err := s.Upsert(ctx, row); err != nil {
			result.Failed++
			s.log.Warn("region row failed",
				zap.Int("row", i),
				zap.String("name", row.Name),
				zap.String("parent", row.ParentName),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("row %d (%s): %w", i, row.Name, err))
			continue
		}
		result.Upserted++
	}
	return result, errors.Join(errs...)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Region, error) {
	region, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, domain.ErrNotFound
	}
	return region, nil
}

// FindByPair looks a district up under its province. Short province names
// are expanded first. A miss returns ErrNotFound.
func (s *Service) FindByPair(ctx context.Context, parentName, childName string) (*domain.Region, error) {
	parentName, childName = domain.CanonicalPair(parentName, childName)
	if parentName == "" || childName == "" {
		return nil, domain.ErrNotFound
	}

	parent, err := s.repo.FindRoot(ctx, parentName)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, domain.ErrNotFound
	}
	child, err := s.repo.FindChild(ctx, parent.ID, childName)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, domain.ErrNotFound
	}
	return child, nil
}

// FindProvince looks a top-level region up by its full or short name.
func (s *Service) FindProvince(ctx context.Context, name string) (*domain.Region, error) {
	name, _ = domain.CanonicalPair(name, "")
	if name == "" {
		return nil, domain.ErrNotFound
	}
	region, err := s.repo.FindRoot(ctx, name)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, domain.ErrNotFound
	}
	return region, nil
}

func (s *Service) List(ctx context.Context, parentID *snowflake.ID) ([]*domain.Region, error) {
	return s.repo.List(ctx, parentID)
}
