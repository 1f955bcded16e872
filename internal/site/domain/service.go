package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
)

type Service interface {
	UpsertRegistration(ctx context.Context, reg Registration) (*Site, error)
	ResolveAddress(ctx context.Context, id snowflake.ID) (*Site, error)
	ResolvePending(ctx context.Context, limit int) (int, error)
	Get(ctx context.Context, id snowflake.ID) (*Site, error)
	List(ctx context.Context, f ListFilter) ([]*Site, error)
	ListDirty(ctx context.Context, limit int) ([]*Site, error)
	SetRelationsDirty(ctx context.Context, id snowflake.ID, dirty bool) error
	LinkOrganization(ctx context.Context, orgID snowflake.ID, legalName string) (int64, error)
	ListByOrganization(ctx context.Context, orgID snowflake.ID, legalName string) ([]*Site, error)
}

// RegionFinder is the slice of the region service address resolution needs.
type RegionFinder interface {
	FindByPair(ctx context.Context, parentName, childName string) (*regiondomain.Region, error)
}

type ListFilter struct {
	CompanyName    string
	RegionID       *snowflake.ID
	OrganizationID *snowflake.ID
	Limit, Offset  int
}

var (
	ErrInvalidRegistration = errors.New("invalid_site_registration")
	ErrNotFound            = errors.New("site_not_found")
	ErrNoAddress           = errors.New("site_has_no_address")
)
