package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"gorm.io/gorm"
)

type Service interface {
	ListEligible(ctx context.Context, periodStart time.Time) ([]Eligible, error)
	SumMagnitudeByCategory(ctx context.Context, periodStart time.Time) (map[string]float64, error)
	RebuildForSite(ctx context.Context, siteID snowflake.ID) (int, error)
	RebuildDirty(ctx context.Context, limit int) (RebuildResult, error)
	UpdateRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID, ratio float64) error
	ClearRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	ListBySite(ctx context.Context, siteID snowflake.ID) ([]*Relation, error)
}

// SiteSource is the slice of the site service relation rebuilds need.
type SiteSource interface {
	Get(ctx context.Context, id snowflake.ID) (*sitedomain.Site, error)
	ListDirty(ctx context.Context, limit int) ([]*sitedomain.Site, error)
	SetRelationsDirty(ctx context.Context, id snowflake.ID, dirty bool) error
}

type RebuildResult struct {
	Sites     int `json:"sites"`
	Relations int `json:"relations"`
	Failed    int `json:"failed"`
}

var ErrInvalidRatio = errors.New("invalid_contribution_ratio")
