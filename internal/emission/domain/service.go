package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"gorm.io/gorm"
)

type Service interface {
	UpsertRaw(ctx context.Context, p Partial, batchID string) (*Record, error)
	UpsertDerived(ctx context.Context, tx *gorm.DB, rec *Record) (*Record, error)
	DeleteDerived(ctx context.Context, tx *gorm.DB, key *Record) (int64, error)
	FindDetailed(ctx context.Context, q TotalQuery) (*Record, error)
	SumCoarse(ctx context.Context, q TotalQuery) (*float64, error)
	LinkCategories(ctx context.Context, bridge *taxonomy.Bridge, coarseSource, detailedSource string) (int64, error)
	DateBoundaries(ctx context.Context) (*Boundaries, error)
	RegionalSummary(ctx context.Context, req RegionalSummaryRequest) ([]RegionalTotal, error)
	List(ctx context.Context, f ListFilter) ([]*Record, error)
}

// TotalQuery selects the non-derived aggregate for one category, period and
// pollutant. Scale divides a summed total; zero leaves it unscaled.
type TotalQuery struct {
	Source       string
	CategoryName string
	PollutantID  string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Scale        float64
}

type Boundaries struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type RegionalSummaryRequest struct {
	From, To       time.Time
	DetailedSource string
	CoarseSource   string
	CoarseScale    float64
}

// RegionalTotal is one region's total for one source. Norm is the total
// rescaled onto the min-max range of the raw coarse series.
type RegionalTotal struct {
	Source     string        `json:"source"`
	RegionID   *snowflake.ID `json:"region_id,omitempty"`
	RegionName string        `json:"region_name"`
	Total      float64       `json:"total"`
	Latitude   *float64      `json:"latitude,omitempty"`
	Longitude  *float64      `json:"longitude,omitempty"`
	Records    int64         `json:"records"`
	Norm       float64       `json:"norm"`
}

type ListFilter struct {
	Source         string
	CategoryName   string
	Derived        *bool
	SiteID         *snowflake.ID
	OrganizationID *snowflake.ID
	From, To       *time.Time
	Limit, Offset  int
}

var (
	ErrInvalidRecord = errors.New("invalid_emission_record")
	ErrInvalidPeriod = errors.New("invalid_period")
)
