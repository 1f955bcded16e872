package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"gorm.io/gorm"
)

type Service interface {
	Run(ctx context.Context, year int) (*Report, error)
	RunPeriod(ctx context.Context, period Period) (*Report, error)
	RunRange(ctx context.Context, from, to int) ([]*Report, error)
	ListRuns(ctx context.Context, year *int, limit int) ([]*Run, error)
}

// RelationSource is the slice of the relation service the engine reads and
// writes ratios through.
type RelationSource interface {
	ListEligible(ctx context.Context, periodStart time.Time) ([]relationdomain.Eligible, error)
	SumMagnitudeByCategory(ctx context.Context, periodStart time.Time) (map[string]float64, error)
	UpdateRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID, ratio float64) error
	ClearRatio(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

// EmissionStore is the slice of the emission service the engine reads
// aggregates from and writes derived records to.
type EmissionStore interface {
	FindDetailed(ctx context.Context, q emissiondomain.TotalQuery) (*emissiondomain.Record, error)
	SumCoarse(ctx context.Context, q emissiondomain.TotalQuery) (*float64, error)
	UpsertDerived(ctx context.Context, tx *gorm.DB, rec *emissiondomain.Record) (*emissiondomain.Record, error)
	DeleteDerived(ctx context.Context, tx *gorm.DB, key *emissiondomain.Record) (int64, error)
}

var (
	ErrNoRelationsFound = errors.New("no_relations_found")
	ErrInvalidYear      = errors.New("invalid_year")
	ErrInvalidPeriod    = errors.New("invalid_period")
)
