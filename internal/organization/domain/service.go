package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"gorm.io/gorm"
)

const (
	// ReportSource tags organization-level emission reports.
	ReportSource = "orig:gir-ets"
	// ReportPollutant is the unit organization reports are filed in.
	ReportPollutant = "tCO2eq"
	// ReportCategory names the organization-wide total category.
	ReportCategory = "total"
)

type Service interface {
	UpsertByLegalName(ctx context.Context, req UpsertRequest) (*Organization, error)
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
	Apportion(ctx context.Context, report Report) (*ApportionResult, error)
}

// SiteDirectory is the slice of the site service apportionment needs.
type SiteDirectory interface {
	LinkOrganization(ctx context.Context, orgID snowflake.ID, legalName string) (int64, error)
	ListByOrganization(ctx context.Context, orgID snowflake.ID, legalName string) ([]*sitedomain.Site, error)
}

// EmissionWriter is the slice of the emission service apportionment needs.
type EmissionWriter interface {
	UpsertRaw(ctx context.Context, p emissiondomain.Partial, batchID string) (*emissiondomain.Record, error)
	UpsertDerived(ctx context.Context, tx *gorm.DB, rec *emissiondomain.Record) (*emissiondomain.Record, error)
}

type UpsertRequest struct {
	LegalName  string
	Name       string
	SectorMain string
	Metadata   map[string]any
}

// Report is one organization's reported emissions and energy use for a
// year. Nil quantities were not reported.
type Report struct {
	LegalName    string   `json:"legal_name"`
	Name         string   `json:"name,omitempty"`
	SectorMain   string   `json:"sector_main,omitempty"`
	Year         int      `json:"year"`
	Source       string   `json:"source,omitempty"`
	CategoryName string   `json:"category_name,omitempty"`
	BatchID      string   `json:"batch_id,omitempty"`
	Quantities   Quantity `json:"quantities"`
}

type Quantity struct {
	EmissionTotal     *float64 `json:"emission_total"`
	EmissionDirect    *float64 `json:"emission_direct,omitempty"`
	EmissionIndirect  *float64 `json:"emission_indirect,omitempty"`
	EnergyHeat        *float64 `json:"energy_heat,omitempty"`
	EnergyElectricity *float64 `json:"energy_electricity,omitempty"`
	EnergyFuel        *float64 `json:"energy_fuel,omitempty"`
	EnergyTotal       *float64 `json:"energy_total,omitempty"`
}

type SiteShare struct {
	SiteID   snowflake.ID `json:"site_id"`
	Area     float64      `json:"area"`
	Share    float64      `json:"share"`
	RecordID snowflake.ID `json:"record_id"`
}

type ApportionResult struct {
	Organization *Organization          `json:"organization"`
	Record       *emissiondomain.Record `json:"record"`
	Sites        []SiteShare            `json:"sites"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidYear         = errors.New("invalid_year")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrNotFound            = errors.New("organization_not_found")
)
