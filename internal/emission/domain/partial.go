package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
)

// Partial is the common row shape every import adapter produces. Source,
// category, pollutant and both period bounds are required; everything else
// is optional.
type Partial struct {
	Source       string    `json:"source" validate:"required"`
	CategoryName string    `json:"category_name" validate:"required"`
	CategoryCode string    `json:"category_code,omitempty"`
	PollutantID  string    `json:"pollutant_id" validate:"required"`
	PeriodStart  time.Time `json:"period_start" validate:"required"`
	PeriodEnd    time.Time `json:"period_end" validate:"required,gtefield=PeriodStart"`
	PeriodLength string    `json:"period_length" validate:"required"`

	EmissionTotal     *float64 `json:"emission_total"`
	EmissionDirect    *float64 `json:"emission_direct,omitempty"`
	EmissionIndirect  *float64 `json:"emission_indirect,omitempty"`
	EnergyHeat        *float64 `json:"energy_heat,omitempty"`
	EnergyElectricity *float64 `json:"energy_electricity,omitempty"`
	EnergyFuel        *float64 `json:"energy_fuel,omitempty"`
	EnergyTotal       *float64 `json:"energy_total,omitempty"`

	RegionName     string        `json:"region_name,omitempty"`
	RegionID       *snowflake.ID `json:"region_id,omitempty"`
	SiteID         *snowflake.ID `json:"site_id,omitempty"`
	OrganizationID *snowflake.ID `json:"organization_id,omitempty"`
	Latitude       *float64      `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude      *float64      `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first missing or malformed field.
func (p Partial) Validate() error {
	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidRecord, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// ToRecord copies the partial into a new record with the given id.
func (p Partial) ToRecord(id snowflake.ID) *Record {
	rec := &Record{
		ID:                id,
		Source:            strings.TrimSpace(p.Source),
		CategoryName:      strings.TrimSpace(p.CategoryName),
		PollutantID:       strings.TrimSpace(p.PollutantID),
		PeriodStart:       p.PeriodStart.UTC(),
		PeriodEnd:         p.PeriodEnd.UTC(),
		PeriodLength:      p.PeriodLength,
		EmissionTotal:     p.EmissionTotal,
		EmissionDirect:    p.EmissionDirect,
		EmissionIndirect:  p.EmissionIndirect,
		EnergyHeat:        p.EnergyHeat,
		EnergyElectricity: p.EnergyElectricity,
		EnergyFuel:        p.EnergyFuel,
		EnergyTotal:       p.EnergyTotal,
		RegionID:          p.RegionID,
		SiteID:            p.SiteID,
		OrganizationID:    p.OrganizationID,
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
	}
	if code := strings.TrimSpace(p.CategoryCode); code != "" {
		rec.CategoryCode = &code
	}
	if name := strings.TrimSpace(p.RegionName); name != "" {
		rec.RegionName = &name
	}
	return rec
}
