// Package domain contains the emission record model shared by importers, the
// allocation engine and the read API.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/category"
)

const PeriodLengthYear = "1Y"

// Record is a quantity of one pollutant emitted during a period, attributed
// to a category and optionally to a region, a site or an organization.
// Records whose source carries the calc: prefix are derived.
type Record struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	Source            string        `gorm:"type:text;not null;index:ix_emission_records_lookup,priority:1" json:"source"`
	CategoryName      string        `gorm:"type:text;not null;index:ix_emission_records_lookup,priority:2" json:"category_name"`
	CategoryCode      *string       `gorm:"type:text;index" json:"category_code,omitempty"`
	PollutantID       string        `gorm:"column:pollutant_id;type:text;not null" json:"pollutant_id"`
	PeriodStart       time.Time     `gorm:"not null;index:ix_emission_records_lookup,priority:3" json:"period_start"`
	PeriodEnd         time.Time     `gorm:"not null" json:"period_end"`
	PeriodLength      string        `gorm:"type:text;not null" json:"period_length"`
	EmissionTotal     *float64      `json:"emission_total"`
	EmissionDirect    *float64      `json:"emission_direct,omitempty"`
	EmissionIndirect  *float64      `json:"emission_indirect,omitempty"`
	EnergyHeat        *float64      `json:"energy_heat,omitempty"`
	EnergyElectricity *float64      `json:"energy_electricity,omitempty"`
	EnergyFuel        *float64      `json:"energy_fuel,omitempty"`
	EnergyTotal       *float64      `json:"energy_total,omitempty"`
	SiteID            *snowflake.ID `gorm:"index" json:"site_id,omitempty"`
	OrganizationID    *snowflake.ID `gorm:"index" json:"organization_id,omitempty"`
	RegionID          *snowflake.ID `json:"region_id,omitempty"`
	RegionName        *string       `gorm:"type:text" json:"region_name,omitempty"`
	Latitude          *float64      `json:"latitude,omitempty"`
	Longitude         *float64      `json:"longitude,omitempty"`
	BatchID           string        `gorm:"type:text" json:"batch_id,omitempty"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "emission_records" }

func (r *Record) GetID() snowflake.ID   { return r.ID }
func (r *Record) SetID(id snowflake.ID) { r.ID = id }

func (r *Record) IsDerived() bool { return category.IsDerivedSource(r.Source) }

// YearPeriod returns the inclusive calendar-year bounds used by inventory
// sources: Jan 1 to Dec 31.
func YearPeriod(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	return start, end
}
