// Package domain contains the facility site model and the registry row it is
// built from.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Site is a registered facility. Sites are replaced through upsert on their
// key hash and are never hard-deleted.
type Site struct {
	ID                        snowflake.ID      `gorm:"primaryKey" json:"id"`
	KeyHash                   string            `gorm:"type:text;not null;uniqueIndex:ux_sites_key_hash" json:"key_hash"`
	CompanyName               string            `gorm:"type:text;not null;index" json:"company_name"`
	FactoryManagementNumber   string            `gorm:"type:text" json:"factory_management_number"`
	StreetAddress             string            `gorm:"type:text" json:"street_address"`
	LandAddress               string            `gorm:"type:text" json:"land_address"`
	SectorIDs                 string            `gorm:"column:sector_ids;type:text" json:"sector_ids"`
	SectorIDMain              string            `gorm:"column:sector_id_main;type:text" json:"sector_id_main"`
	StructuredAddress         *string           `gorm:"type:text" json:"structured_address,omitempty"`
	AddressRegionName         *string           `gorm:"type:text" json:"address_region_name,omitempty"`
	AddressSubRegion          *string           `gorm:"type:text" json:"address_sub_region,omitempty"`
	RegionID                  *snowflake.ID     `gorm:"index" json:"region_id,omitempty"`
	Latitude                  *float64          `json:"latitude,omitempty"`
	Longitude                 *float64          `json:"longitude,omitempty"`
	RegistrationDateInitial   *time.Time        `json:"registration_date_initial,omitempty"`
	OperationStart            *time.Time        `gorm:"index" json:"operation_start,omitempty"`
	ManufacturingFacilityArea *float64          `json:"manufacturing_facility_area,omitempty"`
	BuildingArea              *float64          `json:"building_area,omitempty"`
	LandArea                  *float64          `json:"land_area,omitempty"`
	OrganizationID            *snowflake.ID     `gorm:"index" json:"organization_id,omitempty"`
	DataSource                string            `gorm:"type:text" json:"data_source,omitempty"`
	RelationsDirty            bool              `gorm:"not null;default:false;index" json:"relations_dirty"`
	Attributes                datatypes.JSONMap `json:"attributes,omitempty"`
	CreatedAt                 time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                 time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Site) TableName() string { return "sites" }

func (s *Site) GetID() snowflake.ID   { return s.ID }
func (s *Site) SetID(id snowflake.ID) { s.ID = id }

// ProxyArea is the contribution magnitude of the site: its manufacturing
// facility area, or its building area when the former is unknown.
func (s *Site) ProxyArea() float64 {
	if s.ManufacturingFacilityArea != nil && *s.ManufacturingFacilityArea > 0 {
		return *s.ManufacturingFacilityArea
	}
	if s.BuildingArea != nil {
		return *s.BuildingArea
	}
	return 0
}

// Sectors splits the comma separated industry codes, dropping blanks.
func (s *Site) Sectors() []string {
	parts := strings.Split(s.SectorIDs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Registration is one row of the facility registry.
type Registration struct {
	CompanyName               string         `json:"company_name" validate:"required"`
	FactoryManagementNumber   string         `json:"factory_management_number" validate:"required"`
	StreetAddress             string         `json:"street_address"`
	LandAddress               string         `json:"land_address"`
	SectorIDs                 string         `json:"sector_ids"`
	SectorIDMain              string         `json:"sector_id_main"`
	AddressRegionName         string         `json:"address_region_name"`
	AddressSubRegion          string         `json:"address_sub_region"`
	RegistrationDateInitial   *time.Time     `json:"registration_date_initial"`
	ManufacturingFacilityArea *float64       `json:"manufacturing_facility_area"`
	BuildingArea              *float64       `json:"building_area"`
	LandArea                  *float64       `json:"land_area"`
	DataSource                string         `json:"data_source"`
	Attributes                map[string]any `json:"attributes,omitempty"`
}

// KeyHash identifies a registry row: sha256 over the management number,
// company name and land address.
func (r Registration) KeyHash() string {
	sum := sha256.Sum256([]byte(r.FactoryManagementNumber + r.CompanyName + r.LandAddress))
	return hex.EncodeToString(sum[:])
}
