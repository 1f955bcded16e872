// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization is a reporting legal entity. Registry sites registered under
// its legal name are attached to it.
type Organization struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	LegalName  string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_legal_name" json:"legal_name"`
	Name       string            `gorm:"type:text;not null" json:"name"`
	Slug       string            `gorm:"type:text;not null;index" json:"slug"`
	SectorMain string            `gorm:"type:text" json:"sector_main,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

func (o *Organization) GetID() snowflake.ID   { return o.ID }
func (o *Organization) SetID(id snowflake.ID) { o.ID = id }

// ReportPeriod returns the half-open bounds of an organization report year:
// Jan 1 of year to Jan 1 of the next.
func ReportPeriod(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}
