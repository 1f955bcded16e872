// Package domain contains the site to category contribution edges the
// allocation engine distributes aggregate totals over.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Relation assigns a site to one category with a contribution magnitude.
// A site's relations are regenerated as a whole whenever its sectors or
// area change.
type Relation struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	SiteID                snowflake.ID `gorm:"not null;index" json:"site_id"`
	SectorID              string       `gorm:"type:text" json:"sector_id"`
	CategoryCode          string       `gorm:"type:text;not null;index" json:"category_code"`
	CategoryLevel         int          `gorm:"not null" json:"category_level"`
	ContributionMagnitude float64      `gorm:"not null;default:0" json:"contribution_magnitude"`
	IsMainCategory        bool         `gorm:"not null;default:false" json:"is_main_category"`
	ContributionRatio     *float64     `json:"contribution_ratio"`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Relation) TableName() string { return "site_category_relations" }

// Eligible is a relation joined with the location of its site, as read by
// one allocation pass.
type Eligible struct {
	ID                    snowflake.ID
	SiteID                snowflake.ID
	CategoryCode          string
	CategoryLevel         int
	ContributionMagnitude float64
	IsMainCategory        bool
	RegionID              *snowflake.ID
	RegionName            *string
	Latitude              *float64
	Longitude             *float64
}
