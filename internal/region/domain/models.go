// Package domain contains the region tree model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypeProvince = "province"
	TypeDistrict = "district"
)

// Region is a node of the administrative region tree. Children point at
// their parent; parents hold no list of children.
type Region struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"type:text;not null;index:ix_regions_name" json:"name"`
	Type      string        `gorm:"type:text" json:"type"`
	ParentID  *snowflake.ID `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Region) TableName() string { return "regions" }

func (r *Region) GetID() snowflake.ID   { return r.ID }
func (r *Region) SetID(id snowflake.ID) { r.ID = id }

// HasCoordinates reports whether both coordinates are known.
func (r *Region) HasCoordinates() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}
