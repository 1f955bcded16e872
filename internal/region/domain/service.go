package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Region, error)
	ImportRows(ctx context.Context, rows []UpsertRequest) (ImportResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Region, error)
	FindByPair(ctx context.Context, parentName, childName string) (*Region, error)
	FindProvince(ctx context.Context, name string) (*Region, error)
	List(ctx context.Context, parentID *snowflake.ID) ([]*Region, error)
}

// UpsertRequest names a region by its own name and its parent's name. An
// empty ParentName places the region at the root of the tree.
type UpsertRequest struct {
	Name       string   `json:"name" validate:"required"`
	Type       string   `json:"type"`
	ParentName string   `json:"parent_name"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

type ImportResult struct {
	Upserted int `json:"upserted"`
	Failed   int `json:"failed"`
}

var (
	ErrInvalidName    = errors.New("invalid_region_name")
	ErrParentNotFound = errors.New("parent_region_not_found")
	ErrNotFound       = errors.New("region_not_found")
)
