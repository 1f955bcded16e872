package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id snowflake.ID) (*Region, error)
	FindRoot(ctx context.Context, name string) (*Region, error)
	FindChild(ctx context.Context, parentID snowflake.ID, name string) (*Region, error)
	Upsert(ctx context.Context, region *Region) (*Region, error)
	List(ctx context.Context, parentID *snowflake.ID) ([]*Region, error)
}
