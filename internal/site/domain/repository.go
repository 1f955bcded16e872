package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id snowflake.ID) (*Site, error)
	FindByKeyHash(ctx context.Context, keyHash string) (*Site, error)
	Upsert(ctx context.Context, site *Site) (*Site, error)
	Update(ctx context.Context, id snowflake.ID, patch map[string]any) error
	UpdateWhere(ctx context.Context, patch map[string]any, opts ...option.QueryOption) (int64, error)
	Find(ctx context.Context, opts ...option.QueryOption) ([]*Site, error)
}
