package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindByLegalName(ctx context.Context, legalName string) (*Organization, error)
	Upsert(ctx context.Context, org *Organization) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
}
