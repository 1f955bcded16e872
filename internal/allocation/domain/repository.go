package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, id snowflake.ID, patch map[string]any) error
	FindRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, year *int, limit int) ([]*Run, error)
}
