package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/pkg/db"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Key       string       `gorm:"uniqueIndex"`
	Label     string
	Bucket    string
	Value     *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *widget) GetID() snowflake.ID   { return w.ID }
func (w *widget) SetID(id snowflake.ID) { w.ID = id }

type plain struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string
}

func ptr(v float64) *float64 { return &v }

func setupStore(t *testing.T) (Repository[widget], *snowflake.Node) {
	t.Helper()
	conn, err := db.NewTest(&widget{}, &plain{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return ProvideStore[widget](conn), node
}

func TestUpdateOrCreate_PreservesIdentity(t *testing.T) {
	store, node := setupStore(t)
	ctx := context.Background()

	first := &widget{ID: node.Generate(), Key: "a", Label: "first", Value: ptr(1)}
	created, err := store.UpdateOrCreate(ctx, first, option.Equal("key", "a"))
	require.NoError(t, err)
	originalID := created.ID

	second := &widget{ID: node.Generate(), Key: "a", Label: "second", Value: ptr(2)}
	updated, err := store.UpdateOrCreate(ctx, second, option.Equal("key", "a"))
	require.NoError(t, err)
	assert.Equal(t, originalID, updated.ID)

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.FindOne(ctx, &widget{Key: "a"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Label)
	assert.Equal(t, 2.0, *got.Value)
}

func TestUpdateOrCreate_ConflictSurfacesAfterRetry(t *testing.T) {
	store, node := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &widget{ID: node.Generate(), Key: "dup", Label: "x"}))

	// match criteria miss the existing row while the unique key collides
	_, err := store.UpdateOrCreate(ctx,
		&widget{ID: node.Generate(), Key: "dup", Label: "y"},
		option.Equal("label", "y"),
	)
	assert.True(t, errors.Is(err, ErrUpsertConflict), "got %v", err)

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpdateOrCreate_RequiresEntity(t *testing.T) {
	conn, err := db.NewTest(&plain{})
	require.NoError(t, err)
	store := ProvideStore[plain](conn)

	_, err = store.UpdateOrCreate(context.Background(), &plain{ID: 1}, option.Equal("name", "x"))
	assert.ErrorIs(t, err, ErrNotEntity)
}

func TestGroupBy_SumsAndNulls(t *testing.T) {
	store, node := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BatchCreate(ctx, []*widget{
		{ID: node.Generate(), Key: "1", Bucket: "x", Value: ptr(10)},
		{ID: node.Generate(), Key: "2", Bucket: "x", Value: ptr(5)},
		{ID: node.Generate(), Key: "3", Bucket: "y"},
	}))

	rows, err := store.GroupBy(ctx, GroupSpec{By: []string{"bucket"}, Sum: []string{"value"}, OrderBy: "bucket"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "x", rows[0].Keys["bucket"])
	require.NotNil(t, rows[0].Sums["value"])
	assert.InDelta(t, 15.0, *rows[0].Sums["value"], 1e-9)
	assert.Equal(t, int64(2), rows[0].Count)

	assert.Equal(t, "y", rows[1].Keys["bucket"])
	assert.Nil(t, rows[1].Sums["value"])
}

func TestFilters_StartsWith(t *testing.T) {
	store, node := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BatchCreate(ctx, []*widget{
		{ID: node.Generate(), Key: "calc:gir4", Label: "derived"},
		{ID: node.Generate(), Key: "gir4", Label: "raw"},
	}))

	raw, err := store.Find(ctx, nil, option.NotStartsWith("key", "calc:"))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "raw", raw[0].Label)

	derived, err := store.Find(ctx, nil, option.StartsWith("key", "calc:"))
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "derived", derived[0].Label)

	n, err := store.DeleteWhere(ctx, option.StartsWith("key", "calc:"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
