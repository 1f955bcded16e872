package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/clock"
	"github.com/smallbiznis/verdant/internal/config"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAddresses struct{ calls int }

func (f *fakeAddresses) ResolvePending(context.Context, int) (int, error) {
	f.calls++
	return 2, nil
}

// fakeRelations hands out dirty sites in batches until none are left.
type fakeRelations struct {
	dirty   int
	batches []int
	err     error
}

func (f *fakeRelations) RebuildDirty(_ context.Context, limit int) (relationdomain.RebuildResult, error) {
	n := min(limit, f.dirty)
	f.dirty -= n
	f.batches = append(f.batches, n)
	return relationdomain.RebuildResult{Sites: n, Relations: 2 * n}, f.err
}

type fakeLinker struct{ coarse, detailed string }

func (f *fakeLinker) LinkCategories(_ context.Context, _ *taxonomy.Bridge, coarse, detailed string) (int64, error) {
	f.coarse, f.detailed = coarse, detailed
	return 4, nil
}

type fakeAllocator struct {
	from, to int
	err      error
}

func (f *fakeAllocator) RunRange(_ context.Context, from, to int) ([]*allocationdomain.Report, error) {
	f.from, f.to = from, to
	var reports []*allocationdomain.Report
	for y := from; y <= to; y++ {
		reports = append(reports, &allocationdomain.Report{Year: y, Written: 3})
	}
	return reports, f.err
}

type fixture struct {
	sched     *Scheduler
	addresses *fakeAddresses
	relations *fakeRelations
	linker    *fakeLinker
	allocator *fakeAllocator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		addresses: &fakeAddresses{},
		relations: &fakeRelations{},
		linker:    &fakeLinker{},
		allocator: &fakeAllocator{},
	}
	sched, err := New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		AppConfig: config.Config{Allocation: config.AllocationConfig{
			CoarseSource:   "gir1",
			DetailedSource: "gir4",
		}},
		Config:    cfg,
		Addresses: f.addresses,
		Relations: f.relations,
		Linker:    f.linker,
		Allocator: f.allocator,
		Taxonomy:  taxonomy.NewHolder(taxonomy.DefaultTaxonomy()),
	})
	require.NoError(t, err)
	f.sched = sched
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	f := newFixture(t, Config{YearsBack: 3, BatchSize: 10})
	f.relations.dirty = 25

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.addresses.calls)
	assert.Equal(t, []int{10, 10, 5}, f.relations.batches)
	assert.Equal(t, "gir1", f.linker.coarse)
	assert.Equal(t, "gir4", f.linker.detailed)
	assert.Equal(t, 2021, f.allocator.from)
	assert.Equal(t, 2023, f.allocator.to)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"ALLOCATE_YEARS"}})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Zero(t, f.addresses.calls)
	assert.Empty(t, f.relations.batches)
	assert.Equal(t, 2023, f.allocator.to)
}

func TestAllocateYearsIgnoresEmptyYears(t *testing.T) {
	f := newFixture(t, Config{YearsBack: 2})
	f.allocator.err = errors.Join(
		fmt.Errorf("year 2022: %w", allocationdomain.ErrNoRelationsFound),
		fmt.Errorf("year 2023: %w", allocationdomain.ErrNoRelationsFound),
	)

	assert.NoError(t, f.sched.AllocateYearsJob(context.Background()))
}

func TestSplitYearErrorsCountsSkippedYears(t *testing.T) {
	boom := errors.New("boom")
	skipped, err := splitYearErrors(errors.Join(
		fmt.Errorf("year 2021: %w", ratelimit.ErrLockHeld),
		fmt.Errorf("year 2022: %w", allocationdomain.ErrNoRelationsFound),
		fmt.Errorf("year 2023: %w", boom),
	))
	assert.Equal(t, 2, skipped)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ratelimit.ErrLockHeld)

	skipped, err = splitYearErrors(ratelimit.ErrLockHeld)
	assert.Equal(t, 1, skipped)
	assert.NoError(t, err)
}

func TestAllocateYearsKeepsRealFailures(t *testing.T) {
	f := newFixture(t, Config{YearsBack: 2})
	boom := errors.New("boom")
	f.allocator.err = errors.Join(
		fmt.Errorf("year 2022: %w", allocationdomain.ErrNoRelationsFound),
		fmt.Errorf("year 2023: %w", boom),
	)

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, allocationdomain.ErrNoRelationsFound)
}

func TestRebuildStopsOnFailedBatch(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 10})
	f.relations.dirty = 3
	f.relations.err = errors.New("site failed")

	err := f.sched.RebuildRelationsJob(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []int{3}, f.relations.batches)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestRunJobWrapsFailure(t *testing.T) {
	f := newFixture(t, Config{})
	boom := errors.New("boom")

	err := f.sched.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{})
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 3, cfg.YearsBack)
	assert.Equal(t, 100, cfg.BatchSize)
}

type recordingPusher struct {
	pushes int
	err    error
}

func (p *recordingPusher) Push(context.Context, prometheus.Gatherer) error {
	p.pushes++
	return p.err
}

func TestRunOncePushesMetrics(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobAllocateYears}})
	pusher := &recordingPusher{err: errors.New("sink down")}
	f.sched.pusher = pusher

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, pusher.pushes)
}
