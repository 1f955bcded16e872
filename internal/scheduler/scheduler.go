package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/clock"
	"github.com/smallbiznis/verdant/internal/config"
	obsmetrics "github.com/smallbiznis/verdant/internal/observability/metrics"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobResolveAddresses = "resolve_addresses"
	JobRebuildRelations = "rebuild_relations"
	JobLinkCategories   = "link_categories"
	JobAllocateYears    = "allocate_years"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type AddressResolver interface {
	ResolvePending(ctx context.Context, limit int) (int, error)
}

type RelationRebuilder interface {
	RebuildDirty(ctx context.Context, limit int) (relationdomain.RebuildResult, error)
}

type CategoryLinker interface {
	LinkCategories(ctx context.Context, bridge *taxonomy.Bridge, coarseSource, detailedSource string) (int64, error)
}

type Allocator interface {
	RunRange(ctx context.Context, from, to int) ([]*allocationdomain.Report, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	AppConfig config.Config
	Config    Config `optional:"true"`
	Addresses AddressResolver
	Relations RelationRebuilder
	Linker    CategoryLinker
	Allocator Allocator
	Taxonomy  *taxonomy.Holder
	Pusher    obsmetrics.Pusher `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	alloc     config.AllocationConfig
	addresses AddressResolver
	relations RelationRebuilder
	linker    CategoryLinker
	allocator Allocator
	taxonomy  *taxonomy.Holder
	pusher    obsmetrics.Pusher
	gatherer  prometheus.Gatherer
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Relations == nil || p.Allocator == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		alloc:     p.AppConfig.Allocation,
		addresses: p.Addresses,
		relations: p.Relations,
		linker:    p.Linker,
		allocator: p.Allocator,
		taxonomy:  p.Taxonomy,
		pusher:    p.Pusher,
		gatherer:  prometheus.DefaultGatherer,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errors == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout; the next tick picks the work up again
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once. Sites are resolved and their relations
// rebuilt before the allocation window is recomputed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobResolveAddresses, s.addresses != nil && s.isJobEnabled(JobResolveAddresses), func(ctx context.Context) error {
			return s.runJob(ctx, JobResolveAddresses, s.cfg.BatchSize, s.cfg.JobTimeout, s.ResolveAddressesJob)
		}},
		{JobRebuildRelations, s.isJobEnabled(JobRebuildRelations), func(ctx context.Context) error {
			return s.runJob(ctx, JobRebuildRelations, s.cfg.BatchSize, s.cfg.JobTimeout, s.RebuildRelationsJob)
		}},
		{JobLinkCategories, s.linker != nil && s.taxonomy != nil && s.isJobEnabled(JobLinkCategories), func(ctx context.Context) error {
			return s.runJob(ctx, JobLinkCategories, 0, s.cfg.JobTimeout, s.LinkCategoriesJob)
		}},
		{JobAllocateYears, s.isJobEnabled(JobAllocateYears), func(ctx context.Context) error {
			return s.runJob(ctx, JobAllocateYears, s.cfg.YearsBack, s.cfg.AllocateTimeout, s.AllocateYearsJob)
		}},
	}

	for _, job := range jobs {
		if parent.Err() != nil {
			break
		}
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	s.pushMetrics(parent)
	return err
}

// pushMetrics ships the run's counters when a sink is configured. A failed
// push is logged and never fails the run.
func (s *Scheduler) pushMetrics(parent context.Context) {
	if s.pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
	defer cancel()
	if err := s.pusher.Push(ctx, s.gatherer); err != nil {
		s.log.Warn("scheduler metrics push failed", zap.Error(err))
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ResolveAddressesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobResolveAddresses, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	resolved, err := s.addresses.ResolvePending(ctx, s.cfg.BatchSize)
	run.AddProcessed(resolved)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sites.resolve.failed", err)
	}
	return err
}

// RebuildRelationsJob drains dirty sites one batch at a time until a batch
// rebuilds nothing.
func (s *Scheduler) RebuildRelationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRebuildRelations, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		result, err := s.relations.RebuildDirty(ctx, s.cfg.BatchSize)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.relations.rebuild.failed", err,
				zap.Int("failed_sites", result.Failed),
			)
		}
		run.AddProcessed(result.Sites)
		// failed sites stay dirty, so a batch that only failed ends the pass
		if result.Sites == 0 || result.Sites < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

func (s *Scheduler) LinkCategoriesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLinkCategories, 0)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	linked, err := s.linker.LinkCategories(ctx, s.taxonomy.Bridge(), s.alloc.CoarseSource, s.alloc.DetailedSource)
	run.AddProcessed(int(linked))
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.categories.link.failed", err)
	}
	return err
}

// AllocateYearsJob reallocates the completed years of the window ending last
// year. Years without relations, and years another replica holds the lock
// for, are skipped without counting as failures.
func (s *Scheduler) AllocateYearsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAllocateYears, s.cfg.YearsBack)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	to := s.clock.Now().Year() - 1
	from := to - s.cfg.YearsBack + 1

	reports, err := s.allocator.RunRange(ctx, from, to)
	for _, report := range reports {
		run.AddProcessed(report.Written)
		run.AddSkipped(report.Skipped)
	}
	skippedYears, err := splitYearErrors(err)
	if skippedYears > 0 {
		s.logger(ctx).Info("scheduler.allocation.years_skipped", zap.Int("years", skippedYears))
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.allocation.failed", err,
			zap.Int("from", from),
			zap.Int("to", to),
		)
	}
	return err
}

// splitYearErrors separates real failures in a joined range error from years
// that were skipped because they had no relations or were locked elsewhere.
func splitYearErrors(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	var kept []error
	skipped := 0
	for _, e := range errs {
		if errors.Is(e, allocationdomain.ErrNoRelationsFound) || errors.Is(e, ratelimit.ErrLockHeld) {
			skipped++
			continue
		}
		kept = append(kept, e)
	}
	return skipped, errors.Join(kept...)
}
