package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/verdant/internal/observability/context"
	obslogger "github.com/smallbiznis/verdant/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/verdant/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobUnits names what each job counts as processed.
var jobUnits = map[string]string{
	JobResolveAddresses: "sites",
	JobRebuildRelations: "sites",
	JobLinkCategories:   "records",
	JobAllocateYears:    "relations",
}

// jobRun tracks one job invocation. It travels on the context so nested
// calls to a job function report into the run that started them.
type jobRun struct {
	job       string
	unit      string
	runID     string
	batchSize int
	startedAt time.Time

	processed int
	skipped   int
	errors    int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processed += count
	obsmetrics.Scheduler().AddBatchProcessed(r.job, r.unit, count)
}

func (r *jobRun) AddSkipped(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.skipped += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errors++
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	unit := jobUnits[job]
	if unit == "" {
		unit = "items"
	}
	run := &jobRun{
		job:       job,
		unit:      unit,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithJob(ctx, job)
	ctx = obscontext.WithRunID(ctx, run.runID)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.Int("batch_size", run.batchSize),
		zap.String("unit", run.unit),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.String("unit", run.unit),
		zap.Int("processed_count", run.processed),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.errors),
	}
	if run.errors > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	job := ""
	if run != nil {
		job = run.job
	}
	base := []zap.Field{
		zap.String("job", job),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	s.logger(ctx).Error(msg, append(base, fields...)...)
}
