package river

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// InvalidationWorker delivers queued tags to the cache. A returned error
// makes River retry the job with backoff.
type InvalidationWorker struct {
	river.WorkerDefaults[InvalidationJobArgs]

	next   domain.Invalidator
	logger *zap.Logger
}

// Timeout bounds a single delivery attempt.
func (w *InvalidationWorker) Timeout(*river.Job[InvalidationJobArgs]) time.Duration {
	return 30 * time.Second
}

// Work processes a single invalidation job.
func (w *InvalidationWorker) Work(ctx context.Context, job *river.Job[InvalidationJobArgs]) error {
	tags := domain.ParseTags(job.Args.Tags)

	if err := w.next.Invalidate(ctx, tags); err != nil {
		w.logger.Warn("invalidation attempt failed",
			zap.Int64("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}

	w.logger.Debug("invalidation delivered",
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Strings("tags", job.Args.Tags),
	)
	return nil
}
