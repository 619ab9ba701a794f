package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// Compile-time check: Enqueuer implements domain.Invalidator.
var _ domain.Invalidator = (*Enqueuer)(nil)

// QueueInvalidation is the queue invalidation jobs run on.
const QueueInvalidation = "invalidation"

// InvalidationJobArgs carries the cache tags a committed write made stale.
// River serializes this as JSON into its job queue table, so delivery
// survives a cache outage or a process restart.
type InvalidationJobArgs struct {
	Tags []string `json:"tags"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (InvalidationJobArgs) Kind() string { return "cache.invalidate" }

// InsertOpts routes invalidation jobs to their own queue with a generous
// retry budget.
func (InvalidationJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueInvalidation, MaxAttempts: 10}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Enqueuer implements domain.Invalidator by enqueuing River jobs. The
// worker hands the tags to the real invalidator and River retries on failure.
type Enqueuer struct {
	client *Client
}

// NewEnqueuer creates an enqueuer backed by the given River client.
func NewEnqueuer(client *Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// Invalidate enqueues the tags as one job.
func (e *Enqueuer) Invalidate(ctx context.Context, tags []domain.CacheTag) error {
	if len(tags) == 0 {
		return nil
	}
	if _, err := e.client.Insert(ctx, InvalidationJobArgs{Tags: domain.TagStrings(tags)}, nil); err != nil {
		return fmt.Errorf("enqueuing invalidation job: %w", err)
	}
	return nil
}
