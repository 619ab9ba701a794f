package domain

import "context"

// ResourceRepository defines the persistence contract for resources. Every
// lookup is keyed by (kind, organization, id) so cross-organization access
// reads as not found.
type ResourceRepository interface {
	Create(ctx context.Context, r Resource) error
	Get(ctx context.Context, kind Kind, organizationID, id string) (Resource, error)
	// GetMany loads the subset of ids that exist in the organization in one
	// read. Missing ids are simply absent from the result.
	GetMany(ctx context.Context, kind Kind, organizationID string, ids []string) ([]Resource, error)
	List(ctx context.Context, filter ListFilter) ([]Resource, error)
	// UpdateStatus sets status on exactly the given ids in one statement and
	// clears the singleton flag on any of them whose new status is not
	// eligible to hold it.
	UpdateStatus(ctx context.Context, kind Kind, organizationID string, ids []string, status Status) error
	CountSiblings(ctx context.Context, q SiblingQuery) (int, error)
	// SwapFlag atomically moves the kind's singleton flag within a scope.
	SwapFlag(ctx context.Context, swap FlagSwap) (FlagSwapResult, error)
	Delete(ctx context.Context, kind Kind, organizationID, id string) error
}

// SortField names a column a list view can be ordered by.
type SortField string

const (
	SortByName      SortField = "name"
	SortByStatus    SortField = "status"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// ListFilter holds the dimensions a cached list view is keyed by.
type ListFilter struct {
	Kind           Kind
	OrganizationID string
	Statuses       []Status
	Search         string
	SortBy         SortField
	Descending     bool
	Limit          int
	Offset         int
}

// SiblingQuery counts resources sharing a scope with ExcludeID.
type SiblingQuery struct {
	Kind           Kind
	OrganizationID string
	ScopeKey       string
	Status         Status
	ExcludeID      string
}

// FlagSwap describes a singleton flag move.
type FlagSwap struct {
	Kind           Kind
	OrganizationID string
	ScopeKey       string
	TargetID       string
	// Eligible restricts which statuses the target may be in when the flag
	// is set. The check runs inside the same transaction as the write.
	Eligible []Status
}

// FlagSwapResult reports the rows that held the flag before the swap.
type FlagSwapResult struct {
	Previous []Resource
}

// TransitionGuard decides whether a status change is legal.
type TransitionGuard interface {
	Check(ctx context.Context, kind Kind, current, target Status, gctx GuardContext) error
}

// Authenticator resolves the actor behind a request context.
type Authenticator interface {
	Actor(ctx context.Context) (Actor, error)
}

// Authorizer decides organization membership.
type Authorizer interface {
	HasAccess(ctx context.Context, actor Actor, organizationID string) (bool, error)
}

// Invalidator broadcasts cache tags to the read-side cache.
type Invalidator interface {
	Invalidate(ctx context.Context, tags []CacheTag) error
}
