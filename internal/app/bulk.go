package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// BulkCoordinator applies one target status to many resources of a kind.
// It is not all-or-nothing: ids that fail their guard are reported and the
// rest are written in a single batched update.
type BulkCoordinator struct {
	repo  domain.ResourceRepository
	guard domain.TransitionGuard
}

// NewBulkCoordinator creates a coordinator over the given store and guard.
func NewBulkCoordinator(repo domain.ResourceRepository, guard domain.TransitionGuard) *BulkCoordinator {
	return &BulkCoordinator{repo: repo, guard: guard}
}

const reasonNotFound = "not found"

// Apply moves every eligible id to target. The returned result lists
// succeeded and rejected ids in request order and carries the tags that the
// write makes stale; when nothing was eligible no write happens and the tag
// list is empty. A non-nil error means the store failed and nothing is known
// to have been written.
func (c *BulkCoordinator) Apply(ctx context.Context, kind domain.Kind, organizationID string, ids []string, target domain.Status) (domain.MutationResult, error) {
	ids = dedupe(ids)
	result := domain.MutationResult{
		Kind:           kind,
		OrganizationID: organizationID,
		Requested:      len(ids),
	}

	loaded, err := c.repo.GetMany(ctx, kind, organizationID, ids)
	if err != nil {
		return domain.MutationResult{}, fmt.Errorf("loading %s: %w", kind, err)
	}
	byID := make(map[string]domain.Resource, len(loaded))
	for _, r := range loaded {
		byID[r.ID] = r
	}

	var (
		eligible    []string
		oldStatuses []domain.Status
	)
	for _, id := range ids {
		res, ok := byID[id]
		if !ok {
			result.Rejected = append(result.Rejected, domain.Rejection{
				ID:     id,
				Reason: reasonNotFound,
				Err:    &domain.NotFoundError{Kind: kind, ID: id},
			})
			continue
		}

		gctx, err := c.guardContext(ctx, res, target, byID)
		if err != nil {
			return domain.MutationResult{}, err
		}

		if err := c.guard.Check(ctx, kind, res.Status, target, gctx); err != nil {
			var trErr *domain.TransitionError
			if !errors.As(err, &trErr) {
				return domain.MutationResult{}, fmt.Errorf("checking %s %q: %w", kind, id, err)
			}
			result.Rejected = append(result.Rejected, domain.Rejection{ID: id, Reason: trErr.Error(), Err: trErr})
			continue
		}

		eligible = append(eligible, id)
		oldStatuses = append(oldStatuses, res.Status)
	}

	if len(eligible) == 0 {
		return result, nil
	}

	if err := c.repo.UpdateStatus(ctx, kind, organizationID, eligible, target); err != nil {
		return domain.MutationResult{}, fmt.Errorf("updating %s status: %w", kind, err)
	}

	updated, err := c.repo.GetMany(ctx, kind, organizationID, eligible)
	if err != nil {
		return domain.MutationResult{}, fmt.Errorf("re-reading %s: %w", kind, err)
	}

	result.SucceededIDs = eligible
	result.Resources = inRequestOrder(updated, eligible)
	result.InvalidatedTags = domain.DeriveTags(kind, organizationID, eligible, append(oldStatuses, target))

	return result, nil
}

// guardContext loads what the rule for (res.Status → target) needs. Siblings
// that are part of the same request and leave the counted status are not
// counted, so closing every active year at once still trips the guard.
func (c *BulkCoordinator) guardContext(ctx context.Context, res domain.Resource, target domain.Status, batch map[string]domain.Resource) (domain.GuardContext, error) {
	gctx := domain.GuardContext{Resource: res}

	rule, ok := domain.FindTransition(res.Kind, res.Status, target)
	if !ok || rule.SiblingStatus == "" {
		return gctx, nil
	}

	n, err := c.repo.CountSiblings(ctx, domain.SiblingQuery{
		Kind:           res.Kind,
		OrganizationID: res.OrganizationID,
		ScopeKey:       res.ScopeKey,
		Status:         rule.SiblingStatus,
		ExcludeID:      res.ID,
	})
	if err != nil {
		return domain.GuardContext{}, fmt.Errorf("counting siblings of %s %q: %w", res.Kind, res.ID, err)
	}

	if target != rule.SiblingStatus {
		for id, other := range batch {
			if id != res.ID && other.ScopeKey == res.ScopeKey && other.Status == rule.SiblingStatus {
				n--
			}
		}
	}
	gctx.Siblings = max(n, 0)

	return gctx, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func inRequestOrder(resources []domain.Resource, ids []string) []domain.Resource {
	out := slices.Clone(resources)
	slices.SortFunc(out, func(a, b domain.Resource) int {
		return slices.Index(ids, a.ID) - slices.Index(ids, b.ID)
	})
	return out
}
