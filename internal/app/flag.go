package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// FlagCoordinator moves a kind's singleton flag (is_current, is_default)
// between resources of one scope.
type FlagCoordinator struct {
	repo      domain.ResourceRepository
	retryWait time.Duration
}

// NewFlagCoordinator creates a coordinator over the given store.
func NewFlagCoordinator(repo domain.ResourceRepository) *FlagCoordinator {
	return &FlagCoordinator{repo: repo, retryWait: 25 * time.Millisecond}
}

// SetFlag makes targetID the sole holder of its kind's flag within its
// scope. Setting the flag on its current holder succeeds without a write.
// A swap that loses a race is retried once, re-reading the target first.
func (c *FlagCoordinator) SetFlag(ctx context.Context, kind domain.Kind, organizationID, targetID string) (domain.MutationResult, error) {
	spec, ok := domain.Lookup(kind)
	if !ok || spec.Flag == nil {
		return domain.MutationResult{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("%s has no singleton flag", kind)}
	}

	var result domain.MutationResult
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryWait), 1)

	err := backoff.Retry(func() error {
		var err error
		result, err = c.swap(ctx, spec, organizationID, targetID)
		var conflict *domain.ConflictError
		if err != nil && !errors.As(err, &conflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return domain.MutationResult{}, err
	}

	return result, nil
}

func (c *FlagCoordinator) swap(ctx context.Context, spec domain.KindSpec, organizationID, targetID string) (domain.MutationResult, error) {
	result := domain.MutationResult{
		Kind:           spec.Kind,
		OrganizationID: organizationID,
		Requested:      1,
	}

	target, err := c.repo.Get(ctx, spec.Kind, organizationID, targetID)
	if err != nil {
		return domain.MutationResult{}, err
	}

	if !spec.FlagEligible(target.Status) {
		return domain.MutationResult{}, &domain.TransitionError{
			Kind:    spec.Kind,
			Current: target.Status,
			Target:  target.Status,
			Reason:  fmt.Sprintf("%s %q is %s; only %v may be set as %s", spec.Kind, targetID, target.Status, spec.Flag.Eligible, spec.Flag.Name),
		}
	}

	if target.Flagged {
		result.SucceededIDs = []string{targetID}
		result.Resources = []domain.Resource{target}
		result.Note = fmt.Sprintf("%s %q already has %s", spec.Kind, targetID, spec.Flag.Name)
		return result, nil
	}

	swapped, err := c.repo.SwapFlag(ctx, domain.FlagSwap{
		Kind:           spec.Kind,
		OrganizationID: organizationID,
		ScopeKey:       target.ScopeKey,
		TargetID:       targetID,
		Eligible:       spec.Flag.Eligible,
	})
	if err != nil {
		return domain.MutationResult{}, fmt.Errorf("swapping %s: %w", spec.Flag.Name, err)
	}

	ids := []string{targetID}
	statuses := []domain.Status{target.Status}
	for _, prev := range swapped.Previous {
		ids = append(ids, prev.ID)
		statuses = append(statuses, prev.Status)
	}

	target.Flagged = true
	result.SucceededIDs = []string{targetID}
	result.Resources = []domain.Resource{target}
	result.InvalidatedTags = domain.DeriveTags(spec.Kind, organizationID, ids, statuses)

	return result, nil
}
