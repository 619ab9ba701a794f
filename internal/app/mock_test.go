package app_test

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	mu        sync.Mutex
	resources map[string]domain.Resource

	reads  int
	writes int

	// conflicts is the number of SwapFlag calls that fail with a ConflictError
	// before the swap is allowed through.
	conflicts int
	swapCalls int
	updateErr error
}

func newMockRepo(resources ...domain.Resource) *mockRepo {
	m := &mockRepo{resources: make(map[string]domain.Resource)}
	for _, r := range resources {
		m.resources[key(r.Kind, r.OrganizationID, r.ID)] = r
	}
	return m
}

func key(kind domain.Kind, org, id string) string {
	return string(kind) + "|" + org + "|" + id
}

func (m *mockRepo) get(kind domain.Kind, org, id string) domain.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resources[key(kind, org, id)]
}

func (m *mockRepo) Create(_ context.Context, r domain.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.resources[key(r.Kind, r.OrganizationID, r.ID)] = r
	return nil
}

func (m *mockRepo) Get(_ context.Context, kind domain.Kind, org, id string) (domain.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	r, ok := m.resources[key(kind, org, id)]
	if !ok {
		return domain.Resource{}, &domain.NotFoundError{Kind: kind, ID: id}
	}
	return r, nil
}

func (m *mockRepo) GetMany(_ context.Context, kind domain.Kind, org string, ids []string) ([]domain.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	var out []domain.Resource
	for _, id := range ids {
		if r, ok := m.resources[key(kind, org, id)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepo) List(_ context.Context, f domain.ListFilter) ([]domain.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	var out []domain.Resource
	for _, r := range m.resources {
		if r.Kind != f.Kind || r.OrganizationID != f.OrganizationID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.Resource) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, kind domain.Kind, org string, ids []string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.writes++
	keepFlag := domain.Kinds[kind].FlagEligible(status)
	for _, id := range ids {
		k := key(kind, org, id)
		r := m.resources[k]
		r.Status = status
		r.Flagged = r.Flagged && keepFlag
		m.resources[k] = r
	}
	return nil
}

func (m *mockRepo) CountSiblings(_ context.Context, q domain.SiblingQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	n := 0
	for _, r := range m.resources {
		if r.Kind == q.Kind && r.OrganizationID == q.OrganizationID && r.ScopeKey == q.ScopeKey &&
			r.Status == q.Status && r.ID != q.ExcludeID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) SwapFlag(_ context.Context, s domain.FlagSwap) (domain.FlagSwapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapCalls++
	if m.conflicts > 0 {
		m.conflicts--
		return domain.FlagSwapResult{}, &domain.ConflictError{Reason: "lost race"}
	}

	target, ok := m.resources[key(s.Kind, s.OrganizationID, s.TargetID)]
	if !ok || !slices.Contains(s.Eligible, target.Status) {
		return domain.FlagSwapResult{}, &domain.ConflictError{Reason: "target changed"}
	}

	m.writes++
	var result domain.FlagSwapResult
	for k, r := range m.resources {
		if r.Kind == s.Kind && r.OrganizationID == s.OrganizationID && r.ScopeKey == s.ScopeKey &&
			r.Flagged && r.ID != s.TargetID {
			result.Previous = append(result.Previous, r)
			r.Flagged = false
			m.resources[k] = r
		}
	}
	target.Flagged = true
	m.resources[key(s.Kind, s.OrganizationID, s.TargetID)] = target
	return result, nil
}

func (m *mockRepo) Delete(_ context.Context, kind domain.Kind, org, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(kind, org, id)
	if _, ok := m.resources[k]; !ok {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	m.writes++
	delete(m.resources, k)
	return nil
}

type mockAuthn struct {
	actor domain.Actor
	err   error
}

func (m *mockAuthn) Actor(context.Context) (domain.Actor, error) {
	if m.err != nil {
		return domain.Actor{}, m.err
	}
	return m.actor, nil
}

type mockAuthz struct {
	orgs map[string]bool
}

func (m *mockAuthz) HasAccess(_ context.Context, _ domain.Actor, org string) (bool, error) {
	return m.orgs[org], nil
}

type mockInvalidator struct {
	mu    sync.Mutex
	calls [][]domain.CacheTag
	err   error
	// ctxErr records whether the context was already done when called.
	ctxErr error
}

func (m *mockInvalidator) Invalidate(ctx context.Context, tags []domain.CacheTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, tags)
	m.ctxErr = ctx.Err()
	return m.err
}

var errInvalidatorDown = errors.New("redis: connection refused")
