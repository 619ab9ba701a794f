package app_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/neomorfeo/orgstate/internal/adapter/fsm"
	"github.com/neomorfeo/orgstate/internal/app"
	"github.com/neomorfeo/orgstate/internal/domain"
)

const org = "org1"

type fixture struct {
	repo  *mockRepo
	authn *mockAuthn
	inv   *mockInvalidator
	p     *app.Pipeline
}

func newFixture(resources ...domain.Resource) *fixture {
	f := &fixture{
		repo:  newMockRepo(resources...),
		authn: &mockAuthn{actor: domain.Actor{ID: "alice"}},
		inv:   &mockInvalidator{},
	}
	authz := &mockAuthz{orgs: map[string]bool{org: true}}
	f.p = app.NewPipeline(f.repo, fsm.New(), f.authn, authz, f.inv)
	return f
}

func resource(kind domain.Kind, id string, status domain.Status) domain.Resource {
	return domain.Resource{ID: id, Kind: kind, OrganizationID: org, Name: id, Status: status}
}

func fiscalYear(id string, status domain.Status, current bool) domain.Resource {
	r := resource(domain.KindFiscalYear, id, status)
	r.Flagged = current
	return r
}

// --- Gates ---

func TestChangeStatus_Unauthenticated(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))
	f.authn.err = errors.New("token expired")

	_, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.ClientActive,
	})

	if got := domain.Classify(err); got != domain.KindUnauthenticated {
		t.Fatalf("Classify = %q, want %q (err: %v)", got, domain.KindUnauthenticated, err)
	}
	var stageErr *app.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != app.StageAuthenticated {
		t.Errorf("stage = %v, want %q", stageErr, app.StageAuthenticated)
	}
	assertUntouched(t, f)
}

func TestChangeStatus_Forbidden(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))

	_, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: "other-org", Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.ClientActive,
	})

	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	assertUntouched(t, f)
}

func TestChangeStatus_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  app.StatusChange
	}{
		{"no ids", app.StatusChange{OrganizationID: org, Kind: domain.KindClient, Target: domain.ClientActive}},
		{"blank id", app.StatusChange{OrganizationID: org, Kind: domain.KindClient, IDs: []string{""}, Target: domain.ClientActive}},
		{"unknown kind", app.StatusChange{OrganizationID: org, Kind: "widget", IDs: []string{"c1"}, Target: domain.ClientActive}},
		{"status of another kind", app.StatusChange{OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.FiscalYearClosed}},
		{"missing target", app.StatusChange{OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))

			_, err := f.p.ChangeStatus(context.Background(), tt.req)
			if got := domain.Classify(err); got != domain.KindValidation {
				t.Fatalf("Classify = %q, want %q (err: %v)", got, domain.KindValidation, err)
			}
			assertUntouched(t, f)
		})
	}
}

// assertUntouched checks that a request rejected at a gate read nothing,
// wrote nothing and invalidated nothing.
func assertUntouched(t *testing.T, f *fixture) {
	t.Helper()
	if f.repo.reads != 0 {
		t.Errorf("store reads = %d, want 0", f.repo.reads)
	}
	if f.repo.writes != 0 {
		t.Errorf("store writes = %d, want 0", f.repo.writes)
	}
	if len(f.inv.calls) != 0 {
		t.Errorf("invalidations = %d, want 0", len(f.inv.calls))
	}
}

// --- Status changes ---

func TestChangeStatus_BulkPartial(t *testing.T) {
	f := newFixture(
		resource(domain.KindProduct, "A", domain.ProductActive),
		resource(domain.KindProduct, "B", domain.ProductDiscontinued),
	)

	result, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindProduct, IDs: []string{"A", "B", "C"}, Target: domain.ProductInactive,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome() != domain.OutcomePartial {
		t.Errorf("Outcome = %q, want %q", result.Outcome(), domain.OutcomePartial)
	}
	if !slices.Equal(result.SucceededIDs, []string{"A"}) {
		t.Errorf("SucceededIDs = %v, want [A]", result.SucceededIDs)
	}
	if len(result.Rejected) != 2 || result.Rejected[0].ID != "B" || result.Rejected[1].ID != "C" {
		t.Fatalf("Rejected = %+v, want B then C", result.Rejected)
	}
	if domain.Classify(result.Rejected[0].Err) != domain.KindGuardRejected {
		t.Errorf("B should be guard rejected, got %v", result.Rejected[0].Err)
	}
	if !errors.Is(result.Rejected[1].Err, domain.ErrNotFound) {
		t.Errorf("C should be not found, got %v", result.Rejected[1].Err)
	}

	if f.repo.writes != 1 {
		t.Errorf("writes = %d, want one batched update", f.repo.writes)
	}
	if got := f.repo.get(domain.KindProduct, org, "B").Status; got != domain.ProductDiscontinued {
		t.Errorf("B status = %q, should be untouched", got)
	}
	if got := f.repo.get(domain.KindProduct, org, "A").Status; got != domain.ProductInactive {
		t.Errorf("A status = %q, want %q", got, domain.ProductInactive)
	}

	if !slices.Contains(result.InvalidatedTags, domain.ResourceTag(domain.KindProduct, "A")) {
		t.Errorf("tags %v missing product:A", result.InvalidatedTags)
	}
	if slices.Contains(result.InvalidatedTags, domain.ResourceTag(domain.KindProduct, "B")) {
		t.Errorf("tags %v should not name rejected id B", result.InvalidatedTags)
	}
	if len(f.inv.calls) != 1 {
		t.Errorf("invalidations = %d, want 1", len(f.inv.calls))
	}

	want := `1 of 3 updated; skipped: product cannot move from "Discontinued" to "Inactive" (1), not found (1)`
	if got := result.Message(); got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}

func TestChangeStatus_AllRejected(t *testing.T) {
	f := newFixture(
		resource(domain.KindProduct, "A", domain.ProductDraft),
		resource(domain.KindProduct, "B", domain.ProductDraft),
	)

	result, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindProduct, IDs: []string{"A", "B"}, Target: domain.ProductDiscontinued,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome() != domain.OutcomeError {
		t.Errorf("Outcome = %q, want %q", result.Outcome(), domain.OutcomeError)
	}
	if f.repo.writes != 0 {
		t.Errorf("writes = %d, want 0", f.repo.writes)
	}
	if len(result.InvalidatedTags) != 0 || len(f.inv.calls) != 0 {
		t.Errorf("no tags expected, got %v", result.InvalidatedTags)
	}
	if got, want := result.Message(), `0 of 2 updated; skipped: product cannot move from "Draft" to "Discontinued" (2)`; got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}

func TestChangeStatus_DuplicateIDsCountOnce(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))

	result, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1", "c1"}, Target: domain.ClientProspect,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Requested != 1 || !slices.Equal(result.SucceededIDs, []string{"c1"}) {
		t.Errorf("result = %+v, want one request and one success", result)
	}
}

func TestChangeStatus_SingleIDRejectionIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		target domain.Status
		want   domain.ErrorKind
	}{
		{"illegal transition", "c1", domain.ClientInactive, domain.KindGuardRejected},
		{"no-op", "c1", domain.ClientLead, domain.KindGuardRejected},
		{"missing", "nope", domain.ClientActive, domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))

			_, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
				OrganizationID: org, Kind: domain.KindClient, IDs: []string{tt.id}, Target: tt.target,
			})
			if got := domain.Classify(err); got != tt.want {
				t.Fatalf("Classify = %q, want %q (err: %v)", got, tt.want, err)
			}
			if f.repo.writes != 0 || len(f.inv.calls) != 0 {
				t.Errorf("rejected request wrote %d times and invalidated %d times", f.repo.writes, len(f.inv.calls))
			}
		})
	}
}

func TestChangeStatus_StoreFailure(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))
	f.repo.updateErr = &domain.TransientError{Err: errors.New("database is locked")}

	_, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.ClientActive,
	})
	if got := domain.Classify(err); got != domain.KindTransient {
		t.Fatalf("Classify = %q, want %q", got, domain.KindTransient)
	}
	if len(f.inv.calls) != 0 {
		t.Error("failed write must not invalidate")
	}
}

func TestChangeStatus_InvalidationFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))
	f.inv.err = errInvalidatorDown

	result, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.ClientActive,
	})
	if err != nil {
		t.Fatalf("write should succeed despite invalidation failure: %v", err)
	}
	if result.Outcome() != domain.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", result.Outcome())
	}
	if len(f.inv.calls) != 1 {
		t.Errorf("invalidations = %d, want 1", len(f.inv.calls))
	}
}

func TestChangeStatus_InvalidatesAfterCallerCancels(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientLead))

	// Cancel from inside the write, as a disconnecting client would.
	ctx, cancel := context.WithCancel(context.Background())
	p := app.NewPipeline(&cancelOnWrite{mockRepo: f.repo, cancel: cancel}, fsm.New(), f.authn,
		&mockAuthz{orgs: map[string]bool{org: true}}, f.inv)

	if _, err := p.ChangeStatus(ctx, app.StatusChange{
		OrganizationID: org, Kind: domain.KindClient, IDs: []string{"c1"}, Target: domain.ClientActive,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.inv.calls) != 1 {
		t.Fatalf("invalidations = %d, want 1", len(f.inv.calls))
	}
	if f.inv.ctxErr != nil {
		t.Errorf("invalidation ran on a cancelled context: %v", f.inv.ctxErr)
	}
}

type cancelOnWrite struct {
	*mockRepo
	cancel context.CancelFunc
}

func (c *cancelOnWrite) UpdateStatus(ctx context.Context, kind domain.Kind, org string, ids []string, status domain.Status) error {
	err := c.mockRepo.UpdateStatus(ctx, kind, org, ids, status)
	c.cancel()
	return err
}

// --- Fiscal years ---

func TestFiscalYearScenario(t *testing.T) {
	f := newFixture(
		fiscalYear("FY22", domain.FiscalYearActive, true),
		fiscalYear("FY23", domain.FiscalYearActive, false),
	)
	ctx := context.Background()

	result, err := f.p.SetFlag(ctx, app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY23"})
	if err != nil {
		t.Fatalf("set FY23 current: %v", err)
	}
	if f.repo.get(domain.KindFiscalYear, org, "FY22").Flagged {
		t.Error("FY22 should no longer be current")
	}
	if !f.repo.get(domain.KindFiscalYear, org, "FY23").Flagged {
		t.Error("FY23 should be current")
	}
	wantTags := []domain.CacheTag{
		"fiscalyear:FY22",
		"fiscalyear:FY23",
		"fiscalyear:org:org1",
		"fiscalyear:org:org1:status:Active",
	}
	if !slices.Equal(result.InvalidatedTags, wantTags) {
		t.Errorf("tags = %v, want %v", result.InvalidatedTags, wantTags)
	}

	if _, err := f.p.ChangeStatus(ctx, app.StatusChange{
		OrganizationID: org, Kind: domain.KindFiscalYear, IDs: []string{"FY22"}, Target: domain.FiscalYearClosed,
	}); err != nil {
		t.Fatalf("closing FY22 should succeed once it is not current: %v", err)
	}

	_, err = f.p.ChangeStatus(ctx, app.StatusChange{
		OrganizationID: org, Kind: domain.KindFiscalYear, IDs: []string{"FY23"}, Target: domain.FiscalYearClosed,
	})
	if got := domain.Classify(err); got != domain.KindGuardRejected {
		t.Fatalf("closing current FY23 with no other active year: Classify = %q, want %q", got, domain.KindGuardRejected)
	}
	if got := f.repo.get(domain.KindFiscalYear, org, "FY23").Status; got != domain.FiscalYearActive {
		t.Errorf("FY23 status = %q, want it to stay Active", got)
	}
}

func TestChangeStatus_LeavingEligibleStatusDropsFlag(t *testing.T) {
	ct := resource(domain.KindContact, "ct1", domain.ContactActive)
	ct.ScopeKey, ct.Flagged = "client-1", true
	f := newFixture(
		fiscalYear("FY22", domain.FiscalYearActive, true),
		fiscalYear("FY23", domain.FiscalYearActive, false),
		ct,
	)
	ctx := context.Background()

	result, err := f.p.ChangeStatus(ctx, app.StatusChange{
		OrganizationID: org, Kind: domain.KindFiscalYear, IDs: []string{"FY22"}, Target: domain.FiscalYearClosed,
	})
	if err != nil {
		t.Fatalf("closing current FY22 while FY23 is active: %v", err)
	}
	if got := f.repo.get(domain.KindFiscalYear, org, "FY22"); got.Flagged {
		t.Errorf("FY22 is %s and still current", got.Status)
	}
	if f.repo.get(domain.KindFiscalYear, org, "FY23").Flagged {
		t.Error("FY23 must not become current implicitly")
	}
	if !slices.Contains(result.InvalidatedTags, domain.ResourceTag(domain.KindFiscalYear, "FY22")) {
		t.Errorf("tags %v should name FY22", result.InvalidatedTags)
	}

	if _, err := f.p.ChangeStatus(ctx, app.StatusChange{
		OrganizationID: org, Kind: domain.KindContact, IDs: []string{"ct1"}, Target: domain.ContactArchived,
	}); err != nil {
		t.Fatalf("archiving ct1: %v", err)
	}
	if f.repo.get(domain.KindContact, org, "ct1").Flagged {
		t.Error("archived contact must not stay the default")
	}

	// The vacated slot is free for an eligible sibling.
	if _, err := f.p.SetFlag(ctx, app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY23"}); err != nil {
		t.Fatalf("set FY23 current: %v", err)
	}
}

func TestChangeStatus_ClosingEveryActiveYearTripsGuard(t *testing.T) {
	f := newFixture(
		fiscalYear("FY22", domain.FiscalYearActive, true),
		fiscalYear("FY23", domain.FiscalYearActive, false),
	)

	result, err := f.p.ChangeStatus(context.Background(), app.StatusChange{
		OrganizationID: org, Kind: domain.KindFiscalYear, IDs: []string{"FY22", "FY23"}, Target: domain.FiscalYearClosed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(result.SucceededIDs, []string{"FY23"}) {
		t.Errorf("SucceededIDs = %v, want [FY23]", result.SucceededIDs)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].ID != "FY22" {
		t.Errorf("Rejected = %+v, want FY22", result.Rejected)
	}
}

// --- Flags ---

func TestSetFlag_AlreadyHolderIsNoOp(t *testing.T) {
	f := newFixture(fiscalYear("FY23", domain.FiscalYearActive, true))

	result, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY23"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome() != domain.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", result.Outcome())
	}
	if f.repo.writes != 0 || f.repo.swapCalls != 0 {
		t.Errorf("writes = %d, swaps = %d, want none", f.repo.writes, f.repo.swapCalls)
	}
	if len(result.InvalidatedTags) != 0 || len(f.inv.calls) != 0 {
		t.Errorf("no-op flag must not invalidate, got %v", result.InvalidatedTags)
	}
	if result.Message() == "" {
		t.Error("no-op should explain itself")
	}
}

func TestSetFlag_IneligibleStatus(t *testing.T) {
	f := newFixture(fiscalYear("FY21", domain.FiscalYearClosed, false))

	_, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY21"})
	if got := domain.Classify(err); got != domain.KindGuardRejected {
		t.Fatalf("Classify = %q, want %q", got, domain.KindGuardRejected)
	}
	if f.repo.swapCalls != 0 {
		t.Error("ineligible target must not reach the store")
	}
}

func TestSetFlag_KindWithoutFlag(t *testing.T) {
	f := newFixture(resource(domain.KindClient, "c1", domain.ClientActive))

	_, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindClient, ID: "c1"})
	if got := domain.Classify(err); got != domain.KindValidation {
		t.Fatalf("Classify = %q, want %q", got, domain.KindValidation)
	}
}

func TestSetFlag_ConflictRetriedOnce(t *testing.T) {
	f := newFixture(fiscalYear("FY23", domain.FiscalYearActive, false))
	f.repo.conflicts = 1

	if _, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY23"}); err != nil {
		t.Fatalf("one conflict should be absorbed by the retry: %v", err)
	}
	if f.repo.swapCalls != 2 {
		t.Errorf("swap calls = %d, want 2", f.repo.swapCalls)
	}
}

func TestSetFlag_ConflictSurfacesAfterRetry(t *testing.T) {
	f := newFixture(fiscalYear("FY23", domain.FiscalYearActive, false))
	f.repo.conflicts = 2

	_, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindFiscalYear, ID: "FY23"})
	if got := domain.Classify(err); got != domain.KindConflict {
		t.Fatalf("Classify = %q, want %q (err: %v)", got, domain.KindConflict, err)
	}
	if f.repo.swapCalls != 2 {
		t.Errorf("swap calls = %d, want 2", f.repo.swapCalls)
	}
	if len(f.inv.calls) != 0 {
		t.Error("failed swap must not invalidate")
	}
}

func TestSetFlag_ContactsScopedByParent(t *testing.T) {
	a := resource(domain.KindContact, "ct-a", domain.ContactActive)
	a.ScopeKey, a.Flagged = "client-1", true
	b := resource(domain.KindContact, "ct-b", domain.ContactActive)
	b.ScopeKey = "client-2"
	f := newFixture(a, b)

	result, err := f.p.SetFlag(context.Background(), app.ResourceRef{OrganizationID: org, Kind: domain.KindContact, ID: "ct-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.repo.get(domain.KindContact, org, "ct-a").Flagged {
		t.Error("default contact of another client must be kept")
	}
	if slices.Contains(result.InvalidatedTags, domain.ResourceTag(domain.KindContact, "ct-a")) {
		t.Errorf("tags %v should not name ct-a", result.InvalidatedTags)
	}
}

// --- Create / delete / reads ---

func TestCreate(t *testing.T) {
	f := newFixture()

	result, err := f.p.Create(context.Background(), app.CreateRequest{
		OrganizationID: org, Kind: domain.KindProduct, Name: "  Widget  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created := result.Resources[0]
	if created.ID == "" {
		t.Error("ID should not be empty")
	}
	if created.Status != domain.ProductDraft {
		t.Errorf("Status = %q, want %q", created.Status, domain.ProductDraft)
	}
	if created.Name != "Widget" {
		t.Errorf("Name = %q, want trimmed", created.Name)
	}

	wantTags := domain.DeriveTags(domain.KindProduct, org, []string{created.ID}, []domain.Status{domain.ProductDraft})
	if !slices.Equal(result.InvalidatedTags, wantTags) {
		t.Errorf("tags = %v, want %v", result.InvalidatedTags, wantTags)
	}
}

func TestCreate_ScopedKindNeedsParent(t *testing.T) {
	f := newFixture()

	_, err := f.p.Create(context.Background(), app.CreateRequest{
		OrganizationID: org, Kind: domain.KindContact, Name: "Ann",
	})
	if got := domain.Classify(err); got != domain.KindValidation {
		t.Fatalf("Classify = %q, want %q", got, domain.KindValidation)
	}
	if f.repo.writes != 0 {
		t.Error("invalid create must not write")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(resource(domain.KindSupplier, "s1", domain.SupplierArchived))
	ctx := context.Background()

	result, err := f.p.Delete(ctx, app.ResourceRef{OrganizationID: org, Kind: domain.KindSupplier, ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Contains(result.InvalidatedTags, domain.StatusTag(domain.KindSupplier, org, domain.SupplierArchived)) {
		t.Errorf("tags %v missing the archived status view", result.InvalidatedTags)
	}

	_, err = f.p.Delete(ctx, app.ResourceRef{OrganizationID: org, Kind: domain.KindSupplier, ID: "s1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	f := newFixture(
		resource(domain.KindClient, "c1", domain.ClientLead),
		resource(domain.KindClient, "c2", domain.ClientActive),
	)
	ctx := context.Background()

	got, err := f.p.Get(ctx, app.ResourceRef{OrganizationID: org, Kind: domain.KindClient, ID: "c2"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.ClientActive {
		t.Errorf("Status = %q, want %q", got.Status, domain.ClientActive)
	}

	list, err := f.p.List(ctx, app.ListRequest{
		OrganizationID: org, Kind: domain.KindClient, Statuses: []domain.Status{domain.ClientLead},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "c1" {
		t.Errorf("List = %+v, want only c1", list)
	}

	_, err = f.p.List(ctx, app.ListRequest{
		OrganizationID: org, Kind: domain.KindClient, Statuses: []domain.Status{domain.FiscalYearClosed},
	})
	if got := domain.Classify(err); got != domain.KindValidation {
		t.Errorf("foreign status filter: Classify = %q, want %q", got, domain.KindValidation)
	}

	_, err = f.p.List(ctx, app.ListRequest{OrganizationID: org, Kind: domain.KindClient, SortBy: "password"})
	if got := domain.Classify(err); got != domain.KindValidation {
		t.Errorf("unknown sort field: Classify = %q, want %q", got, domain.KindValidation)
	}
}
