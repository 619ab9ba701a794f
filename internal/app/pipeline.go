package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/neomorfeo/orgstate/internal/domain"
	"github.com/neomorfeo/orgstate/internal/logger"
)

// Stage names a gate a mutation must pass. A request moves through them in
// declaration order and stops at the first one it fails.
type Stage string

const (
	StageAuthenticated    Stage = "authenticated"
	StageAuthorizedForOrg Stage = "authorized_for_org"
	StageValidated        Stage = "validated"
	StageGuardChecked     Stage = "guard_checked"
	StagePersisted        Stage = "persisted"
)

// StageError reports the gate a request could not pass.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StatusChange asks for every id to be moved to Target.
type StatusChange struct {
	OrganizationID string        `validate:"required"`
	Kind           domain.Kind   `validate:"required"`
	IDs            []string      `validate:"required,min=1,max=500,dive,required"`
	Target         domain.Status `validate:"required"`
}

// ResourceRef addresses one resource.
type ResourceRef struct {
	OrganizationID string      `validate:"required"`
	Kind           domain.Kind `validate:"required"`
	ID             string      `validate:"required"`
}

// CreateRequest describes a new resource. ScopeKey is the parent id and is
// required for scoped kinds only.
type CreateRequest struct {
	OrganizationID string      `validate:"required"`
	Kind           domain.Kind `validate:"required"`
	Name           string      `validate:"required,max=200"`
	ScopeKey       string      `validate:"max=64"`
}

// ListRequest mirrors the dimensions cached list views are keyed by.
type ListRequest struct {
	OrganizationID string      `validate:"required"`
	Kind           domain.Kind `validate:"required"`
	Statuses       []domain.Status
	Search         string           `validate:"max=200"`
	SortBy         domain.SortField `validate:"omitempty,oneof=name status created_at updated_at"`
	Descending     bool
	Limit          int `validate:"gte=0,lte=200"`
	Offset         int `validate:"gte=0"`
}

const defaultListLimit = 50

// Pipeline runs every mutation through the same gates: authenticate,
// authorize for the organization, validate, guard, persist, invalidate.
// Nothing is read from the store before the actor is authorized and nothing
// is written before every gate has passed.
type Pipeline struct {
	repo        domain.ResourceRepository
	authn       domain.Authenticator
	authz       domain.Authorizer
	invalidator domain.Invalidator
	bulk        *BulkCoordinator
	flags       *FlagCoordinator
	validate    *validator.Validate

	invalidationTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInvalidationTimeout bounds how long post-write invalidation may take.
func WithInvalidationTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.invalidationTimeout = d
		}
	}
}

// NewPipeline wires the gates to their adapters.
func NewPipeline(
	repo domain.ResourceRepository,
	guard domain.TransitionGuard,
	authn domain.Authenticator,
	authz domain.Authorizer,
	invalidator domain.Invalidator,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		repo:                repo,
		authn:               authn,
		authz:               authz,
		invalidator:         invalidator,
		bulk:                NewBulkCoordinator(repo, guard),
		flags:               NewFlagCoordinator(repo),
		validate:            validator.New(validator.WithRequiredStructEnabled()),
		invalidationTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChangeStatus moves one or many resources to a target status. With a
// single id any rejection is returned as the error; with several ids
// rejections are reported per id in the result.
func (p *Pipeline) ChangeStatus(ctx context.Context, req StatusChange) (domain.MutationResult, error) {
	actor, err := p.gate(ctx, req.OrganizationID)
	if err != nil {
		return domain.MutationResult{}, err
	}

	spec, err := p.validateKind(req, req.Kind)
	if err != nil {
		return domain.MutationResult{}, err
	}
	if !spec.HasStatus(req.Target) {
		return domain.MutationResult{}, &StageError{Stage: StageValidated, Err: &domain.ValidationError{
			Field:  "targetStatus",
			Reason: fmt.Sprintf("%q is not a %s status", req.Target, req.Kind),
		}}
	}

	result, err := p.bulk.Apply(ctx, req.Kind, req.OrganizationID, req.IDs, req.Target)
	if err != nil {
		return domain.MutationResult{}, &StageError{Stage: StagePersisted, Err: err}
	}

	if result.Requested == 1 && len(result.Rejected) == 1 {
		return domain.MutationResult{}, &StageError{Stage: StageGuardChecked, Err: result.Rejected[0].Err}
	}

	p.invalidate(ctx, result.InvalidatedTags)

	logger.FromContext(ctx).Info("status change applied",
		zap.String("actor", actor.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("organization_id", req.OrganizationID),
		zap.String("target", string(req.Target)),
		zap.String("outcome", result.Outcome()),
		zap.Int("succeeded", len(result.SucceededIDs)),
		zap.Int("rejected", len(result.Rejected)),
	)

	return result, nil
}

// SetFlag makes the referenced resource the holder of its kind's singleton flag.
func (p *Pipeline) SetFlag(ctx context.Context, ref ResourceRef) (domain.MutationResult, error) {
	actor, err := p.gate(ctx, ref.OrganizationID)
	if err != nil {
		return domain.MutationResult{}, err
	}

	spec, err := p.validateKind(ref, ref.Kind)
	if err != nil {
		return domain.MutationResult{}, err
	}
	if spec.Flag == nil {
		return domain.MutationResult{}, &StageError{Stage: StageValidated, Err: &domain.ValidationError{
			Field:  "kind",
			Reason: fmt.Sprintf("%s has no singleton flag", ref.Kind),
		}}
	}

	result, err := p.flags.SetFlag(ctx, ref.Kind, ref.OrganizationID, ref.ID)
	if err != nil {
		return domain.MutationResult{}, &StageError{Stage: stageOf(err), Err: err}
	}

	p.invalidate(ctx, result.InvalidatedTags)

	logger.FromContext(ctx).Info("flag set",
		zap.String("actor", actor.ID),
		zap.String("kind", string(ref.Kind)),
		zap.String("organization_id", ref.OrganizationID),
		zap.String("id", ref.ID),
		zap.Bool("noop", result.Note != ""),
	)

	return result, nil
}

// Create adds a resource in its kind's initial status.
func (p *Pipeline) Create(ctx context.Context, req CreateRequest) (domain.MutationResult, error) {
	actor, err := p.gate(ctx, req.OrganizationID)
	if err != nil {
		return domain.MutationResult{}, err
	}

	spec, err := p.validateKind(req, req.Kind)
	if err != nil {
		return domain.MutationResult{}, err
	}

	scopeKey := strings.TrimSpace(req.ScopeKey)
	switch {
	case spec.Scoped && scopeKey == "":
		return domain.MutationResult{}, &StageError{Stage: StageValidated, Err: &domain.ValidationError{
			Field: "scopeKey", Reason: fmt.Sprintf("%s must belong to a parent", req.Kind),
		}}
	case !spec.Scoped:
		scopeKey = ""
	}

	res := domain.NewResource(generateID(), spec, req.OrganizationID, scopeKey, strings.TrimSpace(req.Name))
	if err := p.repo.Create(ctx, res); err != nil {
		return domain.MutationResult{}, &StageError{Stage: StagePersisted, Err: fmt.Errorf("creating %s: %w", req.Kind, err)}
	}

	result := domain.MutationResult{
		Kind:            req.Kind,
		OrganizationID:  req.OrganizationID,
		Requested:       1,
		SucceededIDs:    []string{res.ID},
		Resources:       []domain.Resource{res},
		InvalidatedTags: domain.DeriveTags(req.Kind, req.OrganizationID, []string{res.ID}, []domain.Status{res.Status}),
	}
	p.invalidate(ctx, result.InvalidatedTags)

	logger.FromContext(ctx).Info("resource created",
		zap.String("actor", actor.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("organization_id", req.OrganizationID),
		zap.String("id", res.ID),
	)

	return result, nil
}

// Delete hard-deletes a resource. It bypasses the transition table.
func (p *Pipeline) Delete(ctx context.Context, ref ResourceRef) (domain.MutationResult, error) {
	actor, err := p.gate(ctx, ref.OrganizationID)
	if err != nil {
		return domain.MutationResult{}, err
	}

	if _, err := p.validateKind(ref, ref.Kind); err != nil {
		return domain.MutationResult{}, err
	}

	res, err := p.repo.Get(ctx, ref.Kind, ref.OrganizationID, ref.ID)
	if err != nil {
		return domain.MutationResult{}, &StageError{Stage: stageOf(err), Err: err}
	}

	if err := p.repo.Delete(ctx, ref.Kind, ref.OrganizationID, ref.ID); err != nil {
		return domain.MutationResult{}, &StageError{Stage: stageOf(err), Err: err}
	}

	result := domain.MutationResult{
		Kind:            ref.Kind,
		OrganizationID:  ref.OrganizationID,
		Requested:       1,
		SucceededIDs:    []string{ref.ID},
		InvalidatedTags: domain.DeriveTags(ref.Kind, ref.OrganizationID, []string{ref.ID}, []domain.Status{res.Status}),
	}
	p.invalidate(ctx, result.InvalidatedTags)

	logger.FromContext(ctx).Info("resource deleted",
		zap.String("actor", actor.ID),
		zap.String("kind", string(ref.Kind)),
		zap.String("organization_id", ref.OrganizationID),
		zap.String("id", ref.ID),
	)

	return result, nil
}

// Get returns one resource.
func (p *Pipeline) Get(ctx context.Context, ref ResourceRef) (domain.Resource, error) {
	if _, err := p.gate(ctx, ref.OrganizationID); err != nil {
		return domain.Resource{}, err
	}
	if _, err := p.validateKind(ref, ref.Kind); err != nil {
		return domain.Resource{}, err
	}
	return p.repo.Get(ctx, ref.Kind, ref.OrganizationID, ref.ID)
}

// List returns resources of a kind matching the request's filters.
func (p *Pipeline) List(ctx context.Context, req ListRequest) ([]domain.Resource, error) {
	if _, err := p.gate(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	spec, err := p.validateKind(req, req.Kind)
	if err != nil {
		return nil, err
	}
	for _, s := range req.Statuses {
		if !spec.HasStatus(s) {
			return nil, &StageError{Stage: StageValidated, Err: &domain.ValidationError{
				Field: "status", Reason: fmt.Sprintf("%q is not a %s status", s, req.Kind),
			}}
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	return p.repo.List(ctx, domain.ListFilter{
		Kind:           req.Kind,
		OrganizationID: req.OrganizationID,
		Statuses:       req.Statuses,
		Search:         strings.TrimSpace(req.Search),
		SortBy:         req.SortBy,
		Descending:     req.Descending,
		Limit:          limit,
		Offset:         req.Offset,
	})
}

// gate authenticates the caller and checks organization membership.
func (p *Pipeline) gate(ctx context.Context, organizationID string) (domain.Actor, error) {
	actor, err := p.authn.Actor(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
		}
		return domain.Actor{}, &StageError{Stage: StageAuthenticated, Err: err}
	}

	ok, err := p.authz.HasAccess(ctx, actor, organizationID)
	if err != nil {
		return domain.Actor{}, &StageError{Stage: StageAuthorizedForOrg, Err: fmt.Errorf("checking access: %w", err)}
	}
	if !ok {
		return domain.Actor{}, &StageError{Stage: StageAuthorizedForOrg, Err: domain.ErrForbidden}
	}

	return actor, nil
}

// validateKind runs struct validation on req and resolves its kind.
func (p *Pipeline) validateKind(req any, kind domain.Kind) (domain.KindSpec, error) {
	if err := p.validate.Struct(req); err != nil {
		return domain.KindSpec{}, &StageError{Stage: StageValidated, Err: toValidationError(err)}
	}

	spec, ok := domain.Lookup(kind)
	if !ok {
		return domain.KindSpec{}, &StageError{Stage: StageValidated, Err: &domain.ValidationError{
			Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind),
		}}
	}
	return spec, nil
}

// invalidate broadcasts tags after a successful write. It runs on a context
// detached from the caller's cancellation so a disconnecting client cannot
// leave stale views behind. Failure is logged and never fails the write.
func (p *Pipeline) invalidate(ctx context.Context, tags []domain.CacheTag) {
	if len(tags) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.invalidationTimeout)
	defer cancel()

	if err := p.invalidator.Invalidate(ctx, tags); err != nil {
		logger.FromContext(ctx).Warn("cache invalidation failed",
			zap.Strings("tags", domain.TagStrings(tags)),
			zap.Error(err),
		)
	}
}

func stageOf(err error) Stage {
	switch domain.Classify(err) {
	case domain.KindNotFound, domain.KindGuardRejected:
		return StageGuardChecked
	case domain.KindValidation:
		return StageValidated
	default:
		return StagePersisted
	}
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}

	fe := fieldErrs[0]
	reason := "failed " + fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return &domain.ValidationError{Field: fe.Field(), Reason: reason}
}
