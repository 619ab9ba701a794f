package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/orgstate/internal/domain"
)

const tracerName = "github.com/neomorfeo/orgstate/internal/adapter/otel"

// TracingRepository wraps a domain.ResourceRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.ResourceRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.ResourceRepository.
var _ domain.ResourceRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.ResourceRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func scope(kind domain.Kind, organizationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("resource.kind", string(kind)),
		attribute.String("organization.id", organizationID),
	}
}

func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (r *TracingRepository) Create(ctx context.Context, res domain.Resource) error {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.Create",
		trace.WithAttributes(scope(res.Kind, res.OrganizationID)...),
		trace.WithAttributes(attribute.String("resource.id", res.ID)),
	)
	defer span.End()

	err := r.next.Create(ctx, res)
	recordError(span, err)
	return err
}

func (r *TracingRepository) Get(ctx context.Context, kind domain.Kind, organizationID, id string) (domain.Resource, error) {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.Get",
		trace.WithAttributes(scope(kind, organizationID)...),
		trace.WithAttributes(attribute.String("resource.id", id)),
	)
	defer span.End()

	res, err := r.next.Get(ctx, kind, organizationID, id)
	recordError(span, err)
	return res, err
}

func (r *TracingRepository) GetMany(ctx context.Context, kind domain.Kind, organizationID string, ids []string) ([]domain.Resource, error) {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.GetMany",
		trace.WithAttributes(scope(kind, organizationID)...),
		trace.WithAttributes(attribute.Int("request.count", len(ids))),
	)
	defer span.End()

	out, err := r.next.GetMany(ctx, kind, organizationID, ids)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Resource, error) {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.List",
		trace.WithAttributes(scope(filter.Kind, filter.OrganizationID)...),
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
			attribute.String("filter.sort", string(filter.SortBy)),
		),
	)
	defer span.End()

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		span.SetAttributes(attribute.StringSlice("filter.status", statuses))
	}

	out, err := r.next.List(ctx, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

func (r *TracingRepository) UpdateStatus(ctx context.Context, kind domain.Kind, organizationID string, ids []string, status domain.Status) error {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.UpdateStatus",
		trace.WithAttributes(scope(kind, organizationID)...),
		trace.WithAttributes(
			attribute.String("resource.status", string(status)),
			attribute.Int("request.count", len(ids)),
		),
	)
	defer span.End()

	err := r.next.UpdateStatus(ctx, kind, organizationID, ids, status)
	recordError(span, err)
	return err
}

func (r *TracingRepository) CountSiblings(ctx context.Context, q domain.SiblingQuery) (int, error) {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.CountSiblings",
		trace.WithAttributes(scope(q.Kind, q.OrganizationID)...),
		trace.WithAttributes(attribute.String("resource.status", string(q.Status))),
	)
	defer span.End()

	n, err := r.next.CountSiblings(ctx, q)
	recordError(span, err)
	return n, err
}

func (r *TracingRepository) SwapFlag(ctx context.Context, swap domain.FlagSwap) (domain.FlagSwapResult, error) {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.SwapFlag",
		trace.WithAttributes(scope(swap.Kind, swap.OrganizationID)...),
		trace.WithAttributes(attribute.String("resource.id", swap.TargetID)),
	)
	defer span.End()

	result, err := r.next.SwapFlag(ctx, swap)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.previous", len(result.Previous)))
	}
	return result, err
}

func (r *TracingRepository) Delete(ctx context.Context, kind domain.Kind, organizationID, id string) error {
	ctx, span := r.tracer.Start(ctx, "ResourceRepository.Delete",
		trace.WithAttributes(scope(kind, organizationID)...),
		trace.WithAttributes(attribute.String("resource.id", id)),
	)
	defer span.End()

	err := r.next.Delete(ctx, kind, organizationID, id)
	recordError(span, err)
	return err
}
