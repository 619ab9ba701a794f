package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// TracingInvalidator wraps a domain.Invalidator with OpenTelemetry tracing
// and counts the tags it was asked to invalidate, split by outcome.
type TracingInvalidator struct {
	next    domain.Invalidator
	tracer  trace.Tracer
	counter metric.Int64Counter
}

// Compile-time check: TracingInvalidator implements domain.Invalidator.
var _ domain.Invalidator = (*TracingInvalidator)(nil)

// NewTracingInvalidator creates a tracing decorator around the given invalidator.
func NewTracingInvalidator(next domain.Invalidator) (*TracingInvalidator, error) {
	counter, err := otel.Meter(tracerName).Int64Counter("orgstate.cache.invalidated_tags",
		metric.WithDescription("Cache tags handed to the invalidator"),
		metric.WithUnit("{tag}"),
	)
	if err != nil {
		return nil, err
	}

	return &TracingInvalidator{
		next:    next,
		tracer:  otel.Tracer(tracerName),
		counter: counter,
	}, nil
}

func (i *TracingInvalidator) Invalidate(ctx context.Context, tags []domain.CacheTag) error {
	ctx, span := i.tracer.Start(ctx, "Invalidator.Invalidate",
		trace.WithAttributes(
			attribute.StringSlice("cache.tags", domain.TagStrings(tags)),
			attribute.Int("cache.tag_count", len(tags)),
		),
	)
	defer span.End()

	err := i.next.Invalidate(ctx, tags)
	recordError(span, err)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.counter.Add(ctx, int64(len(tags)), metric.WithAttributes(attribute.String("outcome", outcome)))

	return err
}
