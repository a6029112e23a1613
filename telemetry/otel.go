// Package telemetry is the OTEL-backed implementation of the
// dflow.Tracer observation contract: one span per attempt, one child
// span per effect dispatch, exported over OTLP/HTTP, plus counters for
// attempts by outcome and effects by kind and replayed/performed.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/arclight/dflow"
)

const scopeName = "github.com/arclight/dflow/telemetry"

// Init sets up an OTEL TracerProvider with an OTLP/HTTP exporter and
// returns a dflow.Tracer plus a shutdown function the caller must invoke
// on exit. endpoint overrides the exporter target; when empty, the
// standard OTEL_EXPORTER_OTLP_* env vars apply.
func Init(ctx context.Context, serviceName, endpoint string) (dflow.Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var expOpts []otlptracehttp.Option
	if endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpointURL(endpoint))
	}
	traceExp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	meter := otel.Meter(scopeName)
	attemptsTotal, err := meter.Int64Counter("dflow.attempts.total",
		metric.WithDescription("Total attempts by outcome"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: attempts counter: %w", err)
	}
	effectsTotal, err := meter.Int64Counter("dflow.effects.total",
		metric.WithDescription("Total effect dispatches by kind and replayed/performed"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: effects counter: %w", err)
	}

	t := &tracer{
		inner:    otel.Tracer(scopeName),
		attempts: attemptsTotal,
		effects:  effectsTotal,
	}
	return t, tp.Shutdown, nil
}

// tracer implements dflow.Tracer with OTEL spans and counters.
type tracer struct {
	inner    trace.Tracer
	attempts metric.Int64Counter
	effects  metric.Int64Counter
}

var _ dflow.Tracer = (*tracer)(nil)

func (t *tracer) StartAttempt(ctx context.Context, workflowID, attemptID string) (context.Context, dflow.AttemptSpan) {
	ctx, span := t.inner.Start(ctx, "dflow.attempt", trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("attempt.id", attemptID),
	))
	return ctx, &attemptSpan{ctx: ctx, span: span, counter: t.attempts}
}

func (t *tracer) StartEffect(ctx context.Context, kind dflow.EffectKind, position int) (context.Context, dflow.EffectSpan) {
	ctx, span := t.inner.Start(ctx, "dflow.effect", trace.WithAttributes(
		attribute.String("effect.kind", string(kind)),
		attribute.Int("effect.position", position),
	))
	return ctx, &effectSpan{ctx: ctx, span: span, counter: t.effects, kind: kind}
}

type attemptSpan struct {
	ctx     context.Context
	span    trace.Span
	counter metric.Int64Counter
}

var _ dflow.AttemptSpan = (*attemptSpan)(nil)

func (s *attemptSpan) End(outcome dflow.AttemptOutcome, err error) {
	s.span.SetAttributes(attribute.String("attempt.outcome", string(outcome)))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.counter.Add(s.ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
	))
	s.span.End()
}

type effectSpan struct {
	ctx     context.Context
	span    trace.Span
	counter metric.Int64Counter
	kind    dflow.EffectKind
}

var _ dflow.EffectSpan = (*effectSpan)(nil)

func (s *effectSpan) End(replayed bool, err error) {
	s.span.SetAttributes(attribute.Bool("effect.replayed", replayed))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.counter.Add(s.ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(s.kind)),
		attribute.Bool("replayed", replayed),
	))
	s.span.End()
}
