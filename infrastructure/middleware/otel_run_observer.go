package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// RunObserver receives lifecycle callbacks around one aggregation run.
// Implementations add tracing, metrics, or logging without coupling the
// engine to any particular observability backend.
type RunObserver interface {
	// RunStarted is called when a recomputation begins. The returned
	// context carries the observer's span and must be used for the run.
	RunStarted(ctx context.Context, topicID, trigger string) context.Context

	// RunCompleted is called when the run finishes, with every result the
	// run produced, the degradation flags raised, and the terminal error
	// if the run failed.
	RunCompleted(ctx context.Context, results []domain.AggregateResult, flags []string, elapsed time.Duration, err error)
}

var _ RunObserver = (*OTelRunObserver)(nil)

// OTelRunObserver implements observability for aggregation runs using
// OpenTelemetry tracing. It creates a span per run, annotates it with the
// run's outcome, and forwards run metrics to the metrics collector.
type OTelRunObserver struct {
	metrics ports.MetricsCollector
}

// NewOTelRunObserver creates a new OpenTelemetry run observer.
func NewOTelRunObserver(metrics ports.MetricsCollector) *OTelRunObserver {
	return &OTelRunObserver{metrics: metrics}
}

type runSpanKey struct{}

type runSpan struct {
	span    trace.Span
	topicID string
	trigger string
}

// RunStarted opens a span for the recomputation and stashes it on the
// context for RunCompleted.
func (o *OTelRunObserver) RunStarted(ctx context.Context, topicID, trigger string) context.Context {
	tracer := otel.Tracer("consensus-engine")
	ctx, span := tracer.Start(ctx, "Engine.Recompute", trace.WithAttributes(
		attribute.String("topic.id", topicID),
		attribute.String("run.trigger", trigger),
	))
	return context.WithValue(ctx, runSpanKey{}, &runSpan{span: span, topicID: topicID, trigger: trigger})
}

// RunCompleted finalizes the span, records run outcome events, and emits
// latency and outcome metrics.
func (o *OTelRunObserver) RunCompleted(
	ctx context.Context,
	results []domain.AggregateResult,
	flags []string,
	elapsed time.Duration,
	err error,
) {
	rs, ok := ctx.Value(runSpanKey{}).(*runSpan)
	if !ok {
		return
	}
	defer rs.span.End()

	status := "success"
	if err != nil {
		status = "error"
		rs.span.SetStatus(codes.Error, err.Error())
	} else {
		rs.span.SetStatus(codes.Ok, "recomputation completed")
	}

	for _, result := range results {
		rs.span.AddEvent("result.computed", trace.WithAttributes(
			attribute.String("result.cohort", string(result.Cohort)),
			attribute.Int("result.participants", result.ParticipantCount),
			attribute.Bool("result.publishable", result.IsPublishable),
			attribute.String("result.band", string(result.Band)),
		))

		if o.metrics != nil && !result.IsPublishable {
			o.metrics.RecordCounter("consensus_withheld_results_total", 1, map[string]string{
				"topic":  rs.topicID,
				"cohort": string(result.Cohort),
				"reason": result.Decision.Reason,
			})
		}
	}

	for _, flag := range flags {
		rs.span.AddEvent("run.degraded", trace.WithAttributes(
			attribute.String("flag", flag),
		))
		if o.metrics != nil {
			o.metrics.RecordCounter("consensus_degraded_lookups_total", 1, map[string]string{
				"topic": rs.topicID,
				"flag":  flag,
			})
		}
	}

	if o.metrics != nil {
		labels := map[string]string{"topic": rs.topicID, "trigger": rs.trigger, "status": status}
		o.metrics.RecordLatency("recompute", elapsed, labels)
		o.metrics.RecordCounter("consensus_recompute_runs_total", 1, labels)
	}
}
