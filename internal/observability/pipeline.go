package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const pipelineInstrumentationName = "poster-pipeline/poster"

// PipelineMetrics holds the derivative pipeline instruments. A nil
// *PipelineMetrics records nothing.
type PipelineMetrics struct {
	duration          metric.Float64Histogram
	failures          metric.Int64Counter
	accentMissing     metric.Int64Counter
	presenterFailures metric.Int64Counter
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	duration, err := meter.Float64Histogram(
		"poster.pipeline.duration",
		metric.WithDescription("Duration of derivative pipeline stages"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"poster.pipeline.failures",
		metric.WithDescription("Failed derivative pipeline runs by stage"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	accentMissing, err := meter.Int64Counter(
		"poster.placeholder.accent_missing",
		metric.WithDescription("Placeholders emitted without an accent suffix"),
		metric.WithUnit("{placeholder}"),
	)
	if err != nil {
		return nil, err
	}

	presenterFailures, err := meter.Int64Counter(
		"poster.presenter.failures",
		metric.WithDescription("Presenter images that could not be produced"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		duration:          duration,
		failures:          failures,
		accentMissing:     accentMissing,
		presenterFailures: presenterFailures,
	}, nil
}

// RecordStage records how long one stage took
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordFailure counts a pipeline run that failed in stage
func (m *PipelineMetrics) RecordFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordAccentMissing counts a placeholder that fell back to the brand accent
func (m *PipelineMetrics) RecordAccentMissing(ctx context.Context) {
	if m == nil {
		return
	}
	m.accentMissing.Add(ctx, 1)
}

// RecordPresenterFailure counts a swallowed presenter error
func (m *PipelineMetrics) RecordPresenterFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.presenterFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// GetPipelineTracer returns the tracer used for pipeline stage spans
func GetPipelineTracer() trace.Tracer {
	return otel.Tracer(pipelineInstrumentationName)
}

// GetPipelineMeter returns the meter used for pipeline metrics
func GetPipelineMeter() metric.Meter {
	return otel.Meter(pipelineInstrumentationName)
}
