package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "workflow-scheme/backend/internal/services"

type metrics struct {
	deploys         metric.Int64Counter
	evaluations     metric.Int64Counter
	filterFallbacks metric.Int64Counter
}

// newMetrics registers the service counters on the global meter provider.
// Instrument errors fall back to no-op counters.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{}
	var err error
	if m.deploys, err = meter.Int64Counter("scheme.deploy",
		metric.WithDescription("Scheme publish attempts by outcome")); err != nil {
		otel.Handle(err)
	}
	if m.evaluations, err = meter.Int64Counter("transform.evaluation",
		metric.WithDescription("Transform guard and post-action evaluations by stage and outcome")); err != nil {
		otel.Handle(err)
	}
	if m.filterFallbacks, err = meter.Int64Counter("transform.filter.fallback",
		metric.WithDescription("Transform listings emptied because the filter call failed")); err != nil {
		otel.Handle(err)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *metrics) deploy(ctx context.Context, ok bool) {
	if m.deploys != nil {
		m.deploys.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(ok))))
	}
}

func (m *metrics) evaluation(ctx context.Context, stage string, ok bool) {
	if m.evaluations != nil {
		m.evaluations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome(ok)),
		))
	}
}

func (m *metrics) filterFallback(ctx context.Context) {
	if m.filterFallbacks != nil {
		m.filterFallbacks.Add(ctx, 1)
	}
}
