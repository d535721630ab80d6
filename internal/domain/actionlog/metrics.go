package actionlog

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type storeMetrics struct {
	mutations metric.Int64Counter
	reloads   metric.Int64Counter
}

func newStoreMetrics(meter metric.Meter) *storeMetrics {
	m := &storeMetrics{}
	// Instrument creation only fails for invalid names; fall back to no-ops.
	if c, err := meter.Int64Counter("lullaby.actions.mutations",
		metric.WithDescription("Action log mutations that changed state")); err == nil {
		m.mutations = c
	}
	if c, err := meter.Int64Counter("lullaby.cache.reloads",
		metric.WithDescription("Full cache reloads by outcome")); err == nil {
		m.reloads = c
	}
	return m
}

func (m *storeMetrics) mutation(ctx context.Context, op string) {
	if m.mutations != nil {
		m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (m *storeMetrics) reload(ctx context.Context, result string) {
	if m.reloads != nil {
		m.reloads.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
