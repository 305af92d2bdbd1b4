// Package metrics wires the operation counters the server reports. The
// stdout exporter is for local deployments; a disabled provider costs one
// no-op call per operation.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/wikora/wikora"

// Metrics carries the instrument set. The zero value is unusable; use
// Disabled or Enable.
type Metrics struct {
	provider   *sdkmetric.MeterProvider
	Operations metric.Int64Counter
	Reaps      metric.Int64Counter
	IndexOps   metric.Int64Counter
}

// Disabled returns a metrics set backed by the global (no-op) provider.
func Disabled() *Metrics {
	m := &Metrics{}
	m.instruments(otel.Meter(meterName))
	return m
}

// Enable installs a periodic stdout exporter and returns the live set.
func Enable(interval time.Duration) (*Metrics, error) {
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	m := &Metrics{provider: provider}
	m.instruments(provider.Meter(meterName))
	return m, nil
}

func (m *Metrics) instruments(meter metric.Meter) {
	m.Operations, _ = meter.Int64Counter("wikora.operations",
		metric.WithDescription("mutating service operations committed"))
	m.Reaps, _ = meter.Int64Counter("wikora.lock_reaps",
		metric.WithDescription("expired locks reaped"))
	m.IndexOps, _ = meter.Int64Counter("wikora.index_events",
		metric.WithDescription("full-text index events applied"))
}

// CountOp records one committed operation by name.
func (m *Metrics) CountOp(ctx context.Context, op string) {
	m.Operations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Shutdown flushes the exporter.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
