// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance. The meter reads from the global
// provider; a disabled meter records nothing.
func New(_ context.Context, cfg Config, serviceName string) *Meter {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(serviceName)}
	}
	return &Meter{meter: otel.Meter(serviceName)}
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// AuditStats exposes the loss counters of an audit emitter.
type AuditStats interface {
	Dropped() int64
	Failed() int64
}

// ObserveAudit reports the dropped and failed audit event totals of stats on
// every collection.
func (m *Meter) ObserveAudit(stats AuditStats) (metric.Registration, error) {
	dropped, err := m.meter.Int64ObservableCounter(
		"staffgate_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the buffer was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter staffgate_audit_dropped_total: %w", err)
	}
	failed, err := m.meter.Int64ObservableCounter(
		"staffgate_audit_failed_total",
		metric.WithDescription("Audit events the sink failed to record"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter staffgate_audit_failed_total: %w", err)
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(dropped, stats.Dropped())
		o.ObserveInt64(failed, stats.Failed())
		return nil
	}, dropped, failed)
}
