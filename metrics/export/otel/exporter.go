package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter rejects construction without a meter.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource rejects construction without a metrics source.
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter observes. *authcore.Engine satisfies it.
type Source interface {
	// Snapshot returns every counter keyed by export name.
	Snapshot() map[string]uint64
	// AuditDropped reports discarded audit events.
	AuditDropped() uint64
}

type observedCounter struct {
	name       string
	instrument metric.Int64ObservableCounter
}

// Exporter registers the engine's counters on an OpenTelemetry meter and
// observes current values on every collection.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// New builds the exporter and registers its collection callback. Call Close
// to unregister.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	initial := source.Snapshot()
	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(initial)),
	}
	observables := make([]metric.Observable, 0, len(initial)+1)

	for name := range initial {
		ins, err := meter.Int64ObservableCounter(
			"authcore_"+name+"_total",
			metric.WithDescription("Authentication engine counter "+name+"."),
		)
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{name: name, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"authcore_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.Snapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot[c.name]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
