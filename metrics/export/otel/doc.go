// Package otel bridges the engine's counters into an OpenTelemetry meter as
// observable counters. The engine keeps its own lock-free counters; this
// package only reads snapshots on collection, so a disabled or absent meter
// costs the hot path nothing.
package otel
