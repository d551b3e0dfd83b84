// Package metrics defines the sinks dosing activity is reported to. A sink
// implements MetricsSink for finished doses and any of the optional recorder
// interfaces for finer events. Sinks are built from configuration through the
// factory registry; several sinks are combined in a MultiSink.
package metrics
