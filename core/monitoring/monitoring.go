// Package monitoring reports controller failures to an error tracker.
package monitoring

import "time"

// Monitor receives errors that operators should look at: state timeouts,
// aborted sessions, hardware faults and dropped telemetry.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover reports a panic and re-raises it. It must be deferred
	// directly by the goroutine it protects.
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything. It is the monitor in use until Init.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init installs m as the process-wide monitor. A nil m is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

func Current() Monitor { return current }

// CaptureException forwards err to the installed monitor.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	current.CaptureException(err, tags)
}

func Flush(d time.Duration) { current.Flush(d) }
