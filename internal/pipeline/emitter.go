package pipeline

import (
	"time"

	"github.com/banshee-data/presence.report/internal/track"
)

// ReportSink receives emitted reports. Implementations do the actual I/O
// (database, log, API cache); the emitter itself is a pure data handoff.
type ReportSink interface {
	HandleReport(track.Report)
}

// ReportSinkFunc adapts a function to the ReportSink interface.
type ReportSinkFunc func(track.Report)

func (f ReportSinkFunc) HandleReport(r track.Report) { f(r) }

// DefaultOutputInterval is the minimum spacing between emitted reports.
const DefaultOutputInterval = 100 * time.Millisecond

// Emitter throttles report delivery to at most one per minimum interval.
// Frames decoding inside the throttle window still count in statistics; they
// just don't produce a fresh report.
type Emitter struct {
	// MinInterval is the throttle window. Zero means DefaultOutputInterval.
	MinInterval time.Duration

	sinks    []ReportSink
	lastEmit time.Time
}

// NewEmitter returns an emitter delivering to the given sinks.
func NewEmitter(interval time.Duration, sinks ...ReportSink) *Emitter {
	return &Emitter{MinInterval: interval, sinks: sinks}
}

// Offer delivers the report to every sink if the throttle window has
// elapsed. Returns whether the report was emitted.
func (e *Emitter) Offer(report track.Report, now time.Time) bool {
	interval := e.MinInterval
	if interval <= 0 {
		interval = DefaultOutputInterval
	}
	if !e.lastEmit.IsZero() && now.Sub(e.lastEmit) < interval {
		return false
	}
	e.lastEmit = now
	for _, sink := range e.sinks {
		sink.HandleReport(report)
	}
	return true
}
