// Package track maintains per-slot target state across decode cycles:
// activity thresholding, optional moving-average smoothing, and expiry of
// slots that stop receiving samples.
package track

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/rd03"
)

// Mode selects how decoded samples are attributed to slots each cycle. It is
// passed into Update explicitly rather than stored on the tracker, so the
// branch is a first-class, testable parameter.
type Mode int

const (
	// ModeSingleTarget reports only the first active sample in decode
	// order; scanning stops there.
	ModeSingleTarget Mode = iota
	// ModeMultiTarget reports every active sample, attributed to its
	// positional slot index.
	ModeMultiTarget
)

// Config holds the tracker's runtime-tunable parameters.
type Config struct {
	// MinDistanceM is the activity distance threshold in meters. Samples
	// closer to the origin than this (and slower than MinSpeed) are noise.
	MinDistanceM float64
	// MinSpeed is the activity speed threshold in sensor speed units.
	MinSpeed float64
	// Smoothing enables the per-slot moving-average filter.
	Smoothing bool
	// AngleEnabled enables bearing computation; when disabled the bearing
	// reports as zero.
	AngleEnabled bool
	// IdleTimeout is how long a slot may go without a new sample before a
	// maintenance sweep clears it.
	IdleTimeout time.Duration
}

// DefaultConfig returns the tracker defaults used by the shipped firmware
// profile.
func DefaultConfig() Config {
	return Config{
		MinDistanceM: 0.2,
		MinSpeed:     5,
		Smoothing:    false,
		AngleEnabled: true,
		IdleTimeout:  time.Second,
	}
}

// slot is the tracker-owned state for one target index.
type slot struct {
	ring       sampleRing
	lastX      float64
	lastY      float64
	lastSpeed  float64
	gate       uint16
	lastUpdate time.Time
	active     bool
}

func (s *slot) clear() {
	s.ring.reset()
	s.active = false
}

// Tracker maps per-cycle sample sequences onto a fixed set of target slots.
// All mutation happens from the single polling goroutine; the mutex only
// guards config updates and snapshot reads arriving from the API.
type Tracker struct {
	mu    sync.Mutex
	cfg   Config
	slots [rd03.MaxTargets]slot

	// hadTarget drives the one-shot "no target" transition in single-target
	// mode: the cycle on which activity ceases reports once, later inactive
	// cycles stay quiet.
	hadTarget bool
}

// New returns a tracker with every slot empty.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// SetConfig replaces the tracker's tunable parameters. Takes effect on the
// next cycle; slot state is preserved (changing thresholds mid-run may cause
// transient slot churn, which is acceptable). Toggling smoothing empties the
// rings so a later mean never includes samples recorded under the old
// setting.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cfg.Smoothing != t.cfg.Smoothing {
		for i := range t.slots {
			t.slots[i].ring.reset()
		}
	}
	t.cfg = cfg
}

// Config returns the current tracker configuration.
func (t *Tracker) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// isActive applies the activity rule: a sample counts when it is far enough
// from the origin or moving fast enough; anything else is noise.
func (t *Tracker) isActive(s rd03.TargetSample) bool {
	distM := math.Hypot(float64(s.X), float64(s.Y)) / rd03.MillimetersPerUnit
	if distM > t.cfg.MinDistanceM {
		return true
	}
	return math.Abs(float64(s.Speed)) > t.cfg.MinSpeed
}

// Update consumes one decode cycle's samples and returns whether the tracked
// state changed in a report-worthy way.
func (t *Tracker) Update(samples []rd03.TargetSample, mode Mode, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == ModeSingleTarget {
		return t.updateSingle(samples, now)
	}
	return t.updateMulti(samples, now)
}

func (t *Tracker) updateSingle(samples []rd03.TargetSample, now time.Time) bool {
	for _, s := range samples {
		if !t.isActive(s) {
			continue
		}
		// First active sample wins; later samples are not scanned.
		t.attribute(0, s, now)
		t.hadTarget = true
		return true
	}

	if t.hadTarget {
		// Activity ceased: report the empty state exactly once.
		t.hadTarget = false
		for i := range t.slots {
			t.slots[i].clear()
		}
		return true
	}
	return false
}

func (t *Tracker) updateMulti(samples []rd03.TargetSample, now time.Time) bool {
	changed := false
	for i, s := range samples {
		if i >= len(t.slots) {
			break
		}
		// Inactive samples still consume their slot index; they just
		// don't refresh it.
		if !t.isActive(s) {
			continue
		}
		t.attribute(i, s, now)
		changed = true
	}
	if changed {
		t.hadTarget = true
	}
	return changed
}

func (t *Tracker) attribute(idx int, s rd03.TargetSample, now time.Time) {
	sl := &t.slots[idx]
	sl.lastX = float64(s.X)
	sl.lastY = float64(s.Y)
	sl.lastSpeed = float64(s.Speed)
	sl.gate = s.Gate
	sl.lastUpdate = now
	sl.active = true
	if t.cfg.Smoothing {
		sl.ring.push(sl.lastX, sl.lastY, sl.lastSpeed)
	}
}

// Sweep clears slots that have gone longer than the idle timeout without a
// new sample. It runs from the poll loop as a periodic maintenance pass, not
// inline with decoding, so stale smoothed state cannot linger indefinitely.
// Returns whether any slot expired.
func (t *Tracker) Sweep(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeout := t.cfg.IdleTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	expired := false
	anyActive := false
	for i := range t.slots {
		sl := &t.slots[i]
		if !sl.active {
			continue
		}
		if now.Sub(sl.lastUpdate) > timeout {
			sl.clear()
			expired = true
			continue
		}
		anyActive = true
	}
	if expired && !anyActive {
		// Everything aged out; the next single-target cycle should not
		// re-report "no target" on top of the expiry report.
		t.hadTarget = false
	}
	return expired
}

// ActiveCount returns how many slots currently hold an unexpired target.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].active {
			n++
		}
	}
	return n
}
