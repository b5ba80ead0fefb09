package track

import (
	"math"
	"time"

	"github.com/banshee-data/presence.report/internal/rd03"
)

// TargetReport is the outward-facing view of one tracked target. Positions
// are millimeters in the sensor frame; distance is derived in meters and
// bearing in degrees off the forward axis.
type TargetReport struct {
	Slot       int     `json:"slot"`
	X          float64 `json:"x_mm"`
	Y          float64 `json:"y_mm"`
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
	Speed      float64 `json:"speed"`
	Gate       uint16  `json:"gate"`
	Smoothed   bool    `json:"smoothed"`
}

// Report is the emitted snapshot handed to downstream consumers (display,
// log, web API). Built fresh per emission, independent of slot storage, safe
// to hand to any reader.
type Report struct {
	Targets       []TargetReport `json:"targets"`
	ValidFrames   uint64         `json:"valid_frames"`
	DroppedFrames uint64         `json:"dropped_frames"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Snapshot builds a report of the currently active targets. When smoothing
// is enabled the reported position and speed are ring means, and distance
// and bearing are recomputed from the smoothed position rather than being
// smoothed independently.
func (t *Tracker) Snapshot(now time.Time, valid, dropped uint64) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := Report{
		ValidFrames:   valid,
		DroppedFrames: dropped,
		Timestamp:     now,
	}

	for i := range t.slots {
		sl := &t.slots[i]
		if !sl.active {
			continue
		}

		x, y, speed := sl.lastX, sl.lastY, sl.lastSpeed
		smoothed := false
		if t.cfg.Smoothing && sl.ring.count > 0 {
			x, y, speed = sl.ring.mean()
			smoothed = true
		}

		tr := TargetReport{
			Slot:      i,
			X:         x,
			Y:         y,
			DistanceM: math.Hypot(x, y) / rd03.MillimetersPerUnit,
			Speed:     speed,
			Gate:      sl.gate,
			Smoothed:  smoothed,
		}
		if t.cfg.AngleEnabled {
			tr.BearingDeg = bearing(x, y)
		}
		report.Targets = append(report.Targets, tr)
	}
	return report
}

// bearing is the angle of the position vector measured from the forward (Y)
// axis, positive toward positive X.
func bearing(x, y float64) float64 {
	if x == 0 && y == 0 {
		return 0
	}
	return math.Atan2(x, y) * 180 / math.Pi
}
