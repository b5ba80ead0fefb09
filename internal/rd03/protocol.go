// Package rd03 implements the binary serial protocol spoken by the RD-03D
// 24 GHz FMCW radar module: frame synchronization over a raw byte stream,
// frame validation, and field decoding into per-target samples.
package rd03

import "time"

/*
RD-03D Frame Format

The sensor emits fixed 30-byte frames over UART (256000 8N1). Field layout:

	├── Header (2 bytes)  - mode byte (0xAA single-target, 0xAB multi-target) + 0xFF
	├── Count  (1 byte)   - declared number of target records, 1-3
	├── Reserved (1 byte)
	├── Targets (24 bytes) - 3 records × 8 bytes, little-endian u16 fields:
	│   └── x, y, speed, gate
	└── Footer (2 bytes)  - 0x55 0xCC

Signed values are not two's-complement. Positions are unsigned offsets from a
fixed center constant (x from 0x0200, y from 0x8000). Speed uses a split
mapping around 0x8000; see decodeSpeed. These conventions were established by
observing the sensor output; there is no published register-level datasheet.
*/
const (
	// FrameLength is the fixed on-wire size of one target frame.
	FrameLength = 30

	// HeadSingle and HeadMulti are the two accepted values for the first
	// header byte. Which one appears depends on the frame type the sensor
	// was commanded to emit.
	HeadSingle = 0xAA
	HeadMulti  = 0xAB

	// HeadFixed is the second header byte, identical for both frame types.
	HeadFixed = 0xFF

	// FootA and FootB are the two trailing footer bytes.
	FootA = 0x55
	FootB = 0xCC

	// MaxTargets is the number of target records carried per frame.
	MaxTargets = 3

	// targetOffset is where target records begin (header + count + reserved).
	targetOffset = 4
	// targetStride is the size of one target record.
	targetStride = 8
	// footerOffset is where the footer begins.
	footerOffset = FrameLength - 2
)

// Baseline constants for the sign/offset encodings.
const (
	xCenterOffset = 0x0200
	yBaseline     = 0x8000
	speedBaseline = 0x8000

	// speedClamp absorbs encoding artifacts near the baseline; observed
	// sensor output never legitimately exceeds this magnitude.
	speedClamp = 1000
)

// MillimetersPerUnit converts the protocol's integer distance units to
// meters when divided out (positions arrive in millimeters).
const MillimetersPerUnit = 1000.0

// Mode selection commands. Written once to the sensor at startup to choose
// the frame type; not part of the steady-state stream.
var (
	CmdSingleTarget = []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x80, 0x00, 0x04, 0x03, 0x02, 0x01}
	CmdMultiTarget  = []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x90, 0x00, 0x04, 0x03, 0x02, 0x01}
)

// ModeCommand returns the one-shot initialization command selecting
// multi-target or single-target frame emission at the sensor.
func ModeCommand(multiTarget bool) []byte {
	if multiTarget {
		return CmdMultiTarget
	}
	return CmdSingleTarget
}

// validHead reports whether b is an accepted first header byte.
func validHead(b byte) bool {
	return b == HeadSingle || b == HeadMulti
}

// RawFrame is one complete candidate frame recovered from the byte stream.
// The buffer is always exactly FrameLength bytes; partial buffers never
// escape the synchronizer. Immutable once handed downstream.
type RawFrame struct {
	Data       [FrameLength]byte
	ReceivedAt time.Time
}

// TargetSample is one decoded per-target measurement. Produced fresh each
// decode cycle and never mutated afterwards.
type TargetSample struct {
	// X is the lateral position in millimeters, signed, centered at zero.
	X int32
	// Y is the forward position in millimeters, signed.
	Y int32
	// Speed is the radial speed in sensor speed units, signed,
	// clamped to ±1000.
	Speed int32
	// Gate is the raw range-bin value, passed through unmodified.
	Gate uint16
}
