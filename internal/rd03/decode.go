package rd03

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode failure causes. Each maps to one validation step; all are
// recoverable: the caller drops the frame, counts it, and keeps scanning.
var (
	// ErrMalformedFraming indicates a header or footer byte mismatch.
	ErrMalformedFraming = errors.New("rd03: malformed frame header/footer")

	// ErrInvalidTargetCount indicates a declared target count of zero or
	// above MaxTargets.
	ErrInvalidTargetCount = errors.New("rd03: invalid target count")

	// ErrImplausiblePayload indicates the payload integrity sum was zero.
	ErrImplausiblePayload = errors.New("rd03: implausible all-zero payload")
)

// Decode validates a candidate frame and decodes it into an ordered sequence
// of target samples.
//
// Validation runs in order: framing bytes, declared target count, then a
// payload plausibility sum. The sum is a deliberately weak check: it adds the
// 24 target bytes into a 16-bit accumulator and rejects only an exact zero,
// which catches all-zero/garbage payloads (including the idle frames the
// sensor emits with no targets present) but will accept most corrupted
// frames. It is not a cryptographic or even error-detecting checksum; do not
// strengthen it without accounting for the observable drop-rate change.
//
// A declared count whose records would run past the frame end is tolerated:
// the targets that do fit are returned and the rest are ignored.
func Decode(frame *RawFrame) ([]TargetSample, error) {
	data := frame.Data[:]

	if !validHead(data[0]) || data[1] != HeadFixed ||
		data[footerOffset] != FootA || data[footerOffset+1] != FootB {
		return nil, fmt.Errorf("%w: % X ... % X", ErrMalformedFraming, data[:2], data[footerOffset:])
	}

	count := int(data[2])
	if count < 1 || count > MaxTargets {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTargetCount, count)
	}

	var sum uint16
	for _, b := range data[targetOffset:footerOffset] {
		sum += uint16(b)
	}
	if sum == 0 {
		return nil, ErrImplausiblePayload
	}

	samples := make([]TargetSample, 0, count)
	for i := 0; i < count; i++ {
		off := targetOffset + i*targetStride
		if off+targetStride > footerOffset {
			// Truncated target list: keep what decoded cleanly.
			break
		}
		samples = append(samples, TargetSample{
			X:     int32(binary.LittleEndian.Uint16(data[off:])) - xCenterOffset,
			Y:     int32(binary.LittleEndian.Uint16(data[off+2:])) - yBaseline,
			Speed: decodeSpeed(binary.LittleEndian.Uint16(data[off+4:])),
			Gate:  binary.LittleEndian.Uint16(data[off+6:]),
		})
	}
	return samples, nil
}

// decodeSpeed reverses the sensor's split speed encoding. Raw values below
// 0x8000 are direct positive magnitudes; values at or above 0x8000 encode a
// negative speed as baseline minus raw (so 0x8000 is exactly zero and
// 0x8010 is -16). This is not two's-complement: naively reinterpreting the
// raw u16 gives the wrong sign for mid-range values. The result is clamped
// to ±1000 to absorb artifacts near the baseline.
func decodeSpeed(raw uint16) int32 {
	var v int32
	if raw < speedBaseline {
		v = int32(raw)
	} else {
		v = speedBaseline - int32(raw)
	}
	if v > speedClamp {
		v = speedClamp
	} else if v < -speedClamp {
		v = -speedClamp
	}
	return v
}
