package rd03

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTarget packs one 8-byte target record with the on-wire offset
// conventions so tests can express positions and speeds in natural units.
func encodeTarget(x, y, speed int32, gate uint16) [targetStride]byte {
	var rawSpeed uint16
	if speed >= 0 {
		rawSpeed = uint16(speed)
	} else {
		rawSpeed = uint16(speedBaseline - speed)
	}

	var rec [targetStride]byte
	binary.LittleEndian.PutUint16(rec[0:], uint16(x+xCenterOffset))
	binary.LittleEndian.PutUint16(rec[2:], uint16(int32(yBaseline)+y))
	binary.LittleEndian.PutUint16(rec[4:], rawSpeed)
	binary.LittleEndian.PutUint16(rec[6:], gate)
	return rec
}

// buildFrame assembles a complete 30-byte frame around the given records.
func buildFrame(head byte, count byte, targets ...[targetStride]byte) *RawFrame {
	f := &RawFrame{ReceivedAt: time.Now()}
	f.Data[0] = head
	f.Data[1] = HeadFixed
	f.Data[2] = count
	for i, rec := range targets {
		copy(f.Data[targetOffset+i*targetStride:], rec[:])
	}
	f.Data[footerOffset] = FootA
	f.Data[footerOffset+1] = FootB
	return f
}

func TestDecodeSingleTarget(t *testing.T) {
	frame := buildFrame(HeadSingle, 1, encodeTarget(-120, 1500, 32, 7))

	samples, err := Decode(frame)
	require.NoError(t, err)
	require.Len(t, samples, 1)

	want := TargetSample{X: -120, Y: 1500, Speed: 32, Gate: 7}
	if diff := cmp.Diff(want, samples[0]); diff != "" {
		t.Errorf("decoded sample mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMultiTarget(t *testing.T) {
	frame := buildFrame(HeadMulti, 3,
		encodeTarget(0, 800, -12, 2),
		encodeTarget(350, 2200, 0, 5),
		encodeTarget(-90, 410, 250, 1),
	)

	samples, err := Decode(frame)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, int32(800), samples[0].Y)
	assert.Equal(t, int32(-12), samples[0].Speed)
	assert.Equal(t, int32(350), samples[1].X)
	assert.Equal(t, int32(250), samples[2].Speed)
	assert.Equal(t, uint16(5), samples[1].Gate)
}

func TestDecodeIdempotent(t *testing.T) {
	frame := buildFrame(HeadMulti, 2,
		encodeTarget(40, 900, 16, 3),
		encodeTarget(-200, 1800, -40, 6),
	)

	first, err := Decode(frame)
	require.NoError(t, err)
	second, err := Decode(frame)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated decode differs (-first +second):\n%s", diff)
	}
}

func TestDecodeFramingErrors(t *testing.T) {
	t.Run("bad head byte", func(t *testing.T) {
		frame := buildFrame(0x00, 1, encodeTarget(0, 500, 1, 1))
		frame.Data[0] = 0x42
		_, err := Decode(frame)
		assert.ErrorIs(t, err, ErrMalformedFraming)
	})

	t.Run("bad second head byte", func(t *testing.T) {
		frame := buildFrame(HeadSingle, 1, encodeTarget(0, 500, 1, 1))
		frame.Data[1] = 0xFE
		_, err := Decode(frame)
		assert.ErrorIs(t, err, ErrMalformedFraming)
	})

	t.Run("bad footer", func(t *testing.T) {
		frame := buildFrame(HeadSingle, 1, encodeTarget(0, 500, 1, 1))
		frame.Data[footerOffset+1] = 0x00
		_, err := Decode(frame)
		assert.ErrorIs(t, err, ErrMalformedFraming)
	})
}

func TestDecodeTargetCountErrors(t *testing.T) {
	for _, count := range []byte{0, 4, 0xFF} {
		frame := buildFrame(HeadMulti, count, encodeTarget(0, 500, 1, 1))
		_, err := Decode(frame)
		if !errors.Is(err, ErrInvalidTargetCount) {
			t.Errorf("count %d: expected ErrInvalidTargetCount, got %v", count, err)
		}
	}
}

func TestDecodeImplausiblePayload(t *testing.T) {
	// A structurally valid frame whose target bytes are all zero is the
	// sensor's idle output; it must be rejected, not decoded as a target
	// sitting at the encoding baselines.
	frame := &RawFrame{}
	frame.Data[0] = HeadSingle
	frame.Data[1] = HeadFixed
	frame.Data[2] = 1
	frame.Data[footerOffset] = FootA
	frame.Data[footerOffset+1] = FootB

	_, err := Decode(frame)
	assert.ErrorIs(t, err, ErrImplausiblePayload)
}

func TestDecodeSpeedBoundaries(t *testing.T) {
	// The split mapping around 0x8000 is the protocol's reverse-engineered
	// contract: 0x8000 is zero, values above it count negative.
	cases := []struct {
		raw  uint16
		want int32
	}{
		{0x0000, 0},
		{0x0010, 16},
		{0x8000, 0},
		{0x8010, -16},
		{0x7FFF, 1000},  // clamp positive
		{0xFFFF, -1000}, // clamp negative
		{0x03E8, 1000},  // exactly at clamp
		{0x83E9, -1000},
	}
	for _, tc := range cases {
		if got := decodeSpeed(tc.raw); got != tc.want {
			t.Errorf("decodeSpeed(0x%04X) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestModeCommand(t *testing.T) {
	assert.Equal(t, CmdMultiTarget, ModeCommand(true))
	assert.Equal(t, CmdSingleTarget, ModeCommand(false))
	assert.Len(t, ModeCommand(true), 12)
	assert.Len(t, ModeCommand(false), 12)
}
