package rd03

import (
	"bytes"
	"testing"
	"time"
)

// feedAll pushes a byte slice through the synchronizer and collects any
// frames emitted along the way.
func feedAll(s *FrameSync, data []byte, now time.Time) []*RawFrame {
	var frames []*RawFrame
	for _, b := range data {
		if f := s.Feed(b, now); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

func validFrameBytes() []byte {
	frame := buildFrame(HeadSingle, 1, encodeTarget(100, 1200, 24, 4))
	return frame.Data[:]
}

func TestSyncEmitsCleanFrame(t *testing.T) {
	s := NewFrameSync()
	now := time.Now()

	frames := feedAll(s, validFrameBytes(), now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Data[:], validFrameBytes()) {
		t.Errorf("emitted frame does not match input bytes")
	}
	if s.Dropped != 0 {
		t.Errorf("expected 0 dropped frames, got %d", s.Dropped)
	}
}

func TestSyncRecoversAfterGarbage(t *testing.T) {
	s := NewFrameSync()
	now := time.Now()

	// Garbage includes a stray header mark followed by a non-matching byte,
	// which must abort back to seeking without poisoning later sync.
	garbage := []byte{0x00, 0x13, 0x37, HeadSingle, 0x99, 0x55, 0xCC, 0xFF}
	input := append(garbage, validFrameBytes()...)

	frames := feedAll(s, input, now)
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 frame after garbage, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Data[:], validFrameBytes()) {
		t.Errorf("recovered frame corrupted by preceding garbage")
	}
	if s.Dropped != 0 {
		t.Errorf("ordinary resync must not count as dropped, got %d", s.Dropped)
	}
}

func TestSyncBackToBackFrames(t *testing.T) {
	s := NewFrameSync()
	now := time.Now()

	input := append(validFrameBytes(), validFrameBytes()...)
	frames := feedAll(s, input, now)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestSyncTimeoutDropsPartialFrame(t *testing.T) {
	s := NewFrameSync()
	start := time.Now()

	// Half a frame, then silence.
	partial := validFrameBytes()[:14]
	feedAll(s, partial, start)
	if s.Pending() != 14 {
		t.Fatalf("expected 14 pending bytes, got %d", s.Pending())
	}

	// Within the timeout the partial frame survives.
	if s.CheckTimeout(start.Add(50 * time.Millisecond)) {
		t.Error("frame dropped before timeout elapsed")
	}

	if !s.CheckTimeout(start.Add(150 * time.Millisecond)) {
		t.Fatal("expected timeout to drop the partial frame")
	}
	if s.Dropped != 1 {
		t.Errorf("expected dropped counter of exactly 1, got %d", s.Dropped)
	}
	if s.Pending() != 0 {
		t.Errorf("expected empty buffer after timeout, got %d pending", s.Pending())
	}

	// Synchronizer must be ready for the next header immediately.
	frames := feedAll(s, validFrameBytes(), start.Add(200*time.Millisecond))
	if len(frames) != 1 {
		t.Fatalf("expected resync after timeout, got %d frames", len(frames))
	}
}

func TestSyncTimeoutIdleWhileSeeking(t *testing.T) {
	s := NewFrameSync()
	if s.CheckTimeout(time.Now().Add(time.Hour)) {
		t.Error("timeout must not fire while no frame is in progress")
	}
	if s.Dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", s.Dropped)
	}
}

func TestSyncSecondMarkMismatchNotReconsidered(t *testing.T) {
	s := NewFrameSync()
	now := time.Now()

	// HeadSingle followed by HeadSingle: the second byte fails the fixed
	// mark check and is dropped, not treated as a fresh first mark.
	s.Feed(HeadSingle, now)
	s.Feed(HeadSingle, now)
	if s.Pending() != 0 {
		t.Fatalf("expected synchronizer back at seeking, %d pending", s.Pending())
	}

	// A full frame afterwards still syncs.
	frames := feedAll(s, validFrameBytes(), now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}
