package rd03

import "time"

// syncState is the frame recovery state.
type syncState int

const (
	seekFirstMark syncState = iota
	seekSecondMark
	collecting
)

// FrameSync recovers frame boundaries from an unsynchronized byte stream.
// It consumes one byte at a time and emits complete 30-byte candidate
// frames. A frame timer guards against permanent desynchronization when the
// stream stalls mid-frame.
//
// FrameSync does no I/O and keeps no clock of its own: callers supply the
// current time with each byte, which keeps timeout behavior deterministic
// under test.
type FrameSync struct {
	state   syncState
	buf     [FrameLength]byte
	n       int
	started time.Time // when the current frame's first mark was seen

	// Timeout is the maximum time allowed between seeing a header mark and
	// completing the frame.
	Timeout time.Duration

	// Dropped counts frames abandoned by timeout or overflow. Ordinary
	// resync on a non-matching byte is not an error and is not counted.
	Dropped uint64
}

// DefaultFrameTimeout bounds how long a partially collected frame may sit
// before the synchronizer abandons it.
const DefaultFrameTimeout = 100 * time.Millisecond

// NewFrameSync returns a synchronizer with the default frame timeout.
func NewFrameSync() *FrameSync {
	return &FrameSync{Timeout: DefaultFrameTimeout}
}

// Feed consumes one byte from the stream. When the byte completes a frame,
// Feed returns it; otherwise it returns nil.
func (s *FrameSync) Feed(b byte, now time.Time) *RawFrame {
	switch s.state {
	case seekFirstMark:
		if validHead(b) {
			s.buf[0] = b
			s.n = 1
			s.started = now
			s.state = seekSecondMark
		}
		// anything else is inter-frame noise; discard silently

	case seekSecondMark:
		if b != HeadFixed {
			// The failed byte is dropped, not reconsidered as a new
			// first mark: a real header never contains one.
			s.reset()
			return nil
		}
		s.buf[1] = b
		s.n = 2
		s.state = collecting

	case collecting:
		if s.n >= FrameLength {
			// Should be unreachable: the frame is emitted the moment it
			// fills. Treat as corruption.
			s.abort()
			return nil
		}
		s.buf[s.n] = b
		s.n++
		if s.n == FrameLength {
			frame := &RawFrame{Data: s.buf, ReceivedAt: now}
			s.reset()
			return frame
		}
	}
	return nil
}

// CheckTimeout abandons a stale in-progress frame. It is evaluated from the
// poll loop independently of byte arrival, so a stalled stream cannot wedge
// the synchronizer mid-frame. Returns true when a frame was dropped.
func (s *FrameSync) CheckTimeout(now time.Time) bool {
	if s.state == seekFirstMark {
		return false
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultFrameTimeout
	}
	if now.Sub(s.started) <= timeout {
		return false
	}
	s.abort()
	return true
}

// Pending reports how many bytes of an in-progress frame have been
// collected. Zero while seeking.
func (s *FrameSync) Pending() int {
	if s.state == seekFirstMark {
		return 0
	}
	return s.n
}

func (s *FrameSync) reset() {
	s.state = seekFirstMark
	s.n = 0
}

func (s *FrameSync) abort() {
	s.Dropped++
	s.reset()
}
