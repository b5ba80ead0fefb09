package pipeline

import "sync"

// Stats holds the run-wide frame counters. Owned by the pipeline context and
// passed where needed rather than living as package globals, so each test
// can construct fresh state. Reset only by explicit operator action.
type Stats struct {
	mu      sync.Mutex
	valid   uint64
	dropped uint64
}

func (s *Stats) IncValid() {
	s.mu.Lock()
	s.valid++
	s.mu.Unlock()
}

func (s *Stats) IncDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *Stats) AddDropped(n uint64) {
	s.mu.Lock()
	s.dropped += n
	s.mu.Unlock()
}

// Counts returns the current valid and dropped frame counts.
func (s *Stats) Counts() (valid, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid, s.dropped
}

// SuccessRate returns the fraction of frames that decoded cleanly, or 1 when
// nothing has been seen yet.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.valid + s.dropped
	if total == 0 {
		return 1
	}
	return float64(s.valid) / float64(total)
}

// Reset zeroes both counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.valid = 0
	s.dropped = 0
	s.mu.Unlock()
}
