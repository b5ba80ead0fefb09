// Package pipeline wires the decode chain together: it drains available
// serial bytes through the frame synchronizer, decoder, and tracker, then
// offers throttled reports to downstream sinks. One Poll call is one pass of
// the single logical control thread; nothing in here blocks waiting for
// input.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/rd03"
	"github.com/banshee-data/presence.report/internal/track"
)

// DefaultMaxFramesPerCycle bounds complete frames handled per poll so the
// loop yields to cooperating goroutines (HTTP serving, signal handling)
// under sustained input.
const DefaultMaxFramesPerCycle = 5

// Options are the pipeline's runtime-tunable knobs. They may be replaced
// while the pipeline is running; the state machine carries on without a
// restart.
type Options struct {
	// Mode selects single- or multi-target attribution per cycle.
	Mode track.Mode
	// MaxFramesPerCycle bounds frames handled per Poll. Zero means
	// DefaultMaxFramesPerCycle.
	MaxFramesPerCycle int
	// OutputInterval is the report throttle window. Zero means
	// DefaultOutputInterval.
	OutputInterval time.Duration
	// FrameTimeout bounds how long a partial frame may sit in the
	// synchronizer. Zero means rd03.DefaultFrameTimeout.
	FrameTimeout time.Duration
}

// Pipeline owns the per-run processing state: synchronizer, tracker,
// emitter, and statistics. All frame processing happens on whichever single
// goroutine calls Poll; the internal mutex only serializes config updates
// and report reads against it.
type Pipeline struct {
	mu      sync.Mutex
	opts    Options
	sync    *rd03.FrameSync
	tracker *track.Tracker
	emitter *Emitter
	source  ByteSource
	stats   *Stats

	// pending marks tracker changes not yet emitted (throttled or new).
	pending bool

	// syncDropsSeen mirrors the synchronizer's abort count into stats.
	syncDropsSeen uint64

	lastReport    track.Report
	hasReport     bool
	lastSweep     time.Time
	decodeFailLog int
}

// New assembles a pipeline over the given byte source.
func New(source ByteSource, tracker *track.Tracker, emitter *Emitter, stats *Stats, opts Options) *Pipeline {
	fs := rd03.NewFrameSync()
	if opts.FrameTimeout > 0 {
		fs.Timeout = opts.FrameTimeout
	}
	if emitter.MinInterval == 0 && opts.OutputInterval > 0 {
		emitter.MinInterval = opts.OutputInterval
	}
	return &Pipeline{
		opts:    opts,
		sync:    fs,
		tracker: tracker,
		emitter: emitter,
		source:  source,
		stats:   stats,
	}
}

// Tracker returns the pipeline's tracker for configuration updates.
func (p *Pipeline) Tracker() *track.Tracker { return p.tracker }

// Stats returns the pipeline's frame counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// SetOptions replaces the runtime options. Changing the mode mid-run may
// cause transient slot churn, which is expected and harmless.
func (p *Pipeline) SetOptions(opts Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = opts
	if opts.FrameTimeout > 0 {
		p.sync.Timeout = opts.FrameTimeout
	}
	if opts.OutputInterval > 0 {
		p.emitter.MinInterval = opts.OutputInterval
	}
}

// Options returns the current runtime options.
func (p *Pipeline) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// Poll runs one pass: evaluate the frame timeout, drain available bytes into
// frames (bounded per cycle), decode and track them, run the expiry sweep,
// and offer a snapshot to the emitter when anything changed. Returns the
// number of complete frames handled.
func (p *Pipeline) Poll(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Timeout guard runs independently of byte arrival.
	p.sync.CheckTimeout(now)

	maxFrames := p.opts.MaxFramesPerCycle
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFramesPerCycle
	}

	frames := 0
	for frames < maxFrames {
		b, ok := p.source.ReadByte()
		if !ok {
			break
		}
		frame := p.sync.Feed(b, now)
		if frame == nil {
			continue
		}
		frames++
		p.handleFrame(frame, now)
	}

	// Mirror synchronizer aborts (timeout/overflow) into the run counters.
	if d := p.sync.Dropped; d > p.syncDropsSeen {
		p.stats.AddDropped(d - p.syncDropsSeen)
		p.syncDropsSeen = d
	}

	if p.tracker.Sweep(now) {
		p.pending = true
	}

	if p.pending {
		valid, dropped := p.stats.Counts()
		report := p.tracker.Snapshot(now, valid, dropped)
		if p.emitter.Offer(report, now) {
			p.lastReport = report
			p.hasReport = true
			p.pending = false
		}
	}
	return frames
}

// handleFrame decodes one candidate frame and feeds the tracker. Decode
// failures are local: count, log sparsely, continue scanning.
func (p *Pipeline) handleFrame(frame *rd03.RawFrame, now time.Time) {
	samples, err := rd03.Decode(frame)
	if err != nil {
		p.stats.IncDropped()
		// Idle frames (all-zero payload) arrive continuously when the room
		// is empty; don't let them flood the log.
		if !errors.Is(err, rd03.ErrImplausiblePayload) {
			p.decodeFailLog++
			if p.decodeFailLog <= 10 || p.decodeFailLog%100 == 0 {
				monitoring.Logf("frame dropped (%d so far): %v", p.decodeFailLog, err)
			}
		}
		return
	}
	p.stats.IncValid()

	if p.tracker.Update(samples, p.opts.Mode, now) {
		p.pending = true
	}
}

// LatestReport returns the most recently emitted report, if any.
func (p *Pipeline) LatestReport() (track.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReport, p.hasReport
}
