package audio

import (
	"fmt"
	"sync"
)

// BufferState is the playback state of a JitterBuffer
type BufferState int

const (
	// StateFilling means playback has not started yet, is re-priming after an underrun,
	// or has just taken the last buffered frame
	StateFilling BufferState = iota
	// StateSteady means playback is drawing frames and at least one more is buffered
	StateSteady
	// StateUnderrun means the buffer was empty the last time playback asked for a frame
	StateUnderrun
)

func (s BufferState) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateSteady:
		return "steady"
	case StateUnderrun:
		return "underrun"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// OverflowPolicy decides which frame is lost when a full buffer receives another one
type OverflowPolicy int

const (
	// DropNewest discards the incoming frame and keeps the already buffered audio intact
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the head frame to make room, favouring freshness
	DropOldest
)

// ParseOverflowPolicy maps the configuration names onto a policy
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch name {
	case "drop-newest", "":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	default:
		return DropNewest, fmt.Errorf("unknown overflow policy %q", name)
	}
}

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "drop-newest"
}

// BufferObserver is notified of underruns and overflow drops, outside the buffer lock
type BufferObserver interface {
	RecordUnderrun()
	RecordOverflow()
}

// JitterBuffer is a bounded FIFO of frames between the network receive path (Enqueue)
// and the playback path (Next). Both sides hold the lock only for a slot copy; neither
// ever waits for the other.
type JitterBuffer struct {
	slots        []Frame // ring of capacity depth
	head         int
	count        int
	depth        int
	frameSamples int
	policy       OverflowPolicy
	observer     BufferObserver

	// Playback state
	state      BufferState
	started    bool // initial priming finished
	primeTicks int  // playback requests answered with silence while frames waited

	// Counters
	enqueued  uint64
	dequeued  uint64
	underruns uint64
	overflows uint64

	mu sync.Mutex
}

// BufferStats represents jitter buffer statistics for monitoring
type BufferStats struct {
	Depth     int    `json:"depth"`
	Buffered  int    `json:"buffered"`
	State     string `json:"state"`
	Policy    string `json:"overflow_policy"`
	Enqueued  uint64 `json:"enqueued"`
	Dequeued  uint64 `json:"dequeued"`
	Underruns uint64 `json:"underruns"`
	Overflows uint64 `json:"overflows"`
}

// NewJitterBuffer creates a jitter buffer holding up to depth frames of frameSamples samples.
// The observer may be nil.
func NewJitterBuffer(depth, frameSamples int, policy OverflowPolicy, observer BufferObserver) *JitterBuffer {
	if depth < 1 {
		depth = 1
	}
	return &JitterBuffer{
		slots:        make([]Frame, depth),
		depth:        depth,
		frameSamples: frameSamples,
		policy:       policy,
		observer:     observer,
		state:        StateFilling,
	}
}

// Enqueue appends a frame at the tail. It never blocks: when the buffer is full the
// overflow policy drops one frame and the call reports false if the incoming frame
// was the one discarded.
func (b *JitterBuffer) Enqueue(frame Frame) bool {
	b.mu.Lock()

	accepted := true
	overflow := false
	if b.count == b.depth {
		overflow = true
		b.overflows++
		if b.policy == DropNewest {
			accepted = false
		} else {
			b.slots[b.head] = nil
			b.head = (b.head + 1) % b.depth
			b.count--
		}
	}

	if accepted {
		b.slots[(b.head+b.count)%b.depth] = frame
		b.count++
		b.enqueued++
		if b.state == StateUnderrun {
			b.state = StateFilling
		}
		if b.count == b.depth {
			b.started = true
		}
	}

	b.mu.Unlock()

	if overflow && b.observer != nil {
		b.observer.RecordOverflow()
	}
	return accepted
}

// Dequeue removes and returns the head frame. It reports false when the buffer is empty
// and does not touch the playback state.
func (b *JitterBuffer) Dequeue() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pop()
}

// Next returns the frame playback should emit now. During initial priming it returns
// silence until the buffer holds depth frames or frames have waited depth ticks;
// afterwards it returns the head frame as soon as one is present. An empty buffer yields
// a silence frame of the configured size and counts exactly one underrun.
func (b *JitterBuffer) Next() Frame {
	frame, underrun := b.next()
	if underrun && b.observer != nil {
		b.observer.RecordUnderrun()
	}
	if frame == nil {
		return Silence(b.frameSamples)
	}
	return frame
}

// NextInto is Next for a caller-owned buffer: the frame is copied into dst (silence on
// underrun) so the playback loop can run without allocating. It reports whether dst holds
// received audio.
func (b *JitterBuffer) NextInto(dst Frame) bool {
	frame, underrun := b.next()
	if underrun && b.observer != nil {
		b.observer.RecordUnderrun()
	}
	if frame == nil {
		clear(dst)
		return false
	}
	n := copy(dst, frame)
	clear(dst[n:])
	return true
}

func (b *JitterBuffer) next() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		b.underruns++
		b.state = StateUnderrun
		return nil, true
	}

	// Initial priming ends when the buffer reaches depth or after depth ticks of waiting,
	// so a stream shorter than depth frames is still played
	if !b.started {
		b.primeTicks++
		if b.primeTicks < b.depth {
			return nil, false
		}
		b.started = true
	}

	frame, _ := b.pop()
	if b.count > 0 {
		b.state = StateSteady
	} else {
		b.state = StateFilling
	}
	return frame, false
}

// pop must be called with the lock held
func (b *JitterBuffer) pop() (Frame, bool) {
	if b.count == 0 {
		return nil, false
	}
	frame := b.slots[b.head]
	b.slots[b.head] = nil
	b.head = (b.head + 1) % b.depth
	b.count--
	b.dequeued++
	return frame, true
}

// Len returns the number of buffered frames
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Depth returns the buffer capacity in frames
func (b *JitterBuffer) Depth() int {
	return b.depth
}

// State returns the current playback state
func (b *JitterBuffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Underruns returns how many times playback found the buffer empty
func (b *JitterBuffer) Underruns() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underruns
}

// GetStats returns current buffer statistics
func (b *JitterBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Depth:     b.depth,
		Buffered:  b.count,
		State:     b.state.String(),
		Policy:    b.policy.String(),
		Enqueued:  b.enqueued,
		Dequeued:  b.dequeued,
		Underruns: b.underruns,
		Overflows: b.overflows,
	}
}
