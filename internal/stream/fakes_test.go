package stream

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		SampleRate:  8000,
		Channels:    1,
		ChunkSize:   64,
		BufferDepth: 4,
		Overflow:    config.OverflowDropNewest,
	}
}

// numberedFrame builds a frame whose samples identify it: frame i holds i*100+1, i*100+2...
func numberedFrame(i, samples int) audio.Frame {
	frame := make(audio.Frame, samples)
	for j := range frame {
		frame[j] = int16(i*100 + j + 1)
	}
	return frame
}

func frameIndex(frame audio.Frame) int {
	return (int(frame[0]) - 1) / 100
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// fakeSource yields count numbered frames, then err (io.EOF by default)
type fakeSource struct {
	mu      sync.Mutex
	samples int
	count   int
	next    int
	err     error
	closed  bool
}

func (s *fakeSource) Capture() (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= s.count {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	frame := numberedFrame(s.next, s.samples)
	s.next++
	return frame, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recordingConn stores every datagram; errs are returned by successive sends first
type recordingConn struct {
	mu        sync.Mutex
	datagrams [][]byte
	errs      []error
	closed    bool
}

func (c *recordingConn) Send(datagram []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	c.datagrams = append(c.datagrams, append([]byte(nil), datagram...))
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.datagrams...)
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// chanConn delivers datagrams pushed into in
type chanConn struct {
	in     chan []byte
	once   sync.Once
	closed chan struct{}
}

func newChanConn() *chanConn {
	return &chanConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *chanConn) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-c.closed:
		return nil, nil, transport.ErrClosed
	case d := <-c.in:
		return d, &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 40000}, nil
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// recordingSink keeps every frame it is asked to play, pacing itself like a device
type recordingSink struct {
	mu     sync.Mutex
	frames []audio.Frame
	pace   time.Duration
	err    error
	closed bool
}

func (s *recordingSink) Play(frame audio.Frame) error {
	time.Sleep(s.pace)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame.Clone())
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) audible() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audio.Frame
	for _, f := range s.frames {
		if !f.IsSilent() {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSink) played() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
