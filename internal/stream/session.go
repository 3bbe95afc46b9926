package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/metrics"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned by Wait on a session that was never started
	ErrNotStarted = errors.New("session not started")
)

// DatagramSender is the sending half of the transport
type DatagramSender interface {
	Send(datagram []byte) error
	Close() error
}

// DatagramReceiver is the receiving half of the transport
type DatagramReceiver interface {
	Receive(ctx context.Context) ([]byte, net.Addr, error)
	Close() error
}

// Role names used in logs and metric labels
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// SessionInfo is a point-in-time view of a session for monitoring
type SessionInfo struct {
	ID             string             `json:"id"`
	Role           string             `json:"role"`
	StartTime      time.Time          `json:"start_time"`
	Uptime         string             `json:"uptime"`
	Running        bool               `json:"running"`
	Stats          metrics.Snapshot   `json:"stats"`
	Buffer         *audio.BufferStats `json:"jitter_buffer,omitempty"`
	LatencySeconds float64            `json:"buffer_latency_seconds,omitempty"`
}

// session holds the lifecycle shared by Sender and Receiver
type session struct {
	id            string
	role          string
	logger        *slog.Logger
	stats         *metrics.StreamStats
	metrics       *metrics.Metrics
	statsInterval time.Duration

	// release closes everything the session owns; it runs exactly once
	release     func() error
	releaseOnce sync.Once
	releaseErr  error

	mu        sync.Mutex
	startTime time.Time
	started   bool
	cancel    context.CancelFunc
	running   atomic.Bool
	done      chan struct{}
	err       error
}

func newSession(role string, logger *slog.Logger, statsInterval time.Duration) *session {
	id := xid.New().String()
	stats := metrics.NewStreamStats()
	return &session{
		id:            id,
		role:          role,
		logger:        logger.With(slog.String("session_id", id), slog.String("role", role)),
		stats:         stats,
		metrics:       metrics.NewMetrics(stats, role),
		statsInterval: statsInterval,
		done:          make(chan struct{}),
	}
}

// run starts every loop in one errgroup. The first loop to fail cancels the others;
// once all have returned the session releases its resources and logs final statistics.
func (s *session) run(ctx context.Context, loops ...func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		loop := loop
		g.Go(func() error { return loop(gctx) })
	}
	if s.statsInterval > 0 {
		g.Go(func() error { return s.statsLoop(gctx) })
	}

	s.startTime = time.Now()
	s.running.Store(true)

	go func() {
		err := g.Wait()
		s.cancel()
		s.running.Store(false)

		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			s.logger.Error("Session failed", slog.String("error", err.Error()))
		}

		s.err = errors.Join(err, s.close())
		s.logFinalStats()
		close(s.done)
	}()

	return nil
}

func (s *session) close() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.release()
		if s.releaseErr != nil {
			s.logger.Warn("Error releasing session resources", slog.String("error", s.releaseErr.Error()))
		}
	})
	return s.releaseErr
}

// Stop ends the session and waits for its loops to return. A session that was never
// started just releases its resources.
func (s *session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.cancel = func() {}
		s.err = s.close()
		close(s.done)
		s.mu.Unlock()
		return s.err
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
	return s.err
}

// Wait blocks until the session ends by itself, by Stop or by a fatal error, and returns
// that error. A clean end returns nil.
func (s *session) Wait() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	<-s.done
	return s.err
}

// Done is closed once the session has ended and released its resources
func (s *session) Done() <-chan struct{} {
	return s.done
}

// ID returns the session's unique identifier
func (s *session) ID() string {
	return s.id
}

// Stats returns the live counters
func (s *session) Stats() *metrics.StreamStats {
	return s.stats
}

// Metrics returns the session's Prometheus metrics and registry
func (s *session) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	startTime := s.startTime
	s.mu.Unlock()

	info := SessionInfo{
		ID:      s.id,
		Role:    s.role,
		Running: s.running.Load(),
		Stats:   s.stats.Snapshot(),
	}
	if !startTime.IsZero() {
		info.StartTime = startTime
		info.Uptime = time.Since(startTime).Truncate(time.Millisecond).String()
	}
	return info
}

func (s *session) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := s.stats.Snapshot()
			s.logger.Info("Stream statistics",
				slog.Uint64("frames_sent", snap.FramesSent),
				slog.Uint64("bytes_sent", snap.BytesSent),
				slog.Uint64("frames_received", snap.FramesReceived),
				slog.Uint64("bytes_received", snap.BytesReceived),
				slog.Uint64("underruns", snap.Underruns),
				slog.Uint64("overflow_drops", snap.Overflows),
				slog.Uint64("datagrams_discarded", snap.DatagramsDiscarded),
				slog.Uint64("send_errors", snap.SendErrors),
			)
		}
	}
}

func (s *session) logFinalStats() {
	snap := s.stats.Snapshot()
	avgSent, avgReceived := snap.AverageFrameBytes()

	attrs := []any{slog.Duration("duration", time.Since(s.startTime).Truncate(time.Millisecond))}
	switch s.role {
	case RoleSender:
		attrs = append(attrs,
			slog.Uint64("chunks_sent", snap.FramesSent),
			slog.Uint64("bytes_sent", snap.BytesSent),
			slog.Uint64("avg_chunk_size", avgSent),
			slog.Uint64("send_errors", snap.SendErrors),
		)
	case RoleReceiver:
		attrs = append(attrs,
			slog.Uint64("chunks_received", snap.FramesReceived),
			slog.Uint64("bytes_received", snap.BytesReceived),
			slog.Uint64("avg_chunk_size", avgReceived),
			slog.Uint64("underruns", snap.Underruns),
			slog.Uint64("overflow_drops", snap.Overflows),
			slog.Uint64("datagrams_discarded", snap.DatagramsDiscarded),
		)
	}
	s.logger.Info("Final stream statistics", attrs...)
}
