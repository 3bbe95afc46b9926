package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/protocol"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

// Receiver turns incoming datagrams into frames, holds them in a jitter buffer and
// plays them out at the sink's pace. Gaps are filled with silence.
type Receiver struct {
	*session

	cfg          config.StreamConfig
	sink         audio.Sink
	conn         DatagramReceiver
	buffer       *audio.JitterBuffer
	depacketizer *protocol.Depacketizer

	discardLog rate.Sometimes
	receiveLog rate.Sometimes
}

// NewReceiver creates a receiver session. It takes ownership of sink and conn: both are
// closed when the session ends, or by Stop if it never starts.
func NewReceiver(cfg config.StreamConfig, sink audio.Sink, conn DatagramReceiver, statsInterval time.Duration, logger *slog.Logger) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := audio.ParseOverflowPolicy(cfg.Overflow)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		session:    newSession(RoleReceiver, logger, statsInterval),
		cfg:        cfg,
		sink:       sink,
		conn:       conn,
		discardLog: rate.Sometimes{Interval: time.Second},
		receiveLog: rate.Sometimes{Interval: time.Second},
	}
	r.buffer = audio.NewJitterBuffer(cfg.BufferDepth, cfg.FrameSamples(), policy, r.stats)
	r.depacketizer = protocol.NewDepacketizer(cfg.FrameSamples(), r.stats)
	r.metrics.SetBufferLatency(cfg.BufferLatencySeconds())
	r.release = func() error {
		return errors.Join(r.conn.Close(), r.sink.Close())
	}
	return r, nil
}

// Start launches the receive and playback loops
func (r *Receiver) Start(ctx context.Context) error {
	if err := r.run(ctx, r.receiveLoop, r.playbackLoop); err != nil {
		return err
	}

	r.logger.Info("Receiver started",
		slog.Int("sample_rate", r.cfg.SampleRate),
		slog.Int("channels", r.cfg.Channels),
		slog.Int("chunk_size", r.cfg.ChunkSize),
		slog.Int("buffer_depth", r.cfg.BufferDepth),
		slog.String("overflow_policy", r.cfg.Overflow),
		slog.Duration("buffer_latency", r.cfg.BufferLatency()),
	)
	return nil
}

// Buffer exposes the jitter buffer for monitoring
func (r *Receiver) Buffer() *audio.JitterBuffer {
	return r.buffer
}

// GetSessionInfo returns the session's current state including the jitter buffer
func (r *Receiver) GetSessionInfo() SessionInfo {
	info := r.info()
	bs := r.buffer.GetStats()
	info.Buffer = &bs
	info.LatencySeconds = r.cfg.BufferLatencySeconds()
	return info
}

// receiveLoop blocks on the socket and never on the playback path
func (r *Receiver) receiveLoop(ctx context.Context) error {
	var peer string

	for {
		datagram, from, err := r.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			r.receiveLog.Do(func() {
				r.logger.Warn("Failed to receive datagram", slog.String("error", err.Error()))
			})
			continue
		}

		frame, err := r.depacketizer.Unpack(datagram)
		if err != nil {
			r.discardLog.Do(func() {
				r.logger.Debug("Discarded datagram",
					slog.Int("size", len(datagram)),
					slog.Int("expected_size", r.depacketizer.DatagramSize()),
					slog.Uint64("datagrams_discarded", r.stats.Snapshot().DatagramsDiscarded),
				)
			})
			continue
		}

		if addr := addrString(from); addr != peer {
			r.logger.Info("Receiving audio", slog.String("remote_address", addr))
			peer = addr
		}

		r.buffer.Enqueue(frame)
		r.metrics.SetJitterBufferFrames(r.buffer.Len())
	}
}

// playbackLoop is paced by the sink. It plays buffered frames and silence whenever the
// buffer has nothing to give.
func (r *Receiver) playbackLoop(ctx context.Context) error {
	frame := audio.Silence(r.cfg.FrameSamples())
	lastState := r.buffer.State()

	for {
		if ctx.Err() != nil {
			return nil
		}

		r.buffer.NextInto(frame)
		r.metrics.SetJitterBufferFrames(r.buffer.Len())

		if state := r.buffer.State(); state != lastState {
			r.logger.Debug("Jitter buffer state changed",
				slog.String("from", lastState.String()),
				slog.String("to", state.String()),
				slog.Uint64("underruns", r.buffer.Underruns()),
			)
			lastState = state
		}

		if err := r.sink.Play(frame); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
