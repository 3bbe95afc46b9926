package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/protocol"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

// chunkedSource is implemented by sources that cut a sample stream into frames
type chunkedSource interface {
	GetStats() audio.ChunkerStats
}

// Sender captures frames from an audio source and sends each one as a datagram
type Sender struct {
	*session

	cfg        config.StreamConfig
	source     audio.Source
	conn       DatagramSender
	packetizer *protocol.Packetizer

	// Transient send failures are logged at most once per second
	sendErrLog rate.Sometimes
}

// NewSender creates a sender session. It takes ownership of source and conn: both are
// closed when the session ends, or by Stop if it never starts.
func NewSender(cfg config.StreamConfig, source audio.Source, conn DatagramSender, statsInterval time.Duration, logger *slog.Logger) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sender{
		session:    newSession(RoleSender, logger, statsInterval),
		cfg:        cfg,
		source:     source,
		conn:       conn,
		packetizer: protocol.NewPacketizer(cfg.FrameSamples()),
		sendErrLog: rate.Sometimes{Interval: time.Second},
	}
	s.release = func() error {
		return errors.Join(s.source.Close(), s.conn.Close())
	}
	return s, nil
}

// Start launches the capture loop. It returns immediately; use Wait or Done to learn
// when the session ends.
func (s *Sender) Start(ctx context.Context) error {
	if err := s.run(ctx, s.captureLoop); err != nil {
		return err
	}

	s.logger.Info("Sender started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("channels", s.cfg.Channels),
		slog.Int("chunk_size", s.cfg.ChunkSize),
		slog.Int("datagram_size", s.packetizer.DatagramSize()),
		slog.Duration("chunk_duration", s.cfg.ChunkDuration()),
	)
	return nil
}

// GetSessionInfo returns the session's current state
func (s *Sender) GetSessionInfo() SessionInfo {
	return s.info()
}

// captureLoop is paced by the source: each Capture blocks until a full frame exists
func (s *Sender) captureLoop(ctx context.Context) error {
	datagram := make([]byte, s.packetizer.DatagramSize())

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.source.Capture()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logSourceStats()
				s.logger.Info("Audio source exhausted, ending session")
				s.cancel()
				return nil
			}
			return fmt.Errorf("capture failed: %w", err)
		}

		datagram, err = s.packetizer.PackInto(datagram, frame)
		if err != nil {
			return fmt.Errorf("source returned a bad frame: %w", err)
		}

		start := time.Now()
		err = s.conn.Send(datagram)
		s.metrics.ObserveSend(time.Since(start).Seconds())

		switch {
		case err == nil:
			s.stats.AddBytesSent(len(datagram))
		case errors.Is(err, transport.ErrSendBlocked):
			return err
		case errors.Is(err, transport.ErrClosed):
			return nil
		default:
			s.stats.RecordSendError()
			s.sendErrLog.Do(func() {
				s.logger.Warn("Failed to send datagram",
					slog.String("error", err.Error()),
					slog.Uint64("send_errors", s.stats.Snapshot().SendErrors),
				)
			})
		}
	}
}

func (s *Sender) logSourceStats() {
	src, ok := s.source.(chunkedSource)
	if !ok {
		return
	}
	stats := src.GetStats()
	s.logger.Info("Audio source statistics",
		slog.Uint64("samples_in", stats.SamplesIn),
		slog.Uint64("frames_out", stats.FramesOut),
		slog.Uint64("padded_frames", stats.PaddedFrames),
	)
}
