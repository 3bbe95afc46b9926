package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/server"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

// session is the part of stream.Sender and stream.Receiver the commands drive
type session interface {
	server.Session
	ID() string
	Start(ctx context.Context) error
	Stop() error
	Done() <-chan struct{}
	Wait() error
}

func transportOptions(cfg *config.Config) transport.Options {
	return transport.Options{
		SocketBuffer: cfg.Network.SocketBuffer,
		DSCP:         cfg.Network.DSCP,
		SendTimeout:  cfg.Network.GetSendTimeoutDuration(),
	}
}

func logConfiguration(logger *slog.Logger, role string, cfg *config.Config) {
	logger.Info("Configuration loaded",
		slog.String("role", role),
		slog.Int("sample_rate", cfg.Stream.SampleRate),
		slog.Int("channels", cfg.Stream.Channels),
		slog.Int("chunk_size", cfg.Stream.ChunkSize),
		slog.Int("frame_bytes", cfg.Stream.FrameBytes()),
		slog.Duration("chunk_duration", cfg.Stream.ChunkDuration()),
		slog.Int("port", cfg.Network.Port),
		slog.String("log_level", cfg.Logging.Level),
	)
	for _, w := range cfg.Stream.Warnings() {
		logger.Warn("Configuration warning", slog.String("warning", w))
	}
}

// runSession starts the optional status server and the session, then blocks until the
// session ends or ctx is cancelled by a signal.
func runSession(ctx context.Context, cfg *config.Config, s session, logger *slog.Logger, version string) error {
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
		httpServer = server.NewHTTPServer(addr, logger, cfg, s, version)
		if err := httpServer.Start(); err != nil {
			s.Stop()
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}()
	}

	if err := s.Start(ctx); err != nil {
		s.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping session", slog.String("session_id", s.ID()))
		return s.Stop()
	case <-s.Done():
		return s.Wait()
	}
}
