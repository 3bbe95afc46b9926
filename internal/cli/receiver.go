package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/device"
	"github.com/shehabattia96/carry-sound/internal/stream"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

// NewReceiverCommand builds the receiver's root command
func NewReceiverCommand(version string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "carry-sound-receiver",
		Short:         "Receive a UDP audio stream and play it",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listDevices {
				return printDevices(cmd.OutOrStdout())
			}

			cfg, err := opts.load(cmd.Flags(), false)
			if err != nil {
				return err
			}

			logger, closeLog := NewLogger(cfg.Logging)
			defer closeLog()
			logConfiguration(logger, stream.RoleReceiver, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := transport.Listen(ctx, cfg.Network.ListenAddress(), transportOptions(cfg), logger)
			if err != nil {
				return err
			}

			sink, err := openSink(cfg, logger)
			if err != nil {
				conn.Close()
				return err
			}

			receiver, err := stream.NewReceiver(cfg.Stream, sink, conn, cfg.Logging.GetStatsIntervalDuration(), logger)
			if err != nil {
				sink.Close()
				conn.Close()
				return err
			}

			logger.Info("Listening for audio",
				slog.String("session_id", receiver.ID()),
				slog.String("address", conn.LocalAddr().String()),
				slog.Duration("buffer_latency", cfg.Stream.BufferLatency()),
			)
			return runSession(ctx, cfg, receiver, logger, version)
		},
	}

	opts.addReceiver(cmd.Flags())
	return cmd
}

func openSink(cfg *config.Config, logger *slog.Logger) (audio.Sink, error) {
	if cfg.Device.OutputFile != "" {
		sink, err := audio.NewWAVSink(cfg.Device.OutputFile,
			cfg.Stream.SampleRate, cfg.Stream.Channels, cfg.Stream.ChunkSize,
			cfg.Stream.ChunkDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to open output file: %w", err)
		}
		logger.Info("Audio sink is a WAV file", slog.String("path", cfg.Device.OutputFile))
		return sink, nil
	}

	output, err := device.OpenOutput(device.Params{
		Device:     cfg.Device.Output,
		SampleRate: cfg.Stream.SampleRate,
		Channels:   cfg.Stream.Channels,
		ChunkSize:  cfg.Stream.ChunkSize,
		Latency:    cfg.Device.Latency,
	}, logger)
	if err != nil {
		return nil, err
	}
	return output, nil
}
