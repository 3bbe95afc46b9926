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

// NewSenderCommand builds the sender's root command
func NewSenderCommand(version string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "carry-sound-sender",
		Short:         "Capture audio and stream it over UDP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listDevices {
				return printDevices(cmd.OutOrStdout())
			}

			cfg, err := opts.load(cmd.Flags(), true)
			if err != nil {
				return err
			}

			logger, closeLog := NewLogger(cfg.Logging)
			defer closeLog()
			logConfiguration(logger, stream.RoleSender, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source, err := openSource(cfg, logger)
			if err != nil {
				return err
			}

			conn, err := transport.Dial(ctx, cfg.Network.TargetAddress(), transportOptions(cfg), logger)
			if err != nil {
				source.Close()
				return err
			}

			sender, err := stream.NewSender(cfg.Stream, source, conn, cfg.Logging.GetStatsIntervalDuration(), logger)
			if err != nil {
				source.Close()
				conn.Close()
				return err
			}

			logger.Info("Streaming",
				slog.String("session_id", sender.ID()),
				slog.String("target", cfg.Network.TargetAddress()),
			)
			return runSession(ctx, cfg, sender, logger, version)
		},
	}

	opts.addSender(cmd.Flags())
	return cmd
}

func openSource(cfg *config.Config, logger *slog.Logger) (audio.Source, error) {
	if cfg.Device.InputFile != "" {
		source, err := audio.NewWAVSource(cfg.Device.InputFile,
			cfg.Stream.SampleRate, cfg.Stream.Channels, cfg.Stream.ChunkSize,
			cfg.Stream.ChunkDuration(), cfg.Device.Loop)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		logger.Info("Audio source is a WAV file",
			slog.String("path", cfg.Device.InputFile),
			slog.Bool("loop", cfg.Device.Loop),
		)
		return source, nil
	}

	input, err := device.OpenInput(device.Params{
		Device:     cfg.Device.Input,
		SampleRate: cfg.Stream.SampleRate,
		Channels:   cfg.Stream.Channels,
		ChunkSize:  cfg.Stream.ChunkSize,
		Latency:    cfg.Device.Latency,
	}, logger)
	if err != nil {
		return nil, err
	}
	return input, nil
}
