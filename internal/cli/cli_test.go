package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/device"
)

func parseOptions(t *testing.T, sender bool, args ...string) (*config.Config, error) {
	t.Helper()
	opts := &options{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if sender {
		opts.addSender(fs)
	} else {
		opts.addReceiver(fs)
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return opts.load(fs, sender)
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
stream:
  sample_rate: 48000
  chunk_size: 256
network:
  port: 6000
  host: 10.0.0.2
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := parseOptions(t, true, "--config", path, "--port", "7000", "--channels", "1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Network.Port != 7000 {
		t.Errorf("Expected flag port 7000, got %d", cfg.Network.Port)
	}
	if cfg.Stream.Channels != 1 {
		t.Errorf("Expected flag channels 1, got %d", cfg.Stream.Channels)
	}
	if cfg.Stream.SampleRate != 48000 {
		t.Errorf("Expected file sample rate 48000 to survive, got %d", cfg.Stream.SampleRate)
	}
	if cfg.Stream.ChunkSize != 256 {
		t.Errorf("Expected file chunk size 256 to survive, got %d", cfg.Stream.ChunkSize)
	}
	if cfg.Network.Host != "10.0.0.2" {
		t.Errorf("Expected file host to survive, got %q", cfg.Network.Host)
	}
}

func TestReceiverFlags(t *testing.T) {
	cfg, err := parseOptions(t, false,
		"--buffer-size", "4", "--overflow", "drop-oldest", "--device", "3",
		"--output", "out.wav", "--http-addr", ":9191", "--stats-interval", "5")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Stream.BufferDepth != 4 {
		t.Errorf("Expected buffer depth 4, got %d", cfg.Stream.BufferDepth)
	}
	if cfg.Stream.Overflow != config.OverflowDropOldest {
		t.Errorf("Expected drop-oldest, got %q", cfg.Stream.Overflow)
	}
	if cfg.Device.Output != 3 || cfg.Device.Input != -1 {
		t.Errorf("Expected --device to select the output only, got in=%d out=%d", cfg.Device.Input, cfg.Device.Output)
	}
	if cfg.Device.OutputFile != "out.wav" {
		t.Errorf("Expected output file out.wav, got %q", cfg.Device.OutputFile)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Address != "0.0.0.0" || cfg.HTTP.Port != 9191 {
		t.Errorf("Expected HTTP on 0.0.0.0:9191, got enabled=%v %s:%d", cfg.HTTP.Enabled, cfg.HTTP.Address, cfg.HTTP.Port)
	}
	if cfg.Logging.GetStatsIntervalDuration() != 5*time.Second {
		t.Errorf("Expected stats interval 5s, got %v", cfg.Logging.GetStatsIntervalDuration())
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "three channels", args: []string{"--channels", "3"}},
		{name: "zero buffer", args: []string{"--buffer-size", "0"}},
		{name: "bad overflow policy", args: []string{"--overflow", "overwrite"}},
		{name: "port out of range", args: []string{"--port", "70000"}},
		{name: "oversized frame", args: []string{"--chunk-size", "20000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseOptions(t, false, tt.args...); !errors.Is(err, config.ErrInvalid) {
				t.Errorf("Expected config.ErrInvalid, got %v", err)
			}
		})
	}

	if _, err := parseOptions(t, false, "--http-addr", "nonsense"); err == nil {
		t.Error("Expected error for malformed --http-addr")
	}
}

func TestPrintDevices(t *testing.T) {
	original := listDevices
	defer func() { listDevices = original }()

	listDevices = func() ([]device.Info, error) {
		return []device.Info{
			{Index: 0, Name: "Built-in Microphone", HostAPI: "Core Audio", MaxInputChannels: 2, DefaultSampleRate: 48000},
			{Index: 1, Name: "Built-in Output", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		}, nil
	}

	var out bytes.Buffer
	cmd := NewReceiverCommand("test")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--list-devices"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 devices, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "Built-in Microphone") || !strings.Contains(lines[1], "48000") {
		t.Errorf("Unexpected device line: %q", lines[1])
	}

	listDevices = func() ([]device.Info, error) { return nil, errors.New("portaudio unavailable") }
	if err := printDevices(&out); err == nil {
		t.Error("Expected listing error to be returned")
	}
}

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carry-sound.log")
	logger, closeLog := NewLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: path})

	logger.Info("filtered out")
	logger.Warn("Jitter buffer underrun", "underruns", 3)
	if err := closeLog(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line at warn level, got %d", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q", lines[0])
	}
	if entry["msg"] != "Jitter buffer underrun" || entry["underruns"] != float64(3) {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestLogConfigurationWarnsOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.ChunkSize = 1024
	cfg.Stream.Channels = 2

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logConfiguration(logger, "sender", cfg)

	if n := strings.Count(logs.String(), "Configuration warning"); n != 1 {
		t.Errorf("Expected 1 configuration warning, got %d:\n%s", n, logs.String())
	}
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket failed: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// TestCommandsStreamWAV runs both commands against each other with WAV endpoints
func TestCommandsStreamWAV(t *testing.T) {
	const frameSamples = 64
	var samples []int16
	for i := 0; i < 12*frameSamples; i++ {
		samples = append(samples, int16(i%1000+1))
	}
	wav, err := audio.EncodeWAV(samples, 8000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(inPath, wav, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	port := freeUDPPort(t)
	common := []string{
		"--port", strconv.Itoa(port), "--sample-rate", "8000", "--channels", "1",
		"--chunk-size", "64", "--log-level", "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver := NewReceiverCommand("test")
	receiver.SetArgs(append([]string{"--bind", "127.0.0.1", "--buffer-size", "2", "--output", outPath}, common...))
	receiverDone := make(chan error, 1)
	go func() { receiverDone <- receiver.ExecuteContext(ctx) }()

	// Give the receiver time to bind
	time.Sleep(200 * time.Millisecond)

	sender := NewSenderCommand("test")
	sender.SetArgs(append([]string{"--host", "127.0.0.1", "--input", inPath, "--dscp", "0"}, common...))
	if err := sender.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Sender failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-receiverDone:
		if err != nil {
			t.Fatalf("Receiver failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receiver did not stop after cancellation")
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	recorded, format, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if format.SampleRate != 8000 || format.Channels != 1 {
		t.Errorf("Expected 8000 Hz mono, got %d Hz / %d ch", format.SampleRate, format.Channels)
	}

	audible := 0
	for off := 0; off+frameSamples <= len(recorded); off += frameSamples {
		if !audio.Frame(recorded[off : off+frameSamples]).IsSilent() {
			audible++
		}
	}
	if audible == 0 {
		t.Error("Expected the recording to contain received audio")
	}
}
