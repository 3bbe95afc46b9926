package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shehabattia96/carry-sound/internal/audio"
	"github.com/shehabattia96/carry-sound/internal/transport"
)

func TestSenderSendsEveryFrame(t *testing.T) {
	cfg := testStreamConfig()
	source := &fakeSource{samples: cfg.FrameSamples(), count: 5}
	conn := &recordingConn{}

	sender, err := NewSender(cfg, source, conn, 0, testLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if err := sender.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The source ends with io.EOF, which finishes the session cleanly
	if err := sender.Wait(); err != nil {
		t.Fatalf("Expected clean end, got %v", err)
	}

	sent := conn.sent()
	if len(sent) != 5 {
		t.Fatalf("Expected 5 datagrams, got %d", len(sent))
	}
	for i, d := range sent {
		if len(d) != cfg.FrameBytes() {
			t.Errorf("Datagram %d: expected %d bytes, got %d", i, cfg.FrameBytes(), len(d))
			continue
		}
		first := int16(binary.LittleEndian.Uint16(d))
		if want := numberedFrame(i, cfg.FrameSamples())[0]; first != want {
			t.Errorf("Datagram %d: expected first sample %d, got %d", i, want, first)
		}
	}

	snap := sender.Stats().Snapshot()
	if snap.FramesSent != 5 {
		t.Errorf("Expected 5 frames sent, got %d", snap.FramesSent)
	}
	if snap.BytesSent != uint64(5*cfg.FrameBytes()) {
		t.Errorf("Expected %d bytes sent, got %d", 5*cfg.FrameBytes(), snap.BytesSent)
	}
	if !source.isClosed() || !conn.isClosed() {
		t.Error("Expected source and connection to be released")
	}
}

func TestSenderTransientSendErrors(t *testing.T) {
	cfg := testStreamConfig()
	source := &fakeSource{samples: cfg.FrameSamples(), count: 4}
	conn := &recordingConn{errs: []error{
		errors.New("network is unreachable"),
		errors.New("connection refused"),
	}}

	sender, err := NewSender(cfg, source, conn, 0, testLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if err := sender.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sender.Wait(); err != nil {
		t.Fatalf("Transient send errors must not end the session, got %v", err)
	}

	snap := sender.Stats().Snapshot()
	if snap.SendErrors != 2 {
		t.Errorf("Expected 2 send errors, got %d", snap.SendErrors)
	}
	if snap.FramesSent != 2 {
		t.Errorf("Expected 2 frames sent, got %d", snap.FramesSent)
	}
	if snap.BytesSent != uint64(2*cfg.FrameBytes()) {
		t.Errorf("Failed sends must not count bytes: expected %d, got %d", 2*cfg.FrameBytes(), snap.BytesSent)
	}
}

func TestSenderFatalErrors(t *testing.T) {
	cfg := testStreamConfig()

	tests := []struct {
		name    string
		source  *fakeSource
		conn    *recordingConn
		wantErr error
	}{
		{
			name:    "blocked send",
			source:  &fakeSource{samples: cfg.FrameSamples(), count: 3},
			conn:    &recordingConn{errs: []error{fmt.Errorf("%w (50ms)", transport.ErrSendBlocked)}},
			wantErr: transport.ErrSendBlocked,
		},
		{
			name: "device failure",
			source: &fakeSource{
				samples: cfg.FrameSamples(),
				count:   2,
				err:     &audio.DeviceError{Op: "capture", Device: "0:mic", Err: errors.New("device unplugged")},
			},
			conn:    &recordingConn{},
			wantErr: audio.ErrDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(cfg, tt.source, tt.conn, 0, testLogger())
			if err != nil {
				t.Fatalf("NewSender failed: %v", err)
			}
			if err := sender.Start(context.Background()); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			err = sender.Wait()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if !tt.source.isClosed() || !tt.conn.isClosed() {
				t.Error("Expected resources released after a fatal error")
			}
		})
	}
}

func TestSenderStop(t *testing.T) {
	cfg := testStreamConfig()
	source := &fakeSource{samples: cfg.FrameSamples(), count: 1 << 30}
	conn := &recordingConn{}

	sender, err := NewSender(cfg, source, conn, 10*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if err := sender.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, "first datagrams", func() bool { return len(conn.sent()) > 10 })

	if err := sender.Stop(); err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}
	select {
	case <-sender.Done():
	default:
		t.Error("Expected Done to be closed after Stop")
	}
	if !source.isClosed() || !conn.isClosed() {
		t.Error("Expected resources released after Stop")
	}

	// Stop is idempotent
	if err := sender.Stop(); err != nil {
		t.Errorf("Expected second Stop to succeed, got %v", err)
	}
}

func TestSessionLifecycleErrors(t *testing.T) {
	cfg := testStreamConfig()
	source := &fakeSource{samples: cfg.FrameSamples(), count: 1}
	conn := &recordingConn{}

	sender, err := NewSender(cfg, source, conn, 0, testLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}

	if err := sender.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}

	// Stopping a session that never ran still releases what it owns
	if err := sender.Stop(); err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}
	if !source.isClosed() || !conn.isClosed() {
		t.Error("Expected resources released by Stop before Start")
	}
	if err := sender.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted after Stop, got %v", err)
	}
}

func TestSenderRejectsInvalidConfig(t *testing.T) {
	cfg := testStreamConfig()
	cfg.Channels = 3

	if _, err := NewSender(cfg, &fakeSource{}, &recordingConn{}, 0, testLogger()); err == nil {
		t.Error("Expected error for 3 channels")
	}
}

func TestSenderSessionInfo(t *testing.T) {
	cfg := testStreamConfig()
	sender, err := NewSender(cfg, &fakeSource{samples: cfg.FrameSamples(), count: 2}, &recordingConn{}, 0, testLogger())
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if sender.ID() == "" {
		t.Error("Expected a session id")
	}

	if err := sender.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sender.Wait()

	info := sender.GetSessionInfo()
	if info.Role != RoleSender {
		t.Errorf("Expected role %q, got %q", RoleSender, info.Role)
	}
	if info.Running {
		t.Error("Expected finished session to report not running")
	}
	if info.Stats.FramesSent != 2 {
		t.Errorf("Expected 2 frames sent, got %d", info.Stats.FramesSent)
	}
	if info.Buffer != nil {
		t.Error("Sender must not report a jitter buffer")
	}
}

// statsSource is a fakeSource that also reports chunking statistics
type statsSource struct {
	fakeSource
	stats audio.ChunkerStats
}

func (s *statsSource) GetStats() audio.ChunkerStats {
	return s.stats
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestSenderLogsSourceStatsAtEOF(t *testing.T) {
	cfg := testStreamConfig()
	source := &statsSource{
		fakeSource: fakeSource{samples: cfg.FrameSamples(), count: 3},
		stats:      audio.ChunkerStats{SamplesIn: 160, FramesOut: 3, PaddedFrames: 1},
	}
	var logs bytes.Buffer

	sender, err := NewSender(cfg, source, &recordingConn{}, 0, bufferLogger(&logs))
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if err := sender.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sender.Wait(); err != nil {
		t.Fatalf("Expected clean end, got %v", err)
	}

	out := logs.String()
	for _, want := range []string{"Audio source statistics", "frames_out=3", "padded_frames=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestNewSenderDoesNotLogConfigWarnings(t *testing.T) {
	cfg := testStreamConfig()
	cfg.ChunkSize = 1024
	cfg.Channels = 2
	if len(cfg.Warnings()) == 0 {
		t.Fatal("Expected a fragmentation warning for a 4096 byte frame")
	}
	var logs bytes.Buffer

	sender, err := NewSender(cfg, &fakeSource{}, &recordingConn{}, 0, bufferLogger(&logs))
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer sender.Stop()

	if strings.Contains(logs.String(), "fragmented") {
		t.Errorf("Expected configuration warnings to be left to the caller, got:\n%s", logs.String())
	}
}
