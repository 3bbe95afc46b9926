package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/shehabattia96/carry-sound/internal/audio"
)

// Input captures fixed-size frames from a sound card
type Input struct {
	stream *portaudio.Stream
	name   string
	buf    []int16
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	overflows uint64
}

// OpenInput opens and starts a capture stream. The device stays exclusively owned by the
// returned Input until Close.
func OpenInput(p Params, logger *slog.Logger) (*Input, error) {
	buf := make([]int16, p.ChunkSize*p.Channels)
	stream, d, err := openStream(p, true, buf, logger)
	if err != nil {
		return nil, err
	}
	return &Input{
		stream: stream,
		name:   deviceName(d, p.Device),
		buf:    buf,
		logger: logger,
	}, nil
}

// Capture blocks until one chunk is available and returns it as a new frame
func (in *Input) Capture() (audio.Frame, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, &audio.DeviceError{Op: "capture", Device: in.name, Err: errors.New("device closed")}
	}

	if err := in.stream.Read(); err != nil {
		// Samples were still delivered; the device dropped some before we read
		if errors.Is(err, portaudio.InputOverflowed) {
			in.overflows++
			in.logger.Debug("Input overflow",
				slog.String("device", in.name),
				slog.Uint64("overflows", in.overflows),
			)
		} else {
			return nil, &audio.DeviceError{Op: "capture", Device: in.name, Err: err}
		}
	}

	return audio.Frame(in.buf).Clone(), nil
}

// Close stops the stream and releases the device
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true
	return closeStream(in.stream, in.name)
}

// Output plays fixed-size frames on a sound card
type Output struct {
	stream *portaudio.Stream
	name   string
	buf    []int16
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	underflows uint64
}

// OpenOutput opens and starts a playback stream
func OpenOutput(p Params, logger *slog.Logger) (*Output, error) {
	buf := make([]int16, p.ChunkSize*p.Channels)
	stream, d, err := openStream(p, false, buf, logger)
	if err != nil {
		return nil, err
	}
	return &Output{
		stream: stream,
		name:   deviceName(d, p.Device),
		buf:    buf,
		logger: logger,
	}, nil
}

// Play blocks until the device has accepted the frame
func (out *Output) Play(frame audio.Frame) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.closed {
		return &audio.DeviceError{Op: "play", Device: out.name, Err: errors.New("device closed")}
	}
	if len(frame) != len(out.buf) {
		return fmt.Errorf("frame has %d samples, device expects %d", len(frame), len(out.buf))
	}

	copy(out.buf, frame)
	if err := out.stream.Write(); err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			out.underflows++
			out.logger.Debug("Output underflow",
				slog.String("device", out.name),
				slog.Uint64("underflows", out.underflows),
			)
			return nil
		}
		return &audio.DeviceError{Op: "play", Device: out.name, Err: err}
	}
	return nil
}

// Close drains and stops the stream and releases the device
func (out *Output) Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.closed {
		return nil
	}
	out.closed = true
	return closeStream(out.stream, out.name)
}

func closeStream(stream *portaudio.Stream, name string) error {
	defer portaudio.Terminate()

	stopErr := stream.Stop()
	closeErr := stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return &audio.DeviceError{Op: "close", Device: name, Err: err}
	}
	return nil
}

var (
	_ audio.Source = (*Input)(nil)
	_ audio.Sink   = (*Output)(nil)
)
