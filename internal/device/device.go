package device

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/shehabattia96/carry-sound/internal/audio"
)

// DefaultDevice selects the host API's default input or output
const DefaultDevice = -1

// Latency presets understood by Params
const (
	LatencyLow  = "low"
	LatencyHigh = "high"
)

// Info describes one device as reported by PortAudio
type Info struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

// Params selects a device and the stream format to open it with
type Params struct {
	Device     int // index from List, or DefaultDevice
	SampleRate int
	Channels   int
	ChunkSize  int    // samples per channel per read or write
	Latency    string // LatencyLow or LatencyHigh
}

// List enumerates every device PortAudio can see
func List() ([]Info, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Op: "initialize", Err: err}
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &audio.DeviceError{Op: "list", Err: err}
	}

	infos := make([]Info, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, infoFromDevice(d))
	}
	return infos, nil
}

func infoFromDevice(d *portaudio.DeviceInfo) Info {
	info := Info{
		Index:             d.Index,
		Name:              d.Name,
		MaxInputChannels:  d.MaxInputChannels,
		MaxOutputChannels: d.MaxOutputChannels,
		DefaultSampleRate: d.DefaultSampleRate,
	}
	if d.HostApi != nil {
		info.HostAPI = d.HostApi.Name
	}
	return info
}

// pickDevice resolves an index against the enumerated devices. fallback is the host
// default, used for DefaultDevice.
func pickDevice(devices []*portaudio.DeviceInfo, index int, input bool, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		d, err := fallback()
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, errors.New("no default device")
		}
		return d, nil
	}

	for _, d := range devices {
		if d.Index != index {
			continue
		}
		if input && d.MaxInputChannels == 0 {
			return nil, fmt.Errorf("device %d (%s) has no input channels", index, d.Name)
		}
		if !input && d.MaxOutputChannels == 0 {
			return nil, fmt.Errorf("device %d (%s) has no output channels", index, d.Name)
		}
		return d, nil
	}
	return nil, fmt.Errorf("device index %d not found", index)
}

// streamParameters builds PortAudio parameters for a single-direction stream
func streamParameters(d *portaudio.DeviceInfo, p Params, input bool) portaudio.StreamParameters {
	var params portaudio.StreamParameters
	switch {
	case input && p.Latency == LatencyHigh:
		params = portaudio.HighLatencyParameters(d, nil)
	case input:
		params = portaudio.LowLatencyParameters(d, nil)
	case p.Latency == LatencyHigh:
		params = portaudio.HighLatencyParameters(nil, d)
	default:
		params = portaudio.LowLatencyParameters(nil, d)
	}

	if input {
		params.Input.Channels = p.Channels
	} else {
		params.Output.Channels = p.Channels
	}
	params.SampleRate = float64(p.SampleRate)
	params.FramesPerBuffer = p.ChunkSize
	return params
}

func deviceName(d *portaudio.DeviceInfo, index int) string {
	if d != nil {
		return fmt.Sprintf("%d:%s", d.Index, d.Name)
	}
	if index == DefaultDevice {
		return "default"
	}
	return fmt.Sprintf("%d", index)
}

// openStream initializes PortAudio and opens a blocking stream over buf. On success the
// caller owns one PortAudio reference and must call portaudio.Terminate after closing.
func openStream(p Params, input bool, buf []int16, logger *slog.Logger) (*portaudio.Stream, *portaudio.DeviceInfo, error) {
	op := "open output"
	fallback := portaudio.DefaultOutputDevice
	if input {
		op = "open input"
		fallback = portaudio.DefaultInputDevice
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, nil, &audio.DeviceError{Op: op, Device: deviceName(nil, p.Device), Err: err}
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, nil, &audio.DeviceError{Op: op, Device: deviceName(nil, p.Device), Err: err}
	}

	d, err := pickDevice(devices, p.Device, input, fallback)
	if err != nil {
		portaudio.Terminate()
		return nil, nil, &audio.DeviceError{Op: op, Device: deviceName(nil, p.Device), Err: err}
	}

	params := streamParameters(d, p, input)
	if err := portaudio.IsFormatSupported(params, buf); err != nil {
		portaudio.Terminate()
		return nil, nil, &audio.DeviceError{
			Op:     op,
			Device: deviceName(d, p.Device),
			Err:    fmt.Errorf("%d Hz, %d channels unsupported: %w", p.SampleRate, p.Channels, err),
		}
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, nil, &audio.DeviceError{Op: op, Device: deviceName(d, p.Device), Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, nil, &audio.DeviceError{Op: op, Device: deviceName(d, p.Device), Err: err}
	}

	logger.Info("Audio device opened",
		slog.String("direction", op[len("open "):]),
		slog.String("device", d.Name),
		slog.Int("index", d.Index),
		slog.Int("sample_rate", p.SampleRate),
		slog.Int("channels", p.Channels),
		slog.Int("chunk_size", p.ChunkSize),
		slog.Duration("device_latency", deviceLatency(stream, input)),
	)
	return stream, d, nil
}

func deviceLatency(stream *portaudio.Stream, input bool) time.Duration {
	info := stream.Info()
	if info == nil {
		return 0
	}
	if input {
		return info.InputLatency
	}
	return info.OutputLatency
}
