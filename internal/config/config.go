package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Documented defaults shared by sender and receiver
const (
	DefaultSampleRate  = 44100
	DefaultChannels    = 2
	DefaultChunkSize   = 1024
	DefaultBufferDepth = 10
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5005
	DefaultOverflow    = OverflowDropNewest

	// BytesPerSample is the width of one signed 16-bit PCM sample
	BytesPerSample = 2

	// SafeDatagramSize is the largest payload that crosses a common
	// 1500-byte Ethernet path without IP fragmentation
	SafeDatagramSize = 1472
	// MaxDatagramSize is the largest payload a single UDP datagram can carry
	MaxDatagramSize = 65507
)

// Jitter buffer overflow policies
const (
	OverflowDropNewest = "drop-newest"
	OverflowDropOldest = "drop-oldest"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete configuration of a sender or receiver
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	Network NetworkConfig `yaml:"network"`
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// StreamConfig describes the audio format both ends must agree on out of band.
// BufferDepth is only used by the receiver.
type StreamConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	ChunkSize   int    `yaml:"chunk_size"`   // samples per channel per frame
	BufferDepth int    `yaml:"buffer_depth"` // frames
	Overflow    string `yaml:"overflow"`     // drop-newest or drop-oldest
}

// NetworkConfig contains UDP endpoint configuration
type NetworkConfig struct {
	Host         string  `yaml:"host"`         // sender target
	Port         int     `yaml:"port"`         // sender target / receiver listen port
	BindAddress  string  `yaml:"bind_address"` // receiver
	SocketBuffer int     `yaml:"socket_buffer"`
	DSCP         int     `yaml:"dscp"`
	SendTimeout  float64 `yaml:"send_timeout"` // seconds
}

// DeviceConfig selects the audio endpoints. An index of -1 picks the host default device;
// a non-empty file path replaces the device with a WAV file.
type DeviceConfig struct {
	Input      int    `yaml:"input"`
	Output     int    `yaml:"output"`
	InputFile  string `yaml:"input_file"`
	OutputFile string `yaml:"output_file"`
	Loop       bool   `yaml:"loop"` // restart input_file at its end
	Latency    string `yaml:"latency"`
}

// HTTPConfig contains status HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level         string  `yaml:"level"`
	Format        string  `yaml:"format"`
	Output        string  `yaml:"output"`
	StatsInterval float64 `yaml:"stats_interval"` // seconds, 0 disables
}

// Default returns the configuration used when neither a file nor flags override anything
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			SampleRate:  DefaultSampleRate,
			Channels:    DefaultChannels,
			ChunkSize:   DefaultChunkSize,
			BufferDepth: DefaultBufferDepth,
			Overflow:    DefaultOverflow,
		},
		Network: NetworkConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			BindAddress:  "0.0.0.0",
			SocketBuffer: 65536,
			DSCP:         46, // expedited forwarding
			SendTimeout:  0.05,
		},
		Device: DeviceConfig{
			Input:   -1,
			Output:  -1,
			Latency: "low",
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of Default()
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}

	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates the stream format
func (s *StreamConfig) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalid, s.SampleRate)
	}

	if s.Channels != 1 && s.Channels != 2 {
		return fmt.Errorf("%w: channels must be 1 (mono) or 2 (stereo), got %d", ErrInvalid, s.Channels)
	}

	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalid, s.ChunkSize)
	}

	if s.BufferDepth <= 0 {
		return fmt.Errorf("%w: buffer_depth must be positive, got %d", ErrInvalid, s.BufferDepth)
	}

	if s.Overflow != OverflowDropNewest && s.Overflow != OverflowDropOldest {
		return fmt.Errorf("%w: overflow must be '%s' or '%s', got '%s'",
			ErrInvalid, OverflowDropNewest, OverflowDropOldest, s.Overflow)
	}

	if s.FrameBytes() > MaxDatagramSize {
		return fmt.Errorf("%w: frame of %d bytes cannot fit in one UDP datagram (max %d), lower chunk_size",
			ErrInvalid, s.FrameBytes(), MaxDatagramSize)
	}

	return nil
}

// Warnings reports settings that are valid but likely to hurt delivery
func (s *StreamConfig) Warnings() []string {
	var warnings []string
	if s.FrameBytes() > SafeDatagramSize {
		warnings = append(warnings, fmt.Sprintf(
			"frame size %d bytes exceeds %d bytes and will be IP-fragmented; losing any fragment drops the whole frame",
			s.FrameBytes(), SafeDatagramSize))
	}
	return warnings
}

// FrameSamples returns the number of interleaved samples in one frame
func (s *StreamConfig) FrameSamples() int {
	return s.ChunkSize * s.Channels
}

// FrameBytes returns the exact datagram payload size of one serialized frame
func (s *StreamConfig) FrameBytes() int {
	return s.FrameSamples() * BytesPerSample
}

// ChunkDuration returns the playback duration of one frame
func (s *StreamConfig) ChunkDuration() time.Duration {
	return time.Duration(int64(s.ChunkSize) * int64(time.Second) / int64(s.SampleRate))
}

// BufferLatencySeconds returns the delay added by a full jitter buffer:
// buffer_depth * chunk_size / sample_rate
func (s *StreamConfig) BufferLatencySeconds() float64 {
	return float64(s.BufferDepth) * float64(s.ChunkSize) / float64(s.SampleRate)
}

// BufferLatency returns BufferLatencySeconds as a time.Duration
func (s *StreamConfig) BufferLatency() time.Duration {
	return time.Duration(int64(s.BufferDepth) * int64(s.ChunkSize) * int64(time.Second) / int64(s.SampleRate))
}

// Validate validates network configuration
func (n *NetworkConfig) Validate() error {
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalid, n.Port)
	}

	if n.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalid)
	}

	if n.SocketBuffer < 0 {
		return fmt.Errorf("%w: socket_buffer cannot be negative, got %d", ErrInvalid, n.SocketBuffer)
	}

	if n.DSCP < 0 || n.DSCP > 63 {
		return fmt.Errorf("%w: dscp must be between 0 and 63, got %d", ErrInvalid, n.DSCP)
	}

	if n.SendTimeout <= 0 {
		return fmt.Errorf("%w: send_timeout must be positive, got %f", ErrInvalid, n.SendTimeout)
	}

	return nil
}

// GetSendTimeoutDuration returns the send timeout as a time.Duration
func (n *NetworkConfig) GetSendTimeoutDuration() time.Duration {
	return time.Duration(n.SendTimeout * float64(time.Second))
}

// ListenAddress returns the receiver's host:port
func (n *NetworkConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", n.BindAddress, n.Port)
}

// TargetAddress returns the sender's destination host:port
func (n *NetworkConfig) TargetAddress() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Validate validates device configuration
func (d *DeviceConfig) Validate() error {
	if d.Input < -1 {
		return fmt.Errorf("%w: input device index must be -1 (default) or a device index, got %d", ErrInvalid, d.Input)
	}

	if d.Output < -1 {
		return fmt.Errorf("%w: output device index must be -1 (default) or a device index, got %d", ErrInvalid, d.Output)
	}

	if d.Latency != "low" && d.Latency != "high" {
		return fmt.Errorf("%w: latency must be 'low' or 'high', got '%s'", ErrInvalid, d.Latency)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("%w: http port must be between 1 and 65535, got %d", ErrInvalid, h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("%w: http address cannot be empty when HTTP is enabled", ErrInvalid)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("%w: level must be one of [debug, info, warn, error], got '%s'", ErrInvalid, l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("%w: format must be 'json' or 'text', got '%s'", ErrInvalid, l.Format)
	}

	if l.StatsInterval < 0 {
		return fmt.Errorf("%w: stats_interval cannot be negative, got %f", ErrInvalid, l.StatsInterval)
	}

	return nil
}

// GetStatsIntervalDuration returns the periodic statistics interval as a time.Duration
func (l *LoggingConfig) GetStatsIntervalDuration() time.Duration {
	return time.Duration(l.StatsInterval * float64(time.Second))
}
