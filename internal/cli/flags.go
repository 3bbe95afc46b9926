package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/shehabattia96/carry-sound/internal/config"
)

// options holds every flag either command may register. Only flags the user actually
// set override the configuration file.
type options struct {
	configPath  string
	listDevices bool

	host        string
	port        int
	bind        string
	device      int
	sampleRate  int
	channels    int
	chunkSize   int
	bufferSize  int
	overflow    string
	input       string
	output      string
	loop        bool
	latency     string
	dscp        int
	httpAddr    string
	logLevel    string
	logFormat   string
	logOutput   string
	statsPeriod float64
}

func (o *options) addCommon(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Optional path to a YAML config file")
	fs.BoolVar(&o.listDevices, "list-devices", false, "List audio devices and exit")
	fs.IntVar(&o.port, "port", config.DefaultPort, "UDP port")
	fs.IntVar(&o.device, "device", -1, "Audio device index (-1 for the default device)")
	fs.IntVar(&o.sampleRate, "sample-rate", config.DefaultSampleRate, "Sample rate in Hz")
	fs.IntVar(&o.channels, "channels", config.DefaultChannels, "Number of channels (1 or 2)")
	fs.IntVar(&o.chunkSize, "chunk-size", config.DefaultChunkSize, "Samples per channel in each datagram")
	fs.StringVar(&o.latency, "latency", "low", "Device latency preset (low or high)")
	fs.StringVar(&o.httpAddr, "http-addr", "", "Serve status and metrics on host:port")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format (text or json)")
	fs.StringVar(&o.logOutput, "log-output", "stderr", "Log destination (stderr, stdout or a file path)")
	fs.Float64Var(&o.statsPeriod, "stats-interval", 0, "Seconds between statistics log lines (0 disables)")
}

func (o *options) addSender(fs *pflag.FlagSet) {
	o.addCommon(fs)
	fs.StringVar(&o.host, "host", config.DefaultHost, "Receiver host")
	fs.StringVar(&o.input, "input", "", "Stream a WAV file instead of capturing from a device")
	fs.BoolVar(&o.loop, "loop", false, "Restart the --input file when it ends")
	fs.IntVar(&o.dscp, "dscp", 46, "DSCP value for outgoing datagrams (0 disables marking)")
}

func (o *options) addReceiver(fs *pflag.FlagSet) {
	o.addCommon(fs)
	fs.StringVar(&o.bind, "bind", "0.0.0.0", "Address to listen on")
	fs.IntVar(&o.bufferSize, "buffer-size", config.DefaultBufferDepth, "Jitter buffer depth in frames")
	fs.StringVar(&o.overflow, "overflow", config.DefaultOverflow, "Full buffer policy (drop-newest or drop-oldest)")
	fs.StringVar(&o.output, "output", "", "Record to a WAV file instead of playing on a device")
}

// load reads the config file (or defaults) and applies explicitly set flags on top
func (o *options) load(fs *pflag.FlagSet, sender bool) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := o.apply(fs, cfg, sender); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) apply(fs *pflag.FlagSet, cfg *config.Config, sender bool) error {
	set := fs.Changed

	if set("host") {
		cfg.Network.Host = o.host
	}
	if set("port") {
		cfg.Network.Port = o.port
	}
	if set("bind") {
		cfg.Network.BindAddress = o.bind
	}
	if set("dscp") {
		cfg.Network.DSCP = o.dscp
	}
	if set("device") {
		if sender {
			cfg.Device.Input = o.device
		} else {
			cfg.Device.Output = o.device
		}
	}
	if set("sample-rate") {
		cfg.Stream.SampleRate = o.sampleRate
	}
	if set("channels") {
		cfg.Stream.Channels = o.channels
	}
	if set("chunk-size") {
		cfg.Stream.ChunkSize = o.chunkSize
	}
	if set("buffer-size") {
		cfg.Stream.BufferDepth = o.bufferSize
	}
	if set("overflow") {
		cfg.Stream.Overflow = o.overflow
	}
	if set("input") {
		cfg.Device.InputFile = o.input
	}
	if set("output") {
		cfg.Device.OutputFile = o.output
	}
	if set("loop") {
		cfg.Device.Loop = o.loop
	}
	if set("latency") {
		cfg.Device.Latency = o.latency
	}
	if set("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if set("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if set("log-output") {
		cfg.Logging.Output = o.logOutput
	}
	if set("stats-interval") {
		cfg.Logging.StatsInterval = o.statsPeriod
	}
	if set("http-addr") && o.httpAddr != "" {
		host, portStr, err := net.SplitHostPort(o.httpAddr)
		if err != nil {
			return fmt.Errorf("invalid --http-addr %q: %w", o.httpAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --http-addr port %q: %w", portStr, err)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.HTTP.Address = host
		cfg.HTTP.Port = port
		cfg.HTTP.Enabled = true
	}
	return nil
}
