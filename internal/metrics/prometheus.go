package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes one session's StreamStats and pipeline gauges to Prometheus.
// Counters are read from StreamStats at scrape time, so the real-time paths only ever
// touch atomics.
type Metrics struct {
	Registry *prometheus.Registry

	// Stream counters
	BytesSent          prometheus.CounterFunc
	BytesReceived      prometheus.CounterFunc
	FramesSent         prometheus.CounterFunc
	FramesReceived     prometheus.CounterFunc
	Underruns          prometheus.CounterFunc
	OverflowDrops      prometheus.CounterFunc
	DatagramsDiscarded prometheus.CounterFunc
	SendErrors         prometheus.CounterFunc

	// Pipeline metrics
	JitterBufferFrames prometheus.Gauge
	BufferLatency      prometheus.Gauge
	SendDuration       prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a registry for one session and registers all metrics on it.
// role ("sender" or "receiver") becomes a constant label.
func NewMetrics(stats *StreamStats, role string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"role": role}

	counter := func(name, help string, read func() uint64) prometheus.CounterFunc {
		return factory.NewCounterFunc(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read()) })
	}

	return &Metrics{
		Registry: reg,

		BytesSent: counter("carrysound_bytes_sent_total",
			"Total number of audio payload bytes handed to the network",
			stats.bytesSent.Load),
		BytesReceived: counter("carrysound_bytes_received_total",
			"Total number of audio payload bytes received in valid datagrams",
			stats.bytesReceived.Load),
		FramesSent: counter("carrysound_frames_sent_total",
			"Total number of frames sent",
			stats.framesSent.Load),
		FramesReceived: counter("carrysound_frames_received_total",
			"Total number of frames received",
			stats.framesReceived.Load),
		Underruns: counter("carrysound_underruns_total",
			"Total number of playback requests that found the jitter buffer empty",
			stats.underruns.Load),
		OverflowDrops: counter("carrysound_overflow_drops_total",
			"Total number of frames dropped because the jitter buffer was full",
			stats.overflows.Load),
		DatagramsDiscarded: counter("carrysound_datagrams_discarded_total",
			"Total number of datagrams discarded for having the wrong size",
			stats.datagramsDiscarded.Load),
		SendErrors: counter("carrysound_send_errors_total",
			"Total number of datagrams the network refused to send",
			stats.sendErrors.Load),

		JitterBufferFrames: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "carrysound_jitter_buffer_frames",
			Help:        "Current number of frames waiting in the jitter buffer",
			ConstLabels: labels,
		}),
		BufferLatency: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "carrysound_buffer_latency_seconds",
			Help:        "Delay added by a full jitter buffer (buffer_depth * chunk_size / sample_rate)",
			ConstLabels: labels,
		}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "carrysound_send_duration_seconds",
			Help:        "Time spent in the socket send call",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "carrysound_http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "carrysound_http_request_duration_seconds",
			Help:        "Duration of HTTP requests",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SetJitterBufferFrames sets the current jitter buffer fill
func (m *Metrics) SetJitterBufferFrames(n int) {
	m.JitterBufferFrames.Set(float64(n))
}

// SetBufferLatency sets the configured buffering delay
func (m *Metrics) SetBufferLatency(seconds float64) {
	m.BufferLatency.Set(seconds)
}

// ObserveSend records the duration of one send call
func (m *Metrics) ObserveSend(durationSeconds float64) {
	m.SendDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
