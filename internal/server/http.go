package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shehabattia96/carry-sound/internal/config"
	"github.com/shehabattia96/carry-sound/internal/metrics"
	"github.com/shehabattia96/carry-sound/internal/stream"
)

const serviceName = "carry-sound"

// Session is what the status API reports on
type Session interface {
	GetSessionInfo() stream.SessionInfo
	Metrics() *metrics.Metrics
}

// HTTPServer provides HTTP API endpoints for monitoring one session
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	config   *config.Config
	session  Session
	metrics  *metrics.Metrics
	version  string

	startTime time.Time
}

// NewHTTPServer creates the status server; addr is host:port
func NewHTTPServer(addr string, logger *slog.Logger, appConfig *config.Config, session Session, version string) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		session:   session,
		metrics:   session.Metrics(),
		version:   version,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Only this session's registry is exported
	mux.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background. A bind failure is
// returned here rather than logged later.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("Starting HTTP status server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP status server")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := h.session.GetSessionInfo()
	status := "healthy"
	code := http.StatusOK
	if !info.Running {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).Truncate(time.Second).String(),
		"session_id": info.ID,
		"role":       info.Role,
		"service": map[string]any{
			"name":    serviceName,
			"version": h.version,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := h.session.GetSessionInfo()
	avgSent, avgReceived := info.Stats.AverageFrameBytes()

	writeJSON(w, map[string]any{
		"timestamp":               time.Now().UTC(),
		"session":                 info,
		"avg_chunk_size_sent":     avgSent,
		"avg_chunk_size_received": avgReceived,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config
	writeJSON(w, map[string]any{
		"stream": map[string]any{
			"sample_rate":            c.Stream.SampleRate,
			"channels":               c.Stream.Channels,
			"chunk_size":             c.Stream.ChunkSize,
			"buffer_depth":           c.Stream.BufferDepth,
			"overflow":               c.Stream.Overflow,
			"frame_bytes":            c.Stream.FrameBytes(),
			"chunk_duration":         c.Stream.ChunkDuration().String(),
			"buffer_latency_seconds": c.Stream.BufferLatencySeconds(),
			"warnings":               c.Stream.Warnings(),
		},
		"network": map[string]any{
			"host":          c.Network.Host,
			"port":          c.Network.Port,
			"bind_address":  c.Network.BindAddress,
			"socket_buffer": c.Network.SocketBuffer,
			"dscp":          c.Network.DSCP,
			"send_timeout":  c.Network.SendTimeout,
		},
		"device": map[string]any{
			"input":       c.Device.Input,
			"output":      c.Device.Output,
			"input_file":  c.Device.InputFile,
			"output_file": c.Device.OutputFile,
			"latency":     c.Device.Latency,
		},
		"logging": map[string]any{
			"level":          c.Logging.Level,
			"format":         c.Logging.Format,
			"output":         c.Logging.Output,
			"stats_interval": c.Logging.StatsInterval,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"service": serviceName,
		"version": h.version,
		"endpoints": map[string]string{
			"GET /":        "API documentation",
			"GET /health":  "Session health check",
			"GET /stats":   "Stream statistics and jitter buffer state",
			"GET /config":  "Effective configuration",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
