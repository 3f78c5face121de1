package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/c-frg/ai-receptionist-bridge/internal/config"
	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
	"github.com/c-frg/ai-receptionist-bridge/internal/session"
	"github.com/c-frg/ai-receptionist-bridge/internal/telephony"
)

// Server exposes the media WebSocket endpoint plus the HTTP surface around
// it: call webhook, health, session monitoring, and Prometheus metrics.
type Server struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	metrics    *metrics.Metrics

	// sessionSlots caps the number of concurrent calls.
	sessionSlots *semaphore.Weighted

	startTime time.Time
}

// NewServer creates the bridge HTTP server.
func NewServer(cfg *config.Config, logger *slog.Logger, sessionMgr *session.Manager, m *metrics.Metrics) *Server {
	s := &Server{
		logger:       logger,
		config:       cfg,
		sessionMgr:   sessionMgr,
		metrics:      m,
		sessionSlots: semaphore.NewWeighted(cfg.Server.MaxConcurrentSessions),
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Media WebSocket endpoint; no timeouts, calls run for minutes.
	mux.HandleFunc("/media", s.handleMedia)

	// Call webhook returning connect instructions for the telephony provider.
	mux.HandleFunc("/twiml", s.withMetrics("/twiml", s.handleTwiML))

	// Monitoring endpoints.
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/sessions", s.withMetrics("/sessions", s.handleSessions))
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
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

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting bridge server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping bridge server...")
	return s.server.Shutdown(ctx)
}

// handleMedia upgrades the connection and runs one call session on it. The
// handler does not return until the session terminates; returning would tear
// down the WebSocket under the session's feet.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if !s.sessionSlots.TryAcquire(1) {
		s.logger.Warn("Rejecting call, session limit reached",
			slog.Int64("limit", s.config.Server.MaxConcurrentSessions))
		http.Error(w, "Too many concurrent sessions", http.StatusServiceUnavailable)
		return
	}
	defer s.sessionSlots.Release(1)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	ws.SetReadLimit(s.config.Server.ReadLimitBytes)

	conn := telephony.NewConn(ws, s.logger, s.metrics)
	sess := s.sessionMgr.Accept(conn)
	sess.Wait()
}

// handleTwiML returns the connect instructions the telephony provider fetches
// when a call comes in, pointing the media stream at this server.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaURL := fmt.Sprintf("wss://%s/media", r.Host)

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="%s"/>
  </Connect>
</Response>
`, mediaURL)
}

// handleHealth implements the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(s.startTime).String(),
		"active_sessions": s.sessionMgr.ActiveCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := s.sessionMgr.Snapshot()
	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
