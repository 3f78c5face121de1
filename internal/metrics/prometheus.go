package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio bridge.
// All Record methods tolerate a nil receiver so components can run
// unmetered in tests.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Inbound path metrics
	FramesReceived  prometheus.Counter
	BytesTranscoded prometheus.Counter
	AudioAppends    prometheus.Counter
	AudioCommits    prometheus.Counter
	ShortWindows    prometheus.Counter

	// Outbound path metrics
	FramesSent    prometheus.Counter
	ResponsesDone prometheus.Counter

	// Buffer and error metrics
	BufferOverflows *prometheus.CounterVec
	UpstreamErrors  prometheus.Counter
	ParseErrors     prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of active call sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_created_total",
			Help: "Total number of call sessions created",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_closed_total",
			Help: "Total number of call sessions closed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_session_duration_seconds",
			Help:    "Duration of call sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Inbound path metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_received_total",
			Help: "Total number of media frames received from the telephony leg",
		}),
		BytesTranscoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_bytes_transcoded_total",
			Help: "Total number of mu-law bytes transcoded for the upstream",
		}),
		AudioAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_appends_total",
			Help: "Total number of audio append messages sent upstream",
		}),
		AudioCommits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_commits_total",
			Help: "Total number of audio buffer commits sent upstream",
		}),
		ShortWindows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_short_windows_total",
			Help: "Total number of commit ticks skipped because the window was below the minimum",
		}),

		// Outbound path metrics
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_sent_total",
			Help: "Total number of media frames sent to the telephony leg",
		}),
		ResponsesDone: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_responses_done_total",
			Help: "Total number of completed upstream responses",
		}),

		// Buffer and error metrics
		BufferOverflows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_buffer_overflows_total",
			Help: "Total number of audio chunks dropped or delayed by bounded buffers",
		}, []string{"path"}),
		UpstreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_upstream_errors_total",
			Help: "Total number of error events received from the upstream",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_parse_errors_total",
			Help: "Total number of malformed telephony envelopes dropped",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionClosed increments the sessions closed counter and records duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordFrameReceived records one inbound media frame and its transcoded bytes
func (m *Metrics) RecordFrameReceived(muLawBytes int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.BytesTranscoded.Add(float64(muLawBytes))
}

// RecordAudioAppend increments the appends counter
func (m *Metrics) RecordAudioAppend() {
	if m == nil {
		return
	}
	m.AudioAppends.Inc()
}

// RecordAudioCommit increments the commits counter
func (m *Metrics) RecordAudioCommit() {
	if m == nil {
		return
	}
	m.AudioCommits.Inc()
}

// RecordShortWindow increments the skipped-commit counter
func (m *Metrics) RecordShortWindow() {
	if m == nil {
		return
	}
	m.ShortWindows.Inc()
}

// RecordFrameSent increments the outbound frame counter
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordResponseDone increments the completed responses counter
func (m *Metrics) RecordResponseDone() {
	if m == nil {
		return
	}
	m.ResponsesDone.Inc()
}

// RecordBufferOverflow records an overflow on the named path
func (m *Metrics) RecordBufferOverflow(path string) {
	if m == nil {
		return
	}
	m.BufferOverflows.WithLabelValues(path).Inc()
}

// RecordUpstreamError increments the upstream error counter
func (m *Metrics) RecordUpstreamError() {
	if m == nil {
		return
	}
	m.UpstreamErrors.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
