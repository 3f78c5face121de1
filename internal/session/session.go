package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
	"github.com/c-frg/ai-receptionist-bridge/internal/realtime"
	"github.com/c-frg/ai-receptionist-bridge/internal/telephony"
)

// State represents the lifecycle phase of a session
type State int32

const (
	StateNew State = iota
	StateUpstreamConnecting
	StateActive
	StateStopping
	StateTerminated
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUpstreamConnecting:
		return "upstream_connecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// DownstreamConn is the telephony leg of a call as the session sees it.
type DownstreamConn interface {
	ReadMessage(ctx context.Context) (telephony.Message, error)
	WriteMedia(ctx context.Context, streamSID string, audio []byte) error
	WriteMark(ctx context.Context, streamSID, name string) error
	Close() error
}

// UpstreamConn is the realtime speech service leg of a call.
type UpstreamConn interface {
	AppendAudio(audio []byte) error
	Commit() error
	RequestResponse() error
	CancelResponse() error
	Events() <-chan realtime.Event
	Close() error
}

// UpstreamDialer opens a new upstream connection for one session.
type UpstreamDialer func(ctx context.Context) (UpstreamConn, error)

// Policy values accepted by Config. They match the configuration file
// spellings so values can be passed through unchanged.
const (
	overflowDropOldest = "drop_oldest"
	overflowBlock      = "block"

	finalCommitAttempt = "commit"
	finalCommitDiscard = "discard"
)

// Config contains the per-session timing and buffering parameters
type Config struct {
	AppendInterval time.Duration
	CommitInterval time.Duration
	MinCommit      time.Duration

	// FinalCommit selects what happens to a partial commit window on
	// teardown: "commit" or "discard".
	FinalCommit string

	PendingQueueLimit int
	HeldFrameLimit    int
	BufferLimitBytes  int

	// OverflowPolicy is "drop_oldest" or "block".
	OverflowPolicy string

	// CompletionMark, when non-empty, names the mark sent to the caller
	// after each completed response.
	CompletionMark string

	// ErrorThreshold terminates the session after this many upstream
	// error events.
	ErrorThreshold int
}

// Session bridges one phone call to one upstream realtime connection.
type Session struct {
	ID        uint64
	StartTime time.Time

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	downstream DownstreamConn
	dialer     UpstreamDialer

	upstreamMu sync.Mutex
	upstream   UpstreamConn
	tornDown   bool

	inbound  *inboundPath
	outbound *outboundPath

	state          atomic.Int32
	upstreamErrors atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce    sync.Once
	done        chan struct{}
	onTerminate func(*Session)
}

func newSession(id uint64, cfg Config, downstream DownstreamConn, dialer UpstreamDialer,
	logger *slog.Logger, m *metrics.Metrics, onTerminate func(*Session)) *Session {

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:          id,
		StartTime:   time.Now(),
		cfg:         cfg,
		logger:      logger.With(slog.Uint64("session_id", id)),
		metrics:     m,
		downstream:  downstream,
		dialer:      dialer,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		onTerminate: onTerminate,
	}

	s.inbound = newInboundPath(cfg, s.logger, m)
	s.outbound = newOutboundPath(cfg, s.logger, m, downstream, ctx)

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// StreamSID returns the telephony stream identifier, or "" before start.
func (s *Session) StreamSID() string {
	return s.outbound.streamSID()
}

// Wait blocks until the session has fully terminated.
func (s *Session) Wait() {
	<-s.done
}

// Stop begins teardown. Safe to call from any goroutine, any number of times.
func (s *Session) Stop(reason string) {
	s.shutdown(reason)
}

// run drives the session. The telephony leg is pumped immediately so frames
// arriving before the upstream connects are queued rather than lost; once
// the dial completes the queue drains and events flow both ways.
func (s *Session) run() {
	s.state.Store(int32(StateUpstreamConnecting))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.inbound.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.downstreamLoop()
	}()

	upstream, err := s.dialer(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("Upstream dial failed", slog.String("error", err.Error()))
		}
		s.shutdown("upstream dial failed")
		return
	}

	s.upstreamMu.Lock()
	if s.tornDown {
		// Teardown already harvested connections; this one arrived too late.
		s.upstreamMu.Unlock()
		_ = upstream.Close()
		return
	}
	s.upstream = upstream
	s.upstreamMu.Unlock()

	s.inbound.upstreamReady(upstream)
	s.state.Store(int32(StateActive))
	s.logger.Info("Session active")

	s.upstreamLoop(upstream)
}

// downstreamLoop reads telephony envelopes until the caller hangs up or the
// transport fails.
func (s *Session) downstreamLoop() {
	for {
		msg, err := s.downstream.ReadMessage(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Info("Telephony leg closed", slog.String("error", err.Error()))
			}
			s.shutdown("telephony read failed")
			return
		}

		switch msg.Kind {
		case telephony.KindStart:
			s.logger.Info("Stream started", slog.String("stream_sid", msg.StreamSID))
			s.outbound.setStreamSID(msg.StreamSID)

		case telephony.KindMedia:
			s.metrics.RecordFrameReceived(len(msg.Audio))
			s.inbound.ingest(msg.Audio)

		case telephony.KindMark:
			s.logger.Debug("Mark acknowledged", slog.String("name", msg.MarkName))

		case telephony.KindStop:
			s.logger.Info("Stream stopped by caller")
			s.shutdown("caller hung up")
			return
		}
	}
}

// upstreamLoop consumes normalized upstream events until the channel closes.
func (s *Session) upstreamLoop(upstream UpstreamConn) {
	for evt := range upstream.Events() {
		switch evt.Kind {
		case realtime.EventAudioDelta:
			s.upstreamErrors.Store(0)
			if err := s.outbound.relay(evt.Audio); err != nil {
				s.logger.Error("Outbound relay failed", slog.String("error", err.Error()))
				s.shutdown("outbound relay failed")
				return
			}

		case realtime.EventResponseCompleted:
			s.metrics.RecordResponseDone()
			s.outbound.responseCompleted()

		case realtime.EventError:
			s.metrics.RecordUpstreamError()
			count := s.upstreamErrors.Add(1)
			s.logger.Warn("Upstream error event",
				slog.String("error", evt.Err.Error()),
				slog.Int("count", int(count)),
			)
			if s.cfg.ErrorThreshold > 0 && int(count) >= s.cfg.ErrorThreshold {
				s.shutdown("upstream error threshold reached")
				return
			}
		}
	}

	// Channel closed: the upstream connection is gone. Anything queued for
	// it can never be delivered.
	if s.ctx.Err() == nil {
		s.logger.Info("Upstream disconnected")
	}
	s.inbound.discard()
	s.shutdown("upstream disconnected")
}

// shutdown tears the session down exactly once. The actual work runs on a
// fresh goroutine because shutdown is called from the loops that wg.Wait
// needs to see finish.
func (s *Session) shutdown(reason string) {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateStopping))
		s.logger.Info("Session stopping", slog.String("reason", reason))

		go func() {
			s.inbound.finalFlush()
			s.outbound.stop()

			s.upstreamMu.Lock()
			upstream := s.upstream
			s.tornDown = true
			s.upstreamMu.Unlock()

			if upstream != nil {
				if err := upstream.CancelResponse(); err != nil {
					s.logger.Debug("Cancel on teardown failed", slog.String("error", err.Error()))
				}
				_ = upstream.Close()
			}
			_ = s.downstream.Close()

			s.cancel()
			s.wg.Wait()

			s.state.Store(int32(StateTerminated))

			duration := time.Since(s.StartTime)
			s.metrics.RecordSessionClosed(duration.Seconds())
			s.logger.Info("Session terminated",
				slog.Duration("duration", duration),
			)

			if s.onTerminate != nil {
				s.onTerminate(s)
			}
			close(s.done)
		}()
	})
}
