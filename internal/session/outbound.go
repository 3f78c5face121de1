package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c-frg/ai-receptionist-bridge/internal/audio"
	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
)

// outboundPath carries synthesized speech back to the caller. Media frames
// cannot be addressed until the start event delivers the stream identifier,
// so frames produced before then are held and flushed in order once it
// arrives.
type outboundPath struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	transcoder audio.Transcoder
	downstream DownstreamConn
	ctx        context.Context

	mu       sync.Mutex
	cond     *sync.Cond
	sid      string
	held     [][]byte
	flushing bool
	marks    int
	stopped  bool
}

func newOutboundPath(cfg Config, logger *slog.Logger, m *metrics.Metrics,
	downstream DownstreamConn, ctx context.Context) *outboundPath {

	p := &outboundPath{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		transcoder: audio.NewDownlink(),
		downstream: downstream,
		ctx:        ctx,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// relay transcodes one upstream audio delta and delivers it to the caller,
// holding it if the stream identifier is not yet known. Called only from the
// upstream event loop, which keeps the transcoder single-threaded.
func (p *outboundPath) relay(pcm []byte) error {
	frame, err := p.transcoder.Transcode(pcm)
	if err != nil {
		return fmt.Errorf("outbound transcode: %w", err)
	}
	if len(frame) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}

	if p.sid == "" {
		if len(p.held) >= p.cfg.HeldFrameLimit {
			if p.cfg.OverflowPolicy == overflowBlock {
				p.metrics.RecordBufferOverflow("outbound")
				for len(p.held) >= p.cfg.HeldFrameLimit && p.sid == "" && !p.stopped {
					p.cond.Wait()
				}
				if p.stopped {
					p.mu.Unlock()
					return nil
				}
			} else {
				p.held = p.held[1:]
				p.metrics.RecordBufferOverflow("outbound")
				p.logger.Warn("Held frame buffer full, dropping oldest frame")
			}
		}
		if p.sid == "" {
			p.held = append(p.held, frame)
			p.mu.Unlock()
			return nil
		}
	}

	// The held-frame flush writes on the downstream-read goroutine; a live
	// frame must not overtake it.
	for p.flushing && !p.stopped {
		p.cond.Wait()
	}
	if p.stopped {
		p.mu.Unlock()
		return nil
	}

	sid := p.sid
	p.mu.Unlock()

	return p.writeFrame(sid, frame)
}

// setStreamSID records the stream identifier from the start event and
// flushes every held frame in arrival order.
func (p *outboundPath) setStreamSID(sid string) {
	p.mu.Lock()
	if p.sid != "" {
		// A second start on the same connection is a protocol violation;
		// keep the first identifier.
		p.logger.Warn("Duplicate start event ignored",
			slog.String("stream_sid", sid),
			slog.String("active_sid", p.sid))
		p.mu.Unlock()
		return
	}
	p.sid = sid
	held := p.held
	p.held = nil
	p.flushing = len(held) > 0
	p.cond.Broadcast()
	p.mu.Unlock()

	if len(held) == 0 {
		return
	}

	for _, frame := range held {
		if err := p.writeFrame(sid, frame); err != nil {
			p.logger.Warn("Held frame flush failed", slog.String("error", err.Error()))
			break
		}
	}

	p.mu.Lock()
	p.flushing = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// responseCompleted sends a playback mark after a completed response so the
// telephony leg can report when the caller has heard all of it.
func (p *outboundPath) responseCompleted() {
	if p.cfg.CompletionMark == "" {
		return
	}

	p.mu.Lock()
	sid := p.sid
	p.marks++
	n := p.marks
	p.mu.Unlock()

	if sid == "" {
		return
	}

	name := fmt.Sprintf("%s-%d", p.cfg.CompletionMark, n)
	if err := p.downstream.WriteMark(p.ctx, sid, name); err != nil {
		p.logger.Debug("Mark write failed", slog.String("error", err.Error()))
	}
}

// streamSID returns the stream identifier, or "" before the start event.
func (p *outboundPath) streamSID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sid
}

// stop releases any blocked relay call during teardown.
func (p *outboundPath) stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *outboundPath) writeFrame(sid string, frame []byte) error {
	if err := p.downstream.WriteMedia(p.ctx, sid, frame); err != nil {
		return err
	}
	p.metrics.RecordFrameSent()
	return nil
}
