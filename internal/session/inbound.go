package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c-frg/ai-receptionist-bridge/internal/audio"
	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
)

// upstreamCommitFloor is the minimum audio the upstream accepts in a commit.
const upstreamCommitFloor = 100 * time.Millisecond

// inboundPath carries caller audio to the upstream: transcode on arrival,
// append on the append cadence, commit and request a response on the commit
// cadence. Appends issued before the upstream connects are queued and
// drained in order once it does.
type inboundPath struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	transcoder audio.Transcoder

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte        // transcoded audio awaiting the next append tick
	window   time.Duration // audio appended upstream since the last commit
	pending  [][]byte      // appends queued while the upstream was absent
	upstream UpstreamConn
	stopped  bool
}

func newInboundPath(cfg Config, logger *slog.Logger, m *metrics.Metrics) *inboundPath {
	p := &inboundPath{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		transcoder: audio.NewUplink(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// run drives the append and commit cadences until the context ends.
func (p *inboundPath) run(ctx context.Context) {
	appendTicker := time.NewTicker(p.cfg.AppendInterval)
	defer appendTicker.Stop()

	commitTicker := time.NewTicker(p.cfg.CommitInterval)
	defer commitTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-appendTicker.C:
			p.flushAppend()
		case <-commitTicker.C:
			p.maybeCommit()
		}
	}
}

// ingest transcodes one mu-law frame and adds it to the accumulation buffer,
// applying the overflow policy when the buffer is full. Called only from the
// downstream read loop, which keeps the transcoder single-threaded.
func (p *inboundPath) ingest(muLaw []byte) {
	pcm, err := p.transcoder.Transcode(muLaw)
	if err != nil || len(pcm) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	if p.cfg.OverflowPolicy == overflowBlock {
		if len(p.buf)+len(pcm) > p.cfg.BufferLimitBytes {
			p.metrics.RecordBufferOverflow("inbound")
		}
		for len(p.buf)+len(pcm) > p.cfg.BufferLimitBytes && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			return
		}
	} else {
		for len(p.buf)+len(pcm) > p.cfg.BufferLimitBytes && len(p.buf) > 0 {
			drop := len(pcm)
			if drop > len(p.buf) {
				drop = len(p.buf)
			}
			p.buf = p.buf[drop:]
			p.metrics.RecordBufferOverflow("inbound")
			p.logger.Warn("Inbound buffer full, dropping oldest audio",
				slog.Int("dropped_bytes", drop))
		}
	}

	p.buf = append(p.buf, pcm...)
}

// flushAppend moves the accumulation buffer to the upstream, or to the
// pending queue while no upstream is connected. Runs on the append cadence.
func (p *inboundPath) flushAppend() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || len(p.buf) == 0 {
		return
	}

	chunk := p.buf
	p.buf = nil
	p.cond.Broadcast()

	if p.upstream == nil {
		if len(p.pending) >= p.cfg.PendingQueueLimit {
			if p.cfg.OverflowPolicy == overflowBlock {
				// Leave the audio in the buffer; the next tick retries.
				p.buf = chunk
				p.metrics.RecordBufferOverflow("pending")
				return
			}
			p.pending = p.pending[1:]
			p.metrics.RecordBufferOverflow("pending")
			p.logger.Warn("Pending queue full, dropping oldest chunk")
		}
		p.pending = append(p.pending, chunk)
		return
	}

	p.appendLocked(chunk)
}

// appendLocked sends one chunk upstream and grows the commit window.
// Callers hold p.mu, which is what keeps appends ordered.
func (p *inboundPath) appendLocked(chunk []byte) {
	if err := p.upstream.AppendAudio(chunk); err != nil {
		p.logger.Warn("Audio append failed", slog.String("error", err.Error()))
		return
	}
	p.window += audio.PCM16Duration(len(chunk))
	p.metrics.RecordAudioAppend()
}

// maybeCommit finalizes the commit window if it holds enough audio. Runs on
// the commit cadence; an undersized window is carried to the next tick.
func (p *inboundPath) maybeCommit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.upstream == nil || p.window == 0 {
		return
	}

	if p.window < p.cfg.MinCommit {
		p.metrics.RecordShortWindow()
		p.logger.Debug("Commit window below minimum, carrying over",
			slog.Duration("window", p.window))
		return
	}

	if err := p.upstream.Commit(); err != nil {
		p.logger.Warn("Audio commit failed", slog.String("error", err.Error()))
		return
	}
	p.window = 0
	p.metrics.RecordAudioCommit()

	if err := p.upstream.RequestResponse(); err != nil {
		p.logger.Warn("Response request failed", slog.String("error", err.Error()))
	}
}

// upstreamReady attaches the upstream connection and drains the pending
// queue in arrival order.
func (p *inboundPath) upstreamReady(upstream UpstreamConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.upstream = upstream

	for _, chunk := range p.pending {
		p.appendLocked(chunk)
	}
	p.pending = nil
}

// discard throws away all queued audio. Used when the upstream is lost:
// nothing queued for it can ever be delivered.
func (p *inboundPath) discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = nil
	p.buf = nil
	p.window = 0
	p.upstream = nil
	p.cond.Broadcast()
}

// finalFlush runs once at teardown. Under the "commit" policy any remaining
// audio is appended and, if the window clears the upstream's floor, committed
// with a final response request; under "discard" it is dropped. Errors here
// are logged only, teardown continues regardless.
func (p *inboundPath) finalFlush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true
	p.cond.Broadcast()

	if p.upstream == nil || p.cfg.FinalCommit == finalCommitDiscard {
		return
	}

	if len(p.buf) > 0 {
		p.appendLocked(p.buf)
		p.buf = nil
	}

	if p.window < upstreamCommitFloor {
		if p.window > 0 {
			p.logger.Debug("Discarding final window below upstream floor",
				slog.Duration("window", p.window))
		}
		return
	}

	if err := p.upstream.Commit(); err != nil {
		p.logger.Warn("Final commit failed", slog.String("error", err.Error()))
		return
	}
	p.window = 0
	p.metrics.RecordAudioCommit()

	if err := p.upstream.RequestResponse(); err != nil {
		p.logger.Warn("Final response request failed", slog.String("error", err.Error()))
	}
}
