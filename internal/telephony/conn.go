package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
)

// Conn wraps a telephony-side WebSocket connection. Reads decode inbound
// envelopes; writes are serialized so media and mark frames from different
// goroutines do not interleave.
type Conn struct {
	ws      *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an accepted WebSocket connection.
func NewConn(ws *websocket.Conn, logger *slog.Logger, m *metrics.Metrics) *Conn {
	return &Conn{ws: ws, logger: logger, metrics: m}
}

// ReadMessage blocks until the next parseable envelope arrives. Frames that
// fail to parse are logged and skipped; a transport error ends the stream.
func (c *Conn) ReadMessage(ctx context.Context) (Message, error) {
	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			return Message{}, fmt.Errorf("telephony read: %w", err)
		}

		if msgType != websocket.MessageText {
			c.logger.Warn("Dropping non-text frame from telephony leg",
				slog.Int("bytes", len(data)))
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.metrics.RecordParseError()
			c.logger.Warn("Dropping malformed telephony envelope",
				slog.String("error", err.Error()))
			continue
		}

		return msg, nil
	}
}

// WriteMedia sends one mu-law audio frame to the caller.
func (c *Conn) WriteMedia(ctx context.Context, streamSID string, audio []byte) error {
	data, err := EncodeMedia(streamSID, audio)
	if err != nil {
		return err
	}
	return c.write(ctx, data)
}

// WriteMark sends a playback mark to the caller.
func (c *Conn) WriteMark(ctx context.Context, streamSID, name string) error {
	data, err := EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return c.write(ctx, data)
}

func (c *Conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("telephony write: %w", err)
	}
	return nil
}

// Close shuts down the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, "session ended")
	})
	return nil
}
