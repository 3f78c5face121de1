package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/c-frg/ai-receptionist-bridge/internal/config"
)

const defaultEventBuffer = 64

// EventKind classifies a normalized upstream event.
type EventKind int

const (
	// EventAudioDelta carries a decoded chunk of synthesized speech.
	EventAudioDelta EventKind = iota
	// EventResponseCompleted marks the end of one model response.
	EventResponseCompleted
	// EventError carries a non-fatal error reported by the upstream.
	EventError
)

// Event is one normalized upstream event. Several historical wire spellings
// collapse onto the same kind, so consumers never see raw event names.
type Event struct {
	Kind  EventKind
	Audio []byte
	Err   error
}

// serverEvent is the raw wire shape of an upstream event. Only the fields
// the bridge cares about are decoded; everything else is ignored.
type serverEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
	Audio string `json:"audio,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createResponseMessage struct {
	Type     string          `json:"type"`
	Response *responseParams `json:"response,omitempty"`
}

type responseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// Client is one WebSocket connection to the realtime speech service. A
// Client belongs to exactly one call session.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan Event

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial connects to the realtime service, configures the session with the
// declared audio formats, and starts the receive loop. The returned client
// delivers normalized events on Events() until the connection ends, at which
// point the channel closes.
func Dial(ctx context.Context, cfg *config.RealtimeConfig, audioCfg *config.AudioConfig, logger *slog.Logger) (*Client, error) {
	wsURL := fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	clientCtx, clientCancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		logger: logger,
		events: make(chan Event, defaultEventBuffer),
		ctx:    clientCtx,
		cancel: clientCancel,
	}

	if err := c.sendSessionUpdate(cfg, audioCfg); err != nil {
		clientCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("realtime session update: %w", err)
	}

	if cfg.Greeting != "" {
		if err := c.writeJSON(createResponseMessage{
			Type:     "response.create",
			Response: &responseParams{Instructions: cfg.Greeting},
		}); err != nil {
			clientCancel()
			conn.Close(websocket.StatusInternalError, "greeting failed")
			return nil, fmt.Errorf("realtime greeting: %w", err)
		}
	}

	go c.receiveLoop()

	return c, nil
}

// sendSessionUpdate configures voice, instructions, audio formats, and turn
// detection for the session. Both directions carry the configured upstream
// encoding.
func (c *Client) sendSessionUpdate(cfg *config.RealtimeConfig, audioCfg *config.AudioConfig) error {
	params := sessionParams{
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  audioCfg.UpstreamEncoding,
		OutputAudioFormat: audioCfg.UpstreamEncoding,
	}
	if cfg.TurnDetection.Type != "" && cfg.TurnDetection.Type != "none" {
		params.TurnDetection = &turnDetection{
			Type:              cfg.TurnDetection.Type,
			Threshold:         cfg.TurnDetection.Threshold,
			SilenceDurationMs: cfg.TurnDetection.SilenceDurationMs,
		}
	}
	return c.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *Client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel and closes it when the connection ends.
func (c *Client) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug("Realtime connection closed",
					slog.String("error", err.Error()))
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		c.handleServerEvent(&evt)
	}
}

func (c *Client) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	// Audio delta spellings have changed across API revisions; all of them
	// carry base64 PCM16 in either the delta or audio field.
	case "response.audio.delta", "response.output_audio.delta", "response.audio_delta":
		payload := evt.Delta
		if payload == "" {
			payload = evt.Audio
		}
		if payload == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(payload)
		if err != nil || len(audio) == 0 {
			return
		}
		c.deliver(Event{Kind: EventAudioDelta, Audio: audio})

	case "response.done", "response.completed", "response.audio.done":
		c.deliver(Event{Kind: EventResponseCompleted})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		c.deliver(Event{Kind: EventError, Err: fmt.Errorf("realtime: %s", msg)})
	}
}

func (c *Client) deliver(evt Event) {
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}

// Events returns the channel on which normalized upstream events arrive.
// The channel closes when the connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// AppendAudio delivers a chunk of PCM16 audio to the upstream input buffer.
func (c *Client) AppendAudio(audio []byte) error {
	return c.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// Commit finalizes the audio accumulated since the last commit.
func (c *Client) Commit() error {
	return c.writeJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// RequestResponse asks the model to respond to the committed audio.
func (c *Client) RequestResponse() error {
	return c.writeJSON(map[string]string{"type": "response.create"})
}

// CancelResponse stops any in-flight model response.
func (c *Client) CancelResponse() error {
	return c.writeJSON(map[string]string{"type": "response.cancel"})
}

// Close terminates the connection and releases all resources. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
