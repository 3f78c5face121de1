package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event names carried in the "event" field of every envelope.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// MessageKind classifies a parsed telephony envelope.
type MessageKind int

const (
	// KindIgnored covers unknown events and envelopes the bridge has no use
	// for, such as the initial "connected" notice.
	KindIgnored MessageKind = iota
	KindStart
	KindMedia
	KindMark
	KindStop
)

// Message is a parsed inbound envelope. Audio is the decoded mu-law payload
// of a media message; StreamSID is set on start and stop messages.
type Message struct {
	Kind      MessageKind
	StreamSID string
	Audio     []byte
	MarkName  string
}

// envelope mirrors the JSON wire format shared by all events.
type envelope struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID  string `json:"streamSid"`
		AccountSID string `json:"accountSid"`
		CallSID    string `json:"callSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track,omitempty"`
		Chunk     string `json:"chunk,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	StreamSID      string `json:"streamSid,omitempty"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
}

// ParseMessage parses one inbound text frame. Malformed JSON and envelopes
// missing their required section return KindIgnored with an error so the
// caller can log and keep reading; unknown event names return KindIgnored
// with no error.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Event {
	case EventStart:
		if env.Start == nil || env.Start.StreamSID == "" {
			return Message{}, fmt.Errorf("start event missing streamSid")
		}
		return Message{Kind: KindStart, StreamSID: env.Start.StreamSID}, nil

	case EventMedia:
		if env.Media == nil {
			return Message{}, fmt.Errorf("media event missing media section")
		}
		audio, err := base64.StdEncoding.DecodeString(env.Media.Payload)
		if err != nil {
			return Message{}, fmt.Errorf("media payload is not valid base64: %w", err)
		}
		return Message{Kind: KindMedia, Audio: audio}, nil

	case EventMark:
		if env.Mark == nil || env.Mark.Name == "" {
			return Message{}, fmt.Errorf("mark event missing name")
		}
		return Message{Kind: KindMark, MarkName: env.Mark.Name}, nil

	case EventStop:
		return Message{Kind: KindStop, StreamSID: env.StreamSID}, nil

	default:
		return Message{Kind: KindIgnored}, nil
	}
}

// mediaOut is the outbound media envelope addressed by stream identifier.
type mediaOut struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// markOut is the outbound mark envelope used to track playback progress.
type markOut struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// EncodeMedia builds an outbound media frame carrying mu-law audio.
func EncodeMedia(streamSID string, audio []byte) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("streamSid cannot be empty")
	}

	out := mediaOut{Event: EventMedia, StreamSID: streamSID}
	out.Media.Payload = base64.StdEncoding.EncodeToString(audio)
	return json.Marshal(out)
}

// EncodeMark builds an outbound mark frame.
func EncodeMark(streamSID, name string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("streamSid cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("mark name cannot be empty")
	}

	out := markOut{Event: EventMark, StreamSID: streamSID}
	out.Mark.Name = name
	return json.Marshal(out)
}

// String returns a human-readable representation of the message kind
func (k MessageKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMedia:
		return "media"
	case KindMark:
		return "mark"
	case KindStop:
		return "stop"
	default:
		return "ignored"
	}
}
