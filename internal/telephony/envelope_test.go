package telephony

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestParseStartMessage(t *testing.T) {
	data := []byte(`{
		"event": "start",
		"sequenceNumber": "1",
		"start": {
			"streamSid": "MZ0123456789abcdef0123456789abcdef",
			"accountSid": "AC0123456789abcdef0123456789abcdef",
			"callSid": "CA0123456789abcdef0123456789abcdef"
		}
	}`)

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Kind != KindStart {
		t.Errorf("Expected KindStart, got %v", msg.Kind)
	}
	if msg.StreamSID != "MZ0123456789abcdef0123456789abcdef" {
		t.Errorf("Unexpected streamSid: %s", msg.StreamSID)
	}
}

func TestParseMediaMessage(t *testing.T) {
	audio := []byte{0xFF, 0x7F, 0x00, 0x80}
	payload := base64.StdEncoding.EncodeToString(audio)
	data := []byte(`{"event":"media","media":{"track":"inbound","chunk":"2","payload":"` + payload + `"}}`)

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Kind != KindMedia {
		t.Errorf("Expected KindMedia, got %v", msg.Kind)
	}
	if !bytes.Equal(msg.Audio, audio) {
		t.Errorf("Expected audio %v, got %v", audio, msg.Audio)
	}
}

func TestParseMarkAndStop(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"event":"mark","mark":{"name":"response-1"}}`))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Kind != KindMark || msg.MarkName != "response-1" {
		t.Errorf("Unexpected mark message: %+v", msg)
	}

	msg, err = ParseMessage([]byte(`{"event":"stop","streamSid":"MZtest"}`))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Kind != KindStop || msg.StreamSID != "MZtest" {
		t.Errorf("Unexpected stop message: %+v", msg)
	}
}

func TestParseUnknownEventIgnored(t *testing.T) {
	tests := []string{
		`{"event":"connected","protocol":"Call","version":"1.0.0"}`,
		`{"event":"dtmf","dtmf":{"digit":"5"}}`,
		`{"event":""}`,
	}

	for _, data := range tests {
		msg, err := ParseMessage([]byte(data))
		if err != nil {
			t.Errorf("Expected no error for %s, got %v", data, err)
		}
		if msg.Kind != KindIgnored {
			t.Errorf("Expected KindIgnored for %s, got %v", data, msg.Kind)
		}
	}
}

func TestParseMalformedMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"event":"media"`},
		{"start without streamSid", `{"event":"start","start":{}}`},
		{"start without section", `{"event":"start"}`},
		{"media without section", `{"event":"media"}`},
		{"media with bad base64", `{"event":"media","media":{"payload":"!!!not-base64!!!"}}`},
		{"mark without name", `{"event":"mark","mark":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.data))
			if err == nil {
				t.Errorf("Expected error but got none")
			}
			if msg.Kind != KindIgnored {
				t.Errorf("Expected KindIgnored, got %v", msg.Kind)
			}
		})
	}
}

func TestEncodeMedia(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03}
	data, err := EncodeMedia("MZtest", audio)
	if err != nil {
		t.Fatalf("EncodeMedia failed: %v", err)
	}

	var env struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Encoded frame is not valid JSON: %v", err)
	}

	if env.Event != "media" {
		t.Errorf("Expected event 'media', got '%s'", env.Event)
	}
	if env.StreamSID != "MZtest" {
		t.Errorf("Expected streamSid 'MZtest', got '%s'", env.StreamSID)
	}

	decoded, err := base64.StdEncoding.DecodeString(env.Media.Payload)
	if err != nil {
		t.Fatalf("Payload is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, audio) {
		t.Errorf("Expected payload %v, got %v", audio, decoded)
	}
}

func TestEncodeMark(t *testing.T) {
	data, err := EncodeMark("MZtest", "response-3")
	if err != nil {
		t.Fatalf("EncodeMark failed: %v", err)
	}

	var env struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Mark      struct {
			Name string `json:"name"`
		} `json:"mark"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Encoded frame is not valid JSON: %v", err)
	}

	if env.Event != "mark" || env.StreamSID != "MZtest" || env.Mark.Name != "response-3" {
		t.Errorf("Unexpected mark frame: %s", data)
	}
}

func TestEncodeRequiresStreamSID(t *testing.T) {
	if _, err := EncodeMedia("", []byte{0x01}); err == nil {
		t.Errorf("Expected error for empty streamSid")
	}
	if _, err := EncodeMark("", "name"); err == nil {
		t.Errorf("Expected error for empty streamSid")
	}
	if _, err := EncodeMark("MZtest", ""); err == nil {
		t.Errorf("Expected error for empty mark name")
	}
}
