package audio

import (
	"testing"
	"time"
)

func TestULawSampleRoundTrip(t *testing.T) {
	// 0x7F and 0xFF both decode to zero; encoding zero always yields 0xFF.
	for b := 0; b < 256; b++ {
		if b == 0x7F {
			continue
		}
		decoded := DecodeULawSample(byte(b))
		encoded := EncodeULawSample(decoded)
		if encoded != byte(b) {
			t.Errorf("byte 0x%02X decoded to %d, re-encoded to 0x%02X", b, decoded, encoded)
		}
	}

	if got := DecodeULawSample(0x7F); got != 0 {
		t.Errorf("Expected 0x7F to decode to 0, got %d", got)
	}
	if got := EncodeULawSample(0); got != 0xFF {
		t.Errorf("Expected 0 to encode to 0xFF, got 0x%02X", got)
	}
}

func TestEncodeULawSampleClipping(t *testing.T) {
	if EncodeULawSample(32767) != EncodeULawSample(ulawClip) {
		t.Errorf("Expected samples above the clip point to encode identically")
	}
	if EncodeULawSample(-32768) != EncodeULawSample(-32767) {
		t.Errorf("Expected minimum sample to encode like -32767")
	}
}

func TestUplinkOutputLength(t *testing.T) {
	up := NewUplink()

	out, err := up.Transcode(make([]byte, 160))
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	// 160 mu-law bytes is 20ms; at PCM16 16kHz that is 640 bytes.
	if len(out) != 640 {
		t.Errorf("Expected 640 output bytes, got %d", len(out))
	}

	out, err = up.Transcode(nil)
	if err != nil {
		t.Fatalf("Transcode of empty input failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected no output for empty input, got %d bytes", len(out))
	}
}

func TestUplinkInterpolation(t *testing.T) {
	up := NewUplink()

	// A constant signal must stay constant through interpolation.
	silence := make([]byte, 16)
	for i := range silence {
		silence[i] = 0xFF
	}

	out, err := up.Transcode(silence)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	for i := 0; i < len(out); i += 2 {
		sample := int16(uint16(out[i]) | uint16(out[i+1])<<8)
		if sample != 0 {
			t.Fatalf("Expected silence at sample %d, got %d", i/2, sample)
		}
	}
}

func TestUplinkStateAcrossCalls(t *testing.T) {
	// Feeding one buffer in two halves must produce the same samples as one call.
	input := []byte{0x00, 0x20, 0x40, 0x60, 0x80, 0xA0, 0xC0, 0xE0}

	whole := NewUplink()
	wantOut, err := whole.Transcode(input)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	split := NewUplink()
	first, err := split.Transcode(input[:4])
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	second, err := split.Transcode(input[4:])
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	gotOut := append(first, second...)
	if len(gotOut) != len(wantOut) {
		t.Fatalf("Expected %d bytes, got %d", len(wantOut), len(gotOut))
	}
	for i := range wantOut {
		if gotOut[i] != wantOut[i] {
			t.Fatalf("Output diverges at byte %d: want 0x%02X, got 0x%02X", i, wantOut[i], gotOut[i])
		}
	}
}

func TestDownlinkOutputLength(t *testing.T) {
	down := NewDownlink()

	// 640 PCM16 bytes at 16kHz is 20ms; at mu-law 8kHz that is 160 bytes.
	out, err := down.Transcode(make([]byte, 640))
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if len(out) != 160 {
		t.Errorf("Expected 160 output bytes, got %d", len(out))
	}
}

func TestDownlinkOddLength(t *testing.T) {
	down := NewDownlink()
	if _, err := down.Transcode(make([]byte, 5)); err == nil {
		t.Errorf("Expected error for odd-length pcm16 payload")
	}
}

func TestDownlinkCarriesUnpairedSample(t *testing.T) {
	down := NewDownlink()

	// Three samples: the third has no pair yet and must be held back.
	out, err := down.Transcode(make([]byte, 6))
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 output byte, got %d", len(out))
	}

	// One more sample completes the held pair.
	out, err = down.Transcode(make([]byte, 2))
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected the carried sample to produce 1 output byte, got %d", len(out))
	}
}

func TestRoundTripTolerance(t *testing.T) {
	up := NewUplink()
	down := NewDownlink()

	// A slow ramp should survive the 8k->16k->8k round trip within
	// mu-law quantization error.
	input := make([]byte, 64)
	for i := range input {
		input[i] = EncodeULawSample(int16(i * 100))
	}

	pcm, err := up.Transcode(input)
	if err != nil {
		t.Fatalf("Uplink transcode failed: %v", err)
	}

	back, err := down.Transcode(pcm)
	if err != nil {
		t.Fatalf("Downlink transcode failed: %v", err)
	}
	if len(back) != len(input) {
		t.Fatalf("Expected %d bytes back, got %d", len(input), len(back))
	}

	for i := 4; i < len(input); i++ {
		want := DecodeULawSample(input[i])
		got := DecodeULawSample(back[i])
		diff := int32(want) - int32(got)
		if diff < 0 {
			diff = -diff
		}
		if diff > 512 {
			t.Errorf("Sample %d drifted by %d (want %d, got %d)", i, diff, want, got)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	if got := MulawDuration(160); got != 20*time.Millisecond {
		t.Errorf("Expected 20ms for 160 mu-law bytes, got %v", got)
	}
	if got := MulawDuration(800); got != 100*time.Millisecond {
		t.Errorf("Expected 100ms for 800 mu-law bytes, got %v", got)
	}
	if got := PCM16Duration(640); got != 20*time.Millisecond {
		t.Errorf("Expected 20ms for 640 pcm16 bytes, got %v", got)
	}
	if got := PCM16Duration(0); got != 0 {
		t.Errorf("Expected zero duration for empty audio, got %v", got)
	}
}
