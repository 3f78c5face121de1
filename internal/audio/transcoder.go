package audio

import (
	"fmt"
	"time"
)

const (
	ulawBias = 0x84
	ulawClip = 32635

	// Byte rates for the two legs: mu-law 8kHz mono and PCM16 16kHz mono.
	mulawBytesPerMs = 8
	pcm16BytesPerMs = 32
)

// Transcoder converts audio between the telephony and upstream formats.
// Implementations keep resampling state across calls, so a Transcoder is
// bound to one direction of one session and is not safe for concurrent use.
type Transcoder interface {
	Transcode(src []byte) ([]byte, error)
}

// DecodeULawSample expands a single mu-law byte to a linear PCM16 sample.
func DecodeULawSample(b byte) int16 {
	b = ^b
	sign := int16(b & 0x80)
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int16(mantissa)<<3 + ulawBias) << exponent
	sample -= ulawBias

	if sign != 0 {
		return -sample
	}
	return sample
}

// EncodeULawSample compresses a linear PCM16 sample to a mu-law byte.
func EncodeULawSample(sample int16) byte {
	sign := byte(0)
	if sample < 0 {
		sign = 0x80
		if sample == -32768 {
			sample = -32767
		}
		sample = -sample
	}
	if sample > ulawClip {
		sample = ulawClip
	}
	sample += ulawBias

	exponent := byte(7)
	for mask := int16(0x4000); mask != 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte(sample>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// uplink converts mu-law 8kHz to little-endian PCM16 at 16kHz. Doubling the
// sample rate is done by linear interpolation against the previous sample,
// carried across calls so frame boundaries stay seamless.
type uplink struct {
	prev    int16
	started bool
}

// NewUplink returns a Transcoder for the caller-to-upstream direction.
func NewUplink() Transcoder {
	return &uplink{}
}

func (u *uplink) Transcode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}

	// Each input byte yields two 16-bit output samples.
	out := make([]byte, 0, len(src)*4)
	for _, b := range src {
		sample := DecodeULawSample(b)

		interp := sample
		if u.started {
			interp = int16((int32(u.prev) + int32(sample)) / 2)
		}

		out = append(out,
			byte(interp), byte(uint16(interp)>>8),
			byte(sample), byte(uint16(sample)>>8),
		)

		u.prev = sample
		u.started = true
	}

	return out, nil
}

// downlink converts little-endian PCM16 at 16kHz to mu-law 8kHz. Halving the
// sample rate averages adjacent sample pairs; an unpaired trailing sample is
// carried into the next call.
type downlink struct {
	carry    int16
	hasCarry bool
}

// NewDownlink returns a Transcoder for the upstream-to-caller direction.
func NewDownlink() Transcoder {
	return &downlink{}
}

func (d *downlink) Transcode(src []byte) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(src))
	}
	if len(src) == 0 {
		return nil, nil
	}

	sampleCount := len(src) / 2
	out := make([]byte, 0, (sampleCount+1)/2)

	for i := 0; i < sampleCount; i++ {
		sample := int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)

		if d.hasCarry {
			avg := int16((int32(d.carry) + int32(sample)) / 2)
			out = append(out, EncodeULawSample(avg))
			d.hasCarry = false
		} else {
			d.carry = sample
			d.hasCarry = true
		}
	}

	return out, nil
}

// MulawDuration returns the playback duration of n bytes of mu-law 8kHz audio.
func MulawDuration(n int) time.Duration {
	return time.Duration(n) * time.Millisecond / mulawBytesPerMs
}

// PCM16Duration returns the playback duration of n bytes of PCM16 16kHz audio.
func PCM16Duration(n int) time.Duration {
	return time.Duration(n) * time.Millisecond / pcm16BytesPerMs
}
