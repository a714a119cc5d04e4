package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrOddPCMLength is returned when 16-bit PCM data has an odd byte count.
var ErrOddPCMLength = errors.New("pcm data has odd length")

// Buffer holds decoded audio samples tagged with their format so callers can
// schedule them at the correct real-time duration.
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Duration returns the wall-clock length of the buffer when played back.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// EncodePCM16 converts float samples in [-1, 1] to 16-bit signed little-endian
// bytes. Out-of-range samples are clamped rather than wrapped.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767.0 {
			v = 32767.0
		} else if v < -32768.0 {
			v = -32768.0
		}
		n := int16(v)
		out[i*2] = byte(n)
		out[i*2+1] = byte(n >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian bytes back to float samples
// and tags the result with the given sample rate and channel count.
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("decode pcm16: %w (%d bytes)", ErrOddPCMLength, len(data))
	}
	samples := make([]float64, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		n := int16(data[i]) | (int16(data[i+1]) << 8)
		samples[i/2] = float64(n) / 32768.0
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// ToBase64 encodes raw bytes for embedding in a structured wire message.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes wire-transport text back to raw bytes.
func FromBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return data, nil
}
