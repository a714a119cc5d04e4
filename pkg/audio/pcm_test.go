package audio

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float64{0, 0.25, -0.25, 0.5, -0.5, 0.999, -0.999, 1.0, -1.0}

	encoded := EncodePCM16(samples)
	if len(encoded) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(encoded))
	}

	buf, err := DecodePCM16(encoded, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}

	const tolerance = 1.0 / 32768.0
	for i, want := range samples {
		got := buf.Samples[i]
		if math.Abs(got-want) > tolerance {
			t.Errorf("sample %d: got %f, want %f within %f", i, got, want, tolerance)
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	encoded := EncodePCM16([]float64{2.0, -2.0})

	buf, err := DecodePCM16(encoded, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Samples[0] < 0.999 {
		t.Errorf("positive overflow should clamp near 1.0, got %f", buf.Samples[0])
	}
	if buf.Samples[1] > -0.999 {
		t.Errorf("negative overflow should clamp near -1.0, got %f", buf.Samples[1])
	}
}

func TestDecodeOddLength(t *testing.T) {
	_, err := DecodePCM16([]byte{0x01, 0x02, 0x03}, 16000, 1)
	if !errors.Is(err, ErrOddPCMLength) {
		t.Fatalf("expected ErrOddPCMLength, got %v", err)
	}
}

func TestZeroFrameRoundTrip(t *testing.T) {
	samples := make([]float64, 4096)

	buf, err := DecodePCM16(EncodePCM16(samples), 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != 4096 {
		t.Fatalf("expected 4096 samples, got %d", len(buf.Samples))
	}
	for i, s := range buf.Samples {
		if s != 0 {
			t.Fatalf("sample %d should be zero, got %f", i, s)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	buf := &Buffer{Samples: make([]float64, 24000), SampleRate: 24000, Channels: 1}
	if d := buf.Duration(); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	buf = &Buffer{Samples: make([]float64, 6000), SampleRate: 24000, Channels: 1}
	if d := buf.Duration(); d != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", d)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x7f, 0x80, 0xff}

	decoded, err := FromBase64(ToBase64(data))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(data) {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, data)
	}

	if _, err := FromBase64("not!!valid!!"); err == nil {
		t.Error("expected error for malformed base64")
	}
}
