package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewWAVBuffer(t *testing.T) {
	pcm := make([]byte, 48000) // 1s of 24kHz mono s16le
	wav := NewWAVBuffer(pcm, 24000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("missing RIFF/WAVE markers")
	}

	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 24000 {
		t.Errorf("expected sample rate 24000, got %d", sampleRate)
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	if byteRate != 48000 {
		t.Errorf("expected byte rate 48000, got %d", byteRate)
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataLen) != len(pcm) {
		t.Errorf("expected data length %d, got %d", len(pcm), dataLen)
	}
}
