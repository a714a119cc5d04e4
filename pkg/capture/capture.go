// Package capture acquires microphone audio through malgo (miniaudio) and
// emits fixed-size PCM16 frames while armed.
package capture

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	// ErrPermissionDenied means microphone access was refused. It is terminal
	// and requires user action; callers must not auto-retry.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable means the device could not be acquired right now.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrSourceClosed is returned when using a source after Close.
	ErrSourceClosed = errors.New("capture source closed")
)

// Config holds capture parameters. The engine supports exactly one mono
// 16 kHz stream, but the values stay configurable for tests.
type Config struct {
	SessionID  string
	SampleRate int
	Channels   int
	// FrameSize is the number of samples per emitted frame.
	FrameSize   int
	FrameBuffer int
	// EchoHold is how long after local playback the echo guard stays active.
	EchoHold time.Duration
	// EchoGateLevel is the RMS level a frame must exceed to pass through the
	// echo guard; quieter input during playback is assumed to be speaker echo.
	EchoGateLevel float64
}

// DefaultConfig returns the capture parameters the remote endpoint expects.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		FrameSize:     4096,
		FrameBuffer:   32,
		EchoHold:      250 * time.Millisecond,
		EchoGateLevel: 0.15,
	}
}

// Frame is one fixed-size chunk of captured PCM16 little-endian audio,
// tagged with the session it belongs to.
type Frame struct {
	SessionID string
	PCM       []byte
}

// Source owns the microphone device. Frames are read continuously to keep
// the pipeline warm; they are only forwarded downstream while armed.
type Source struct {
	cfg Config

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	frames chan Frame

	mu           sync.Mutex
	armed        bool
	closed       bool
	level        float64
	lastPlayback time.Time
	pending      []byte
}

// Open acquires the default microphone and starts reading. The source starts
// disarmed. On any setup failure every resource acquired so far is released,
// so repeated open/close cycles never leak device handles.
func Open(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("capture: invalid config: rate=%d frame=%d", cfg.SampleRate, cfg.FrameSize)
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 32
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceErr(err)
	}

	s := &Source{
		cfg:    cfg,
		mctx:   mctx,
		frames: make(chan Frame, cfg.FrameBuffer),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onRecv := func(_, pInput []byte, frameCount uint32) {
		if frameCount == 0 || pInput == nil {
			return
		}
		s.ingest(pInput)
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceErr(err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceErr(err)
	}

	return s, nil
}

// Frames returns the channel of captured frames. It is closed by Close.
func (s *Source) Frames() <-chan Frame {
	return s.frames
}

// Arm starts forwarding captured frames downstream.
func (s *Source) Arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

// Disarm stops forwarding. Frames are still read and metered so the device
// pipeline stays warm and the level meter keeps updating.
func (s *Source) Disarm() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

// Armed reports whether frames are currently forwarded.
func (s *Source) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Level returns the RMS of the most recent input, for visualization.
func (s *Source) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// NotifyPlayback marks that local playback just produced audio. For the
// EchoHold window, frames below EchoGateLevel are muted before forwarding so
// the engine does not stream raw speaker echo back to the remote side.
func (s *Source) NotifyPlayback() {
	s.mu.Lock()
	s.lastPlayback = time.Now()
	s.mu.Unlock()
}

// Close stops and releases the device. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
	}
	if s.mctx != nil {
		s.mctx.Uninit()
		s.mctx.Free()
	}
	close(s.frames)
	return nil
}

// ingest accumulates raw device bytes and emits fixed-size frames. It runs on
// the audio callback path and must never block.
func (s *Source) ingest(pInput []byte) {
	rms := rmsOfPCM16(pInput)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.level = rms

	muted := time.Since(s.lastPlayback) < s.cfg.EchoHold && rms < s.cfg.EchoGateLevel
	armed := s.armed

	s.pending = append(s.pending, pInput...)
	frameBytes := s.cfg.FrameSize * 2 * s.cfg.Channels

	var out []Frame
	for len(s.pending) >= frameBytes {
		if armed {
			pcm := make([]byte, frameBytes)
			if !muted {
				copy(pcm, s.pending[:frameBytes])
			}
			out = append(out, Frame{SessionID: s.cfg.SessionID, PCM: pcm})
		}
		s.pending = s.pending[frameBytes:]
	}
	s.mu.Unlock()

	for _, f := range out {
		select {
		case s.frames <- f:
		default:
			// Consumer is behind; dropping is better than blocking the
			// device callback.
		}
	}
}

func rmsOfPCM16(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)/2))
}

func classifyDeviceErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
