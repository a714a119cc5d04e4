// Package playback renders server-generated speech as a continuous stream.
// Chunks arrive at irregular network intervals but are scheduled back-to-back
// on a shared timeline so speech has no audible gaps, and the whole queue can
// be cancelled instantly on barge-in.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mentora-ai/voice-engine/pkg/audio"
)

// ErrSchedulerClosed is returned when enqueueing after Close.
var ErrSchedulerClosed = errors.New("playback scheduler closed")

// Config holds output parameters. The engine plays exactly one mono 24 kHz
// stream.
type Config struct {
	SampleRate int
	Channels   int
}

// DefaultConfig returns the output format produced by the remote endpoint.
func DefaultConfig() Config {
	return Config{SampleRate: 24000, Channels: 1}
}

type chunk struct {
	pcm   []byte
	start time.Time
	dur   time.Duration
	read  int
}

// Scheduler owns the playback timeline. The output device drains it through
// Fill; everything else is bookkeeping around the clock offset that marks the
// end of already-scheduled audio.
type Scheduler struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	offset time.Time
	queue  []*chunk
	closed bool
}

// Option adjusts a Scheduler, mainly for tests.
type Option func(*Scheduler)

// WithClock replaces the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates an empty timeline.
func NewScheduler(cfg Config, opts ...Option) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	s := &Scheduler{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue decodes a PCM16 payload and appends it to the timeline. The chunk
// starts at max(now, offset): back-to-back with the previous chunk, or
// immediately if the network stalled long enough for the timeline to drain.
// Arrival order is preserved; chunks never overlap and never reorder.
func (s *Scheduler) Enqueue(pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = s.cfg.SampleRate
	}
	buf, err := audio.DecodePCM16(pcm, sampleRate, s.cfg.Channels)
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	dur := buf.Duration()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}

	start := s.now()
	if s.offset.After(start) {
		start = s.offset
	}

	data := make([]byte, len(pcm))
	copy(data, pcm)
	s.queue = append(s.queue, &chunk{pcm: data, start: start, dur: dur})
	s.offset = start.Add(dur)
	return nil
}

// Interrupt drops every scheduled chunk and resets the timeline to now.
// Idempotent; safe with zero chunks outstanding.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.queue = nil
	s.offset = s.now()
	s.mu.Unlock()
}

// Offset returns the end of already-scheduled audio. It never moves backward
// except on Interrupt.
func (s *Scheduler) Offset() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Pending returns the number of chunks not yet fully played.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Fill writes scheduled audio into out, zero-filling any region for which no
// chunk is due yet. It is called from the output device's data callback and
// must never block. It reports the number of non-silence bytes written.
func (s *Scheduler) Fill(out []byte) int {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	written := 0
	for written < len(out) && len(s.queue) > 0 {
		c := s.queue[0]
		if c.start.After(now) {
			break
		}
		n := copy(out[written:], c.pcm[c.read:])
		c.read += n
		written += n
		if c.read >= len(c.pcm) {
			s.queue = s.queue[1:]
		}
	}
	return written
}

// Close interrupts the timeline and rejects further chunks.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.queue = nil
	s.offset = s.now()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ScheduledStarts returns the start times of all pending chunks in order.
// Exposed for tests and diagnostics.
func (s *Scheduler) ScheduledStarts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	starts := make([]time.Time, len(s.queue))
	for i, c := range s.queue {
		starts[i] = c.start
	}
	return starts
}
