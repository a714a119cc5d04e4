// Package session owns the realtime voice session lifecycle: it mediates
// between microphone capture, the duplex channel, the playback scheduler, and
// the tool dispatcher, and drives the retry/backoff state machine.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-ai/voice-engine/pkg/capture"
	"github.com/mentora-ai/voice-engine/pkg/live"
	"github.com/mentora-ai/voice-engine/pkg/playback"
)

// captureSource is what the lifecycle manager needs from pkg/capture.
type captureSource interface {
	Frames() <-chan capture.Frame
	Arm()
	Disarm()
	Level() float64
	NotifyPlayback()
	Close() error
}

// liveChannel is what the lifecycle manager needs from pkg/live.
type liveChannel interface {
	SendAudio(ctx context.Context, pcm []byte) error
	SendToolResults(ctx context.Context, results []live.ToolResult) error
	Recv(ctx context.Context) (*live.ServerMessage, error)
	Close() error
}

// player is what the lifecycle manager needs from pkg/playback.
type player interface {
	Enqueue(pcm []byte, sampleRate int) error
	Interrupt()
	Close() error
}

// Session runs one voice conversation. Exactly one session owns the
// microphone and the output device at a time; teardown fully releases both
// before any new session (or retry attempt) acquires them again.
type Session struct {
	id     string
	cfg    Config
	logger Logger
	tools  *ToolRegistry
	policy *RetryPolicy

	openCapture func(capture.Config) (captureSource, error)
	dial        func(context.Context, live.Config) (liveChannel, error)
	newPlayer   func() (player, error)

	events chan Event

	mu         sync.Mutex
	state      State
	failReason FailReason
	alive      bool
	micWanted  bool
	cancel     context.CancelFunc

	src captureSource
	ch  liveChannel
	pl  player
}

// New creates a session in StateIdle. A nil logger disables logging; a nil
// registry means every tool call is answered with a failure result.
func New(cfg Config, tools *ToolRegistry, logger Logger) *Session {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if tools == nil {
		tools = NewToolRegistry(logger)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		logger:    logger,
		tools:     tools,
		policy:    NewRetryPolicy(),
		events:    make(chan Event, cfg.EventBuffer),
		state:     StateIdle,
		micWanted: true,
	}
	s.openCapture = func(c capture.Config) (captureSource, error) { return capture.Open(c) }
	s.dial = func(ctx context.Context, lc live.Config) (liveChannel, error) { return live.Dial(ctx, lc) }
	s.newPlayer = func() (player, error) {
		sched := playback.NewScheduler(cfg.Playback)
		dev, err := playback.OpenDevice(sched, s.notifyCapture)
		if err != nil {
			sched.Close()
			return nil, err
		}
		return &devicePlayer{sched: sched, dev: dev}, nil
	}
	return s
}

// ID returns the session identifier used to tag frames and log lines.
func (s *Session) ID() string { return s.id }

// Events returns the stream consumed by the UI layer.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailureReason is meaningful only in StateFailed.
func (s *Session) FailureReason() FailReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReason
}

// Start drives the session toward StateLive. It returns immediately; progress
// is reported through Events.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateFailed && s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.alive = true
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Retry is the user-triggered transition out of StateFailed. The retry
// budget resets to zero.
func (s *Session) Retry(ctx context.Context) error {
	if s.State() != StateFailed {
		return ErrNotFailed
	}
	s.policy.Reset()
	return s.Start(ctx)
}

// SetMicEnabled toggles whether captured frames are forwarded to the remote
// side. It is user-controlled and independent of connection state: the
// setting survives reconnects.
func (s *Session) SetMicEnabled(on bool) {
	s.mu.Lock()
	s.micWanted = on
	src := s.src
	s.mu.Unlock()

	if src != nil {
		if on {
			src.Arm()
		} else {
			src.Disarm()
		}
	}
}

// MicEnabled reports the user's mute setting.
func (s *Session) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micWanted
}

// Stop tears the session down: channel first, then capture, then playback.
// After Stop begins, every late asynchronous continuation is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	cancel := s.cancel
	src, ch, pl := s.src, s.ch, s.pl
	s.src, s.ch, s.pl = nil, nil, nil
	if s.state != StateFailed {
		s.state = StateClosed
	}
	close(s.events)
	s.events = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
	if src != nil {
		src.Disarm()
		src.Close()
	}
	if pl != nil {
		pl.Close()
	}
	s.logger.Info("session stopped", "session", s.id)
}

// run is the retry loop: attempt a full connect, classify any failure, and
// either back off and try again or fail terminally.
func (s *Session) run(ctx context.Context) {
	for {
		err := s.attempt(ctx)
		if ctx.Err() != nil || !s.isAlive() {
			return
		}
		if err == nil {
			// Server ended the conversation cleanly.
			s.setState(StateClosed)
			return
		}

		kind := Classify(err)
		switch kind {
		case KindPermissionDenied:
			s.fail(ReasonMicrophoneDenied, err)
			return
		case KindModelUnavailable:
			s.fail(ReasonModelUnavailable, err)
			return
		}

		delay, retry := s.policy.Next(kind)
		if !retry {
			s.fail(ReasonRetriesExhausted, err)
			return
		}

		s.logger.Warn("session error, scheduling retry",
			"session", s.id, "kind", kind.String(), "attempt", s.policy.Count(), "delay", delay, "error", err)
		s.emit(Retrying, map[string]any{"attempt": s.policy.Count(), "delay": delay.String()})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// attempt performs one full acquire-connect-pump cycle. It owns all three
// resources for its duration and guarantees they are closed before returning
// (channel first, then capture, then playback), so the next attempt starts
// from released devices.
func (s *Session) attempt(ctx context.Context) error {
	s.setState(StateAcquiringMic)

	capCfg := s.cfg.Capture
	capCfg.SessionID = s.id
	src, err := s.openCapture(capCfg)
	if err != nil {
		return err
	}

	pl, err := s.newPlayer()
	if err != nil {
		src.Close()
		return err
	}

	s.setState(StateConnecting)
	ch, err := s.dial(ctx, s.liveConfig())
	if err != nil {
		pl.Close()
		src.Close()
		return err
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		ch.Close()
		src.Close()
		pl.Close()
		return nil
	}
	s.src, s.ch, s.pl = src, ch, pl
	armed := s.micWanted
	s.mu.Unlock()

	if armed {
		src.Arm()
	}
	s.setState(StateLive)

	attemptCtx, cancel := context.WithCancel(ctx)
	go s.sendLoop(attemptCtx, src, ch)
	go s.levelLoop(attemptCtx, src)

	err = s.recvLoop(attemptCtx, ch, pl)

	cancel()
	s.mu.Lock()
	s.src, s.ch, s.pl = nil, nil, nil
	s.mu.Unlock()
	ch.Close()
	src.Close()
	pl.Close()
	return err
}

// sendLoop forwards armed capture frames over the channel in capture order.
func (s *Session) sendLoop(ctx context.Context, src captureSource, ch liveChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-src.Frames():
			if !ok || !s.isAlive() {
				return
			}
			if err := ch.SendAudio(ctx, frame.PCM); err != nil {
				if s.isAlive() && ctx.Err() == nil {
					s.logger.Warn("send audio failed", "session", s.id, "error", err)
				}
				return
			}
		}
	}
}

// recvLoop handles every inbound message until the channel errors or the
// server says goodbye. Tool calls are dispatched on a separate worker so a
// slow handler never blocks audio streaming.
func (s *Session) recvLoop(ctx context.Context, ch liveChannel, pl player) error {
	toolCh := make(chan []live.ToolCall, 16)
	defer close(toolCh)
	go s.toolLoop(ctx, ch, toolCh)

	for {
		msg, err := ch.Recv(ctx)
		if err != nil {
			if !s.isAlive() || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !s.isAlive() {
			return nil
		}

		if msg.Interrupted {
			pl.Interrupt()
			s.emit(Interrupted, nil)
		}

		for _, pcm := range msg.Audio {
			if err := pl.Enqueue(pcm, s.cfg.Playback.SampleRate); err != nil {
				// Malformed payloads are dropped; the session continues.
				s.logger.Warn("dropping malformed audio payload", "session", s.id, "error", err)
				continue
			}
			s.notifyCapture()
		}
		if msg.DroppedAudioParts > 0 {
			s.logger.Warn("server sent undecodable audio parts",
				"session", s.id, "count", msg.DroppedAudioParts)
		}

		if len(msg.ToolCalls) > 0 {
			select {
			case toolCh <- msg.ToolCalls:
			case <-ctx.Done():
				return nil
			}
		}

		if msg.GoAway {
			s.logger.Info("server closed the session", "session", s.id)
			return nil
		}
	}
}

// toolLoop processes tool call batches in receipt order.
func (s *Session) toolLoop(ctx context.Context, ch liveChannel, calls <-chan []live.ToolCall) {
	for batch := range calls {
		if !s.isAlive() {
			return
		}
		results := s.tools.DispatchAll(ctx, batch)
		for _, call := range batch {
			s.emit(ToolInvoked, call.Name)
		}
		if err := ch.SendToolResults(ctx, results); err != nil {
			if s.isAlive() && ctx.Err() == nil {
				s.logger.Warn("send tool results failed", "session", s.id, "error", err)
			}
			return
		}
	}
}

// levelLoop publishes the mic level for visualization.
func (s *Session) levelLoop(ctx context.Context, src captureSource) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.isAlive() {
				return
			}
			s.emit(MicLevel, src.Level())
		}
	}
}

func (s *Session) liveConfig() live.Config {
	return live.Config{
		Endpoint:   s.cfg.Endpoint,
		APIKey:     s.cfg.APIKey,
		Model:      s.cfg.Model,
		Voice:      s.cfg.Voice,
		SystemText: s.cfg.SystemText,
		Tools:      s.cfg.Tools,
	}
}

func (s *Session) notifyCapture() {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src != nil {
		src.NotifyPlayback()
	}
}

func (s *Session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if !s.alive || s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	s.logger.Info("session state", "session", s.id, "state", st.String())
	s.emit(StateChanged, st)
}

func (s *Session) fail(reason FailReason, err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.failReason = reason
	s.mu.Unlock()

	s.logger.Error("session failed", "session", s.id, "reason", string(reason), "error", err)
	s.emit(StateChanged, StateFailed)
	s.emit(ErrorEvent, reason.Message())
}

// emit never blocks: if the consumer is behind, the event is dropped. Events
// are advisory for the UI; correctness never depends on them.
func (s *Session) emit(t EventType, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil || !s.alive {
		return
	}
	select {
	case s.events <- Event{Type: t, SessionID: s.id, Data: data}:
	default:
		s.logger.Debug("event dropped", "session", s.id, "type", string(t))
	}
}

// devicePlayer binds a Scheduler to a real output device.
type devicePlayer struct {
	sched *playback.Scheduler
	dev   *playback.Device
}

func (p *devicePlayer) Enqueue(pcm []byte, sampleRate int) error {
	return p.sched.Enqueue(pcm, sampleRate)
}

func (p *devicePlayer) Interrupt() { p.sched.Interrupt() }

func (p *devicePlayer) Close() error {
	err := p.dev.Close()
	p.sched.Close()
	return err
}
