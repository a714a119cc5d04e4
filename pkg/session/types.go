package session

import (
	"github.com/mentora-ai/voice-engine/pkg/capture"
	"github.com/mentora-ai/voice-engine/pkg/live"
	"github.com/mentora-ai/voice-engine/pkg/playback"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateAcquiringMic
	StateConnecting
	StateLive
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMic:
		return "acquiring_microphone"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailReason identifies why a session ended in StateFailed.
type FailReason string

const (
	ReasonMicrophoneDenied FailReason = "MICROPHONE_DENIED"
	ReasonModelUnavailable FailReason = "MODEL_UNAVAILABLE"
	ReasonRetriesExhausted FailReason = "RETRIES_EXHAUSTED"
)

// Message returns the single human-readable line surfaced to the user.
func (r FailReason) Message() string {
	switch r {
	case ReasonMicrophoneDenied:
		return "Microphone access was denied. Allow microphone access and retry."
	case ReasonModelUnavailable:
		return "The voice model is currently unavailable."
	case ReasonRetriesExhausted:
		return "Connection lost. Check your network and retry."
	default:
		return "The voice session ended unexpectedly."
	}
}

type EventType string

const (
	StateChanged EventType = "STATE_CHANGED"
	MicLevel     EventType = "MIC_LEVEL"
	Interrupted  EventType = "INTERRUPTED"
	ToolInvoked  EventType = "TOOL_INVOKED"
	Retrying     EventType = "RETRYING"
	ErrorEvent   EventType = "ERROR"
)

// Event is what the UI layer consumes from Session.Events.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Config is the surface exposed to the product call sites. Persona text,
// tool declarations, and voice selection come from the prompting layer and
// are treated as opaque here.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Voice      string
	SystemText string
	Tools      []live.FunctionDeclaration

	Capture  capture.Config
	Playback playback.Config

	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		Capture:     capture.DefaultConfig(),
		Playback:    playback.DefaultConfig(),
		EventBuffer: 256,
	}
}
