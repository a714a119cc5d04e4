package session

import (
	"errors"
	"strings"

	"github.com/mentora-ai/voice-engine/pkg/audio"
	"github.com/mentora-ai/voice-engine/pkg/capture"
)

var (
	// ErrAlreadyStarted is returned when starting a session that is running.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotFailed is returned when Retry is called outside StateFailed.
	ErrNotFailed = errors.New("session is not in a failed state")

	// ErrModelUnavailable marks a terminal, not-user-fixable endpoint error.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Kind classifies an error for the retry policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindDeviceUnavailable
	KindTransientNetwork
	KindModelUnavailable
	KindProtocol
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindTransientNetwork:
		return "transient_network"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindProtocol:
		return "protocol_error"
	case KindDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether errors of this kind must never be auto-retried.
func (k Kind) Terminal() bool {
	return k == KindPermissionDenied || k == KindModelUnavailable
}

// transientMarkers match connection-level errors that a backoff retry can
// reasonably recover from.
var transientMarkers = []string{
	"network",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"503",
	"service unavailable",
	"internal error",
	"deadline exceeded",
	"timeout",
	"temporarily",
}

var modelMarkers = []string{
	"model not found",
	"unsupported model",
	"unknown model",
	"quota exceeded",
}

// Classify maps an error to its Kind, in the priority order the lifecycle
// manager depends on: permission first, then known-terminal endpoint errors,
// then transient markers, then everything else.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, capture.ErrPermissionDenied) {
		return KindPermissionDenied
	}
	if errors.Is(err, ErrModelUnavailable) {
		return KindModelUnavailable
	}
	if errors.Is(err, capture.ErrDeviceUnavailable) {
		return KindDeviceUnavailable
	}
	if errors.Is(err, audio.ErrOddPCMLength) {
		return KindDecode
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range modelMarkers {
		if strings.Contains(msg, marker) {
			return KindModelUnavailable
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return KindTransientNetwork
		}
	}
	return KindUnknown
}
