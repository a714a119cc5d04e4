// Package live maintains the persistent duplex connection to the remote
// multimodal endpoint: session setup, outbound audio frames, inbound audio
// and tool calls, and the interruption signal.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mentora-ai/voice-engine/pkg/audio"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultModel    = "models/gemini-2.0-flash-exp"
	defaultVoice    = "Puck"

	defaultReadLimit  = 10 * 1024 * 1024
	defaultAckTimeout = 10 * time.Second
)

// ErrSetupNotAcknowledged means the server closed or errored before
// confirming the session configuration.
var ErrSetupNotAcknowledged = errors.New("live: setup not acknowledged")

// Config describes one duplex session. Persona text, tool declarations, and
// voice selection are supplied by the caller and treated as opaque.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Voice      string
	SystemText string
	Tools      []FunctionDeclaration

	ReadLimit  int64
	AckTimeout time.Duration
}

// Channel is an open duplex connection. Reads happen from a single goroutine
// via Recv; writes are serialized internally and may come from any goroutine.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects, sends the session setup, and waits for the server's
// acknowledgment before returning.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("live: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("live: dial: %w", err)
	}
	conn.SetReadLimit(cfg.ReadLimit)

	c := &Channel{conn: conn}

	if err := c.sendSetup(ctx, cfg); err != nil {
		conn.Close(websocket.StatusAbnormalClosure, "setup failed")
		return nil, err
	}

	ackCtx, cancel := context.WithTimeout(ctx, cfg.AckTimeout)
	defer cancel()
	for {
		msg, err := c.Recv(ackCtx)
		if err != nil {
			conn.Close(websocket.StatusAbnormalClosure, "no setup ack")
			return nil, fmt.Errorf("%w: %v", ErrSetupNotAcknowledged, err)
		}
		if msg.SetupComplete {
			return c, nil
		}
		if msg.GoAway {
			conn.Close(websocket.StatusNormalClosure, "")
			return nil, ErrSetupNotAcknowledged
		}
	}
}

func (c *Channel) sendSetup(ctx context.Context, cfg Config) error {
	setup := &setupPayload{
		Model: cfg.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
	}
	if cfg.SystemText != "" {
		setup.SystemInstruction = &contentPayload{Parts: []textPart{{Text: cfg.SystemText}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Tools = []functionDeclGroup{{FunctionDeclarations: cfg.Tools}}
	}
	return c.write(ctx, &clientMessage{Setup: setup})
}

// SendAudio transmits one captured PCM16 frame as a base64 media chunk.
func (c *Channel) SendAudio(ctx context.Context, pcm []byte) error {
	msg := &clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []mediaChunk{{
				Data:     audio.ToBase64(pcm),
				MimeType: "audio/pcm",
			}},
		},
	}
	return c.write(ctx, msg)
}

// SendToolResults returns tool invocation results to the remote side.
func (c *Channel) SendToolResults(ctx context.Context, results []ToolResult) error {
	if len(results) == 0 {
		return nil
	}
	responses := make([]functionResponse, len(results))
	for i, r := range results {
		responses[i] = functionResponse{ID: r.ID, Name: r.Name, Response: r.Result}
	}
	return c.write(ctx, &clientMessage{ToolResponse: &toolResponse{FunctionResponses: responses}})
}

// Recv blocks for the next server message and decodes it. A read error means
// the channel is no longer usable.
func (c *Channel) Recv(ctx context.Context) (*ServerMessage, error) {
	var envelope serverEnvelope
	if err := wsjson.Read(ctx, c.conn, &envelope); err != nil {
		return nil, fmt.Errorf("live: read: %w", err)
	}
	return envelope.decode(), nil
}

// Close shuts the connection down cleanly.
func (c *Channel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Channel) write(ctx context.Context, msg *clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("live: write: %w", err)
	}
	return nil
}
