package live

import (
	"strings"

	"github.com/mentora-ai/voice-engine/pkg/audio"
)

// FunctionDeclaration describes one tool the remote model may invoke.
// Parameters is an opaque JSON schema supplied by the caller.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a structured request from the remote side to run a local action.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall. Every dispatched call must produce exactly
// one result carrying the original id, even when the handler fails.
type ToolResult struct {
	ID     string
	Name   string
	Result map[string]any
}

// ServerMessage is the decoded union of everything the remote side sends.
type ServerMessage struct {
	SetupComplete bool
	// Audio holds decoded PCM16 payloads from the model turn, in order.
	Audio [][]byte
	// Text holds any inline text parts, concatenated.
	Text             string
	ToolCalls        []ToolCall
	CancelledToolIDs []string
	Interrupted      bool
	TurnComplete     bool
	GoAway           bool
	// DroppedAudioParts counts inline audio payloads whose base64 text was
	// malformed; they are dropped so the session can continue.
	DroppedAudioParts int
}

// Client messages use the snake_case field names of the BidiGenerateContent
// wire format; server messages arrive camelCase.

type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtime_input,omitempty"`
	ToolResponse  *toolResponse  `json:"tool_response,omitempty"`
}

type setupPayload struct {
	Model             string              `json:"model"`
	GenerationConfig  generationConfig    `json:"generation_config"`
	SystemInstruction *contentPayload     `json:"system_instruction,omitempty"`
	Tools             []functionDeclGroup `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *speechConfig `json:"speech_config,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

type contentPayload struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type functionDeclGroup struct {
	FunctionDeclarations []FunctionDeclaration `json:"function_declarations"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"function_responses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

type serverEnvelope struct {
	SetupComplete        *struct{}             `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCallPayload      `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
	GoAway               *struct{}             `json:"goAway"`
}

type serverContent struct {
	TurnComplete bool       `json:"turnComplete"`
	Interrupted  bool       `json:"interrupted"`
	ModelTurn    *modelTurn `json:"modelTurn"`
}

type modelTurn struct {
	Parts []serverPart `json:"parts"`
}

type serverPart struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolCallPayload struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

func (e *serverEnvelope) decode() *ServerMessage {
	msg := &ServerMessage{}

	if e.SetupComplete != nil {
		msg.SetupComplete = true
	}
	if e.GoAway != nil {
		msg.GoAway = true
	}
	if e.ToolCall != nil {
		for _, fc := range e.ToolCall.FunctionCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if e.ToolCallCancellation != nil {
		msg.CancelledToolIDs = e.ToolCallCancellation.IDs
	}
	if sc := e.ServerContent; sc != nil {
		msg.TurnComplete = sc.TurnComplete
		msg.Interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.Text != "" {
					msg.Text += part.Text
				}
				if part.InlineData == nil {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MimeType, "audio/pcm") {
					continue
				}
				pcm, err := audio.FromBase64(part.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					msg.DroppedAudioParts++
					continue
				}
				msg.Audio = append(msg.Audio, pcm)
			}
		}
	}
	return msg
}
