package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mentora-ai/voice-engine/pkg/live"
	"github.com/mentora-ai/voice-engine/pkg/session"
)

// preset bundles the persona and tool surface for one product entry point.
// All four entry points share the single session engine underneath.
type preset struct {
	SystemText string
	Voice      string
	Tools      []live.FunctionDeclaration
}

var presets = map[string]preset{
	"lesson": {
		SystemText: "You are a patient tutor delivering an interactive spoken lesson. " +
			"Explain one concept at a time, ask the student to restate it, and use short sentences suitable for speech. " +
			"Call save_progress after each concept the student masters.",
		Voice: "Puck",
		Tools: []live.FunctionDeclaration{
			{
				Name:        "save_progress",
				Description: "Record that the student completed a lesson section.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lesson":  map[string]any{"type": "string"},
						"section": map[string]any{"type": "string"},
					},
				},
			},
			{
				Name:        "show_resource",
				Description: "Display a diagram or worksheet on the student's screen.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"resource_id": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
	"quiz": {
		SystemText: "You are a quizmaster. Ask one spoken question at a time, wait for the answer, " +
			"give brief feedback, and call record_score after every question.",
		Voice: "Charon",
		Tools: []live.FunctionDeclaration{
			{
				Name:        "record_score",
				Description: "Record the result of one quiz question.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string"},
						"correct":  map[string]any{"type": "boolean"},
					},
				},
			},
		},
	},
	"career": {
		SystemText: "You are a friendly career advisor. Ask about the student's interests and goals, " +
			"then suggest concrete next steps. Call save_progress when an action item is agreed.",
		Voice: "Kore",
		Tools: []live.FunctionDeclaration{
			{
				Name:        "save_progress",
				Description: "Record an agreed career action item.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
	"pronunciation": {
		SystemText: "You are a pronunciation coach. Say a word or phrase, listen to the student repeat it, " +
			"and give specific feedback on each sound. Call record_score per attempt.",
		Voice: "Aoede",
		Tools: []live.FunctionDeclaration{
			{
				Name:        "record_score",
				Description: "Record one pronunciation attempt.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"phrase": map[string]any{"type": "string"},
						"rating": map[string]any{"type": "number"},
					},
				},
			},
		},
	},
}

type consoleLogger struct{}

func (consoleLogger) Debug(msg string, args ...interface{}) {}
func (consoleLogger) Info(msg string, args ...interface{})  { log.Println(append([]interface{}{"INFO", msg}, args...)...) }
func (consoleLogger) Warn(msg string, args ...interface{})  { log.Println(append([]interface{}{"WARN", msg}, args...)...) }
func (consoleLogger) Error(msg string, args ...interface{}) { log.Println(append([]interface{}{"ERROR", msg}, args...)...) }

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		log.Fatal("Error: GOOGLE_API_KEY must be set.")
	}

	mode := os.Getenv("TUTOR_MODE")
	if mode == "" {
		mode = "lesson"
	}
	p, ok := presets[mode]
	if !ok {
		log.Fatalf("Error: unknown TUTOR_MODE %q (lesson, quiz, career, pronunciation)", mode)
	}

	cfg := session.DefaultConfig()
	cfg.APIKey = apiKey
	cfg.Model = os.Getenv("TUTOR_MODEL")
	cfg.SystemText = p.SystemText
	cfg.Voice = p.Voice
	if v := os.Getenv("TUTOR_VOICE"); v != "" {
		cfg.Voice = v
	}
	cfg.Tools = p.Tools

	var logger session.Logger
	if os.Getenv("TUTOR_DEBUG") != "" {
		logger = consoleLogger{}
	}

	tools := session.NewToolRegistry(logger)
	tools.Register("save_progress", func(_ context.Context, args map[string]any) (any, error) {
		fmt.Printf("\r\033[K💾 [PROGRESS] %v\n", args)
		return map[string]any{"saved": true}, nil
	})
	tools.Register("record_score", func(_ context.Context, args map[string]any) (any, error) {
		fmt.Printf("\r\033[K✅ [SCORE] %v\n", args)
		return map[string]any{"recorded": true}, nil
	})
	tools.Register("show_resource", func(_ context.Context, args map[string]any) (any, error) {
		fmt.Printf("\r\033[K🖼  [RESOURCE] %v\n", args)
		return map[string]any{"shown": true}, nil
	})

	sess := session.New(cfg, tools, logger)

	fmt.Printf("Configured: mode=%s | voice=%s | session=%s\n", mode, cfg.Voice, sess.ID())
	fmt.Println("Voice Tutor Started! Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		log.Fatal(err)
	}

	go func() {
		for event := range sess.Events() {
			switch event.Type {
			case session.StateChanged:
				st := event.Data.(session.State)
				switch st {
				case session.StateAcquiringMic:
					fmt.Printf("\r\033[K🎤 [SESSION] Acquiring microphone...\n")
				case session.StateConnecting:
					fmt.Printf("\r\033[K🌐 [SESSION] Connecting...\n")
				case session.StateLive:
					fmt.Printf("\r\033[K🟢 [SESSION] Live. Start talking!\n")
				case session.StateClosed:
					fmt.Printf("\r\033[K👋 [SESSION] Closed.\n")
				case session.StateFailed:
					fmt.Printf("\r\033[K🔴 [SESSION] Failed: %s\n", sess.FailureReason().Message())
				}
			case session.MicLevel:
				level := event.Data.(float64)
				meter := ""
				dots := int(level * 500)
				if dots > 40 {
					dots = 40
				}
				for i := 0; i < dots; i++ {
					meter += "|"
				}
				fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", meter, level)
			case session.Interrupted:
				fmt.Printf("\r\033[K🛑 [INTERRUPTED] Student started talking.\n")
			case session.ToolInvoked:
				fmt.Printf("\r\033[K🔧 [TOOL] %v\n", event.Data)
			case session.Retrying:
				fmt.Printf("\r\033[K🔁 [RETRY] %v\n", event.Data)
			case session.ErrorEvent:
				fmt.Printf("\r\033[K❌ [ERROR] %v\n", event.Data)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
	sess.Stop()
	time.Sleep(100 * time.Millisecond)
}
