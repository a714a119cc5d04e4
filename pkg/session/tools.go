package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/mentora-ai/voice-engine/pkg/live"
)

// ToolHandler runs one named local action requested by the remote side.
// Handlers may have side effects on session-external state (persisting
// progress, displaying a generated resource); those are fire-and-forget once
// the result is sent.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolRegistry maps tool names to handlers. An unknown name is a protocol
// error: it is logged and answered with a generic failure result rather than
// crashing the session.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
	logger   Logger
}

func NewToolRegistry(logger Logger) *ToolRegistry {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ToolRegistry{
		handlers: make(map[string]ToolHandler),
		logger:   logger,
	}
}

// Register adds or replaces a handler.
func (r *ToolRegistry) Register(name string, h ToolHandler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Names returns the registered tool names.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch invokes the handler for one call. It always returns exactly one
// result with the original call id, whether the handler succeeds, errors, or
// panics, because a missing result stalls the remote side's turn-taking.
func (r *ToolRegistry) Dispatch(ctx context.Context, call live.ToolCall) (result live.ToolResult) {
	result = live.ToolResult{ID: call.ID, Name: call.Name}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "id", call.ID, "panic", rec)
			result.Result = map[string]any{"error": fmt.Sprintf("tool %q failed", call.Name)}
		}
	}()

	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", "tool", call.Name, "id", call.ID)
		result.Result = map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
		return result
	}

	out, err := handler(ctx, call.Args)
	if err != nil {
		r.logger.Warn("tool handler failed", "tool", call.Name, "id", call.ID, "error", err)
		result.Result = map[string]any{"error": err.Error()}
		return result
	}
	result.Result = map[string]any{"result": out}
	return result
}

// DispatchAll processes calls in receipt order.
func (r *ToolRegistry) DispatchAll(ctx context.Context, calls []live.ToolCall) []live.ToolResult {
	results := make([]live.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.Dispatch(ctx, call))
	}
	return results
}
