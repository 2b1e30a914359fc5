// Package tools defines the tools available to the agent and the
// registry the agent loop dispatches through.
package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/llm"
)

// Tool is a callable capability advertised to the model.
//
// Call never returns a Go error: failures are reported to the model as a
// value (usually an [ErrorResult]) so that it can explain them to the
// user.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON Schema object describing the arguments.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) any
}

// Registry holds available tools in registration order.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering a name twice replaces the earlier
// tool but keeps its position.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the named tool. Lookup falls back to a lower-cased name,
// since some models capitalize tool names; anything else returns
// *ErrToolUnavailable.
func (r *Registry) Get(name string) (Tool, error) {
	if t, ok := r.tools[name]; ok {
		return t, nil
	}
	if t, ok := r.tools[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, &ErrToolUnavailable{ToolName: name}
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the tool catalog for the model, in registration
// order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute runs the named tool and returns its result as the string fed
// back to the model. The only error is an unknown tool or a result that
// cannot be encoded.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	r.logger.Debug("executing tool", "tool", t.Name(), "args", args)
	result := t.Call(ctx, args)
	if er, ok := result.(ErrorResult); ok {
		r.logger.Info("tool returned error", "tool", t.Name(), "error", er.Error)
	}
	return FormatResult(result)
}
