// Package agent implements the tool-invocation loop: one model call, the
// tools it asks for, and one final model call that phrases the answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/llm"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/tools"
)

// ErrEmptyMessage is returned for a request with no user text.
var ErrEmptyMessage = errors.New("message is empty")

// Phase names one state of a single Run.
type Phase string

// Loop phases, in order.
const (
	PhaseStart              Phase = "start"
	PhaseAwaitingFirstReply Phase = "awaiting_first_reply"
	PhaseExecutingTool      Phase = "executing_tool"
	PhaseAwaitingFinalReply Phase = "awaiting_final_reply"
	PhaseDone               Phase = "done"
)

// ToolExecutor is the part of the tool registry the loop needs.
type ToolExecutor interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// Request is one incoming user message.
type Request struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"` // generated when empty
}

// Response is the loop's answer to a Request.
type Response struct {
	Content      string   `json:"content"`
	Model        string   `json:"model"`
	RequestID    string   `json:"request_id"`
	ToolCalls    []string `json:"tool_calls,omitempty"` // names, in call order
	FinishReason string   `json:"finish_reason"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
}

// Loop is the core agent execution loop. It holds no per-request state
// and is safe for concurrent use.
type Loop struct {
	logger *slog.Logger
	llm    llm.Client
	tools  ToolExecutor
	model  string
}

// NewLoop creates a new agent loop.
func NewLoop(logger *slog.Logger, client llm.Client, registry ToolExecutor, model string) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		llm:    client,
		tools:  registry,
		model:  model,
	}
}

// Run handles one message:
//  1. Ask the model, with every tool attached.
//  2. If it answered in text, return that.
//  3. Otherwise run each requested tool, in order, and append the results.
//  4. Ask the model once more and return its text. Tool calls in this
//     second reply are ignored; the loop never recurses.
//
// An unknown tool name fails the request with *tools.ErrToolUnavailable.
func (l *Loop) Run(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = generateRequestID()
	}
	ctx = tools.WithRequestID(ctx, requestID)
	log := l.logger.With("request_id", requestID)
	start := time.Now()

	resp := &Response{Model: l.model, RequestID: requestID}
	conv := NewConversation(req.Message)
	defs := l.tools.Definitions()
	log.Info("agent loop started", "phase", PhaseStart, "model", l.model, "tools", len(defs))

	log.Debug("calling LLM", "phase", PhaseAwaitingFirstReply, "messages", conv.Len())
	first, err := l.llm.Chat(ctx, l.model, conv.Messages(), defs)
	if err != nil {
		log.Error("LLM call failed", "phase", PhaseAwaitingFirstReply, "error", err)
		return nil, fmt.Errorf("first model call: %w", err)
	}
	resp.addUsage(first)

	if !first.HasToolCalls() {
		resp.Content = answerText(first, log)
		resp.FinishReason = first.FinishReason
		log.Info("agent loop completed", "phase", PhaseDone,
			"tool_calls", 0, "elapsed", time.Since(start).Round(time.Millisecond))
		return resp, nil
	}

	reply := first.Message
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	conv.AppendReply(reply)

	for _, call := range reply.ToolCalls {
		log.Info("executing tool", "phase", PhaseExecutingTool, "tool", call.Name, "call_id", call.ID)
		result, err := l.tools.Execute(ctx, call.Name, call.Arguments)
		if err != nil {
			log.Error("tool execution failed", "phase", PhaseExecutingTool, "tool", call.Name, "error", err)
			return nil, fmt.Errorf("execute %s: %w", call.Name, err)
		}
		log.Log(ctx, llm.LevelTrace, "tool result", "tool", call.Name, "result", result)
		if err := conv.AppendToolResult(call.ID, result); err != nil {
			return nil, err
		}
		resp.ToolCalls = append(resp.ToolCalls, call.Name)
	}

	log.Debug("calling LLM", "phase", PhaseAwaitingFinalReply, "messages", conv.Len())
	final, err := l.llm.Chat(ctx, l.model, conv.Messages(), defs)
	if err != nil {
		log.Error("LLM call failed", "phase", PhaseAwaitingFinalReply, "error", err)
		return nil, fmt.Errorf("final model call: %w", err)
	}
	resp.addUsage(final)
	if final.HasToolCalls() {
		log.Warn("ignoring tool calls in final reply", "count", len(final.Message.ToolCalls))
	}

	resp.Content = answerText(final, log)
	resp.FinishReason = final.FinishReason
	log.Info("agent loop completed", "phase", PhaseDone,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return resp, nil
}

// NoAnswerMessage replaces a model reply that carries no text, so the
// user always gets a sentence back.
const NoAnswerMessage = "Sorry, I could not come up with an answer to that. Please try rephrasing your request."

func answerText(c *llm.ChatResponse, log *slog.Logger) string {
	if strings.TrimSpace(c.Message.Content) == "" {
		log.Warn("model reply has no text", "finish_reason", c.FinishReason)
		return NoAnswerMessage
	}
	return c.Message.Content
}

func (r *Response) addUsage(c *llm.ChatResponse) {
	r.InputTokens += c.InputTokens
	r.OutputTokens += c.OutputTokens
	if c.Model != "" {
		r.Model = c.Model
	}
}

// generateRequestID returns a short ID of the form r_xxxxxxxx.
func generateRequestID() string {
	return "r_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
