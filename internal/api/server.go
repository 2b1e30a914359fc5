// Package api implements the backend HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/agent"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/buildinfo"
)

// maxBodyBytes bounds a /chatbot request body.
const maxBodyBytes = 64 << 10

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Runner runs one message through the agent.
type Runner interface {
	Run(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Ledger is the read side of the cancellation audit store.
type Ledger interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	loop    Runner
	ledger  Ledger
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, loop Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		loop:    loop,
		logger:  logger,
	}
}

// SetLedger enables GET /v1/cancellations.
func (s *Server) SetLedger(l Ledger) {
	s.ledger = l
}

// Handler returns the routed handler, wrapped in access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chatbot", s.handleChatbot)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/cancellations", s.handleCancellations)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns when the server stops;
// a clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Two model calls and two Calendly calls fit comfortably.
		WriteTimeout: 5 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "calbot",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatbotRequest is the body of POST /chatbot.
type ChatbotRequest struct {
	Message string `json:"message"`
}

// ChatbotReply is the assistant message inside a ChatbotResponse.
type ChatbotReply struct {
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Model     string   `json:"model,omitempty"`
	ToolCalls []string `json:"tool_calls,omitempty"` // Tool names used
	RequestID string   `json:"request_id,omitempty"`
}

// ChatbotResponse is the body of a successful POST /chatbot.
type ChatbotResponse struct {
	Response ChatbotReply `json:"response"`
}

// handleChatbot runs one message through the agent loop.
// POST /chatbot {"message": "cancel my event at 3pm today"}
func (s *Server) handleChatbot(w http.ResponseWriter, r *http.Request) {
	var req ChatbotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.loop.Run(r.Context(), &agent.Request{Message: req.Message})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			s.errorResponse(w, http.StatusBadRequest, "message is required")
			return
		}
		s.logger.Error("agent loop failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatbotResponse{Response: ChatbotReply{
		Role:      "assistant",
		Content:   resp.Content,
		Model:     resp.Model,
		ToolCalls: resp.ToolCalls,
		RequestID: resp.RequestID,
	}}, s.logger)
}

// handleCancellations lists recent cancellation attempts.
// GET /v1/cancellations?limit=20
func (s *Server) handleCancellations(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.errorResponse(w, http.StatusNotFound, "audit ledger is not configured")
		return
	}
	entries, err := s.ledger.Recent(r.Context(), parseIntParam(r, "limit", 20, maxCancellationsLimit))
	if err != nil {
		s.logger.Error("reading audit ledger failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"cancellations": entries}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

// maxCancellationsLimit caps ?limit on /v1/cancellations.
const maxCancellationsLimit = 200

// parseIntParam reads a positive integer query parameter, falling back to
// defaultVal when it is missing or invalid and clamping it to maxVal.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return min(n, maxVal)
}
