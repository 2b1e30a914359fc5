// Package web serves the browser chat frontend. It holds a transcript per
// browser and relays each message to the backend API.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/buildinfo"
)

// sessionCookie identifies a browser's transcript.
const sessionCookie = "calbot_session"

// Config holds the dependencies for a WebServer.
type Config struct {
	Backend      Sender
	Transcripts  *Transcripts
	Title        string
	MaxExchanges int
	Logger       *slog.Logger
}

// WebServer renders the chat page and handles its form posts.
type WebServer struct {
	backend     Sender
	transcripts *Transcripts
	title       string
	templates   map[string]*template.Template
	logger      *slog.Logger
	server      *http.Server
}

// NewWebServer creates a WebServer. Templates are parsed here, so a
// broken template fails at startup.
func NewWebServer(cfg Config) *WebServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Title == "" {
		cfg.Title = "Calendly Chatbot"
	}
	if cfg.Transcripts == nil {
		cfg.Transcripts = NewTranscripts(cfg.MaxExchanges)
	}
	return &WebServer{
		backend:     cfg.Backend,
		transcripts: cfg.Transcripts,
		title:       cfg.Title,
		templates:   loadTemplates(),
		logger:      cfg.Logger,
	}
}

// RegisterRoutes adds the chat routes to a mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleChat)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
}

// Start serves the frontend on addr until Shutdown is called.
func (s *WebServer) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting web frontend", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *WebServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *WebServer) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatData is the template context for the chat page.
type ChatData struct {
	Title     string
	Version   string
	Exchanges []Exchange
}

func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	id := s.session(w, r)
	s.render(w, r, "chat.html", ChatData{
		Title:     s.title,
		Version:   buildinfo.Version,
		Exchanges: s.transcripts.Get(id),
	})
}

// handleSend relays the message and records the exchange. A failed
// backend call is shown in the transcript rather than as an error page.
func (s *WebServer) handleSend(w http.ResponseWriter, r *http.Request) {
	id := s.session(w, r)
	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	reply, err := s.backend.Send(r.Context(), message)
	ex := Exchange{User: message, Bot: reply}
	if err != nil {
		s.logger.Warn("backend call failed", "error", err)
		ex.Bot = "Sorry, something went wrong: " + err.Error()
		ex.Failed = true
	}
	s.transcripts.Append(id, ex)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *WebServer) handleClear(w http.ResponseWriter, r *http.Request) {
	s.transcripts.Clear(s.session(w, r))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// session returns the browser's session ID, issuing a cookie on first
// contact.
func (s *WebServer) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
