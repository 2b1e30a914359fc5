package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/httpkit"
)

// Sender delivers one user message to the backend and returns the reply.
type Sender interface {
	Send(ctx context.Context, message string) (string, error)
}

// BackendError is a non-2xx answer from the backend.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Backend posts messages to the calbot API's /chatbot endpoint.
type Backend struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewBackend creates a client for the API at baseURL.
func NewBackend(baseURL string, timeout time.Duration, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		url:    strings.TrimRight(baseURL, "/") + "/chatbot",
		http:   httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger: logger,
	}
}

type chatbotReply struct {
	Response struct {
		Content   string `json:"content"`
		RequestID string `json:"request_id"`
	} `json:"response"`
	Error string `json:"error"`
}

// Send posts {"message": message} and returns response.content.
func (b *Backend) Send(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read backend response: %w", err)
	}

	var reply chatbotReply
	decodeErr := json.Unmarshal(data, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := reply.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return "", &BackendError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode backend response: %w", decodeErr)
	}

	b.logger.Debug("backend replied", "request_id", reply.Response.RequestID, "bytes", len(data))
	return reply.Response.Content, nil
}
