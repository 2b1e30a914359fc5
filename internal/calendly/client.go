// Package calendly provides a client for the Calendly v2 REST API, limited
// to the calls calbot needs: listing scheduled events and cancelling one.
package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/httpkit"
)

// levelTrace mirrors config.LevelTrace without importing config.
const levelTrace = slog.Level(-8)

// unknownError is reported when an error body carries no message.
const unknownError = "Unknown error"

// Scope pins every listing to one organization and one user. Both are full
// resource URIs as returned by /users/me.
type Scope struct {
	Organization string
	User         string
}

// Client is a Calendly REST API client.
type Client struct {
	baseURL    string
	token      string
	scope      Scope
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Calendly client. A zero timeout falls back to the
// httpkit default.
func NewClient(baseURL, token string, scope Scope, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = httpkit.DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		scope:      scope,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger:     logger,
	}
}

// Listing limits. Calendly allows at most 100 events per page.
const (
	pageSize = 100
	maxPages = 50
)

// ListScheduledEvents returns every page of the scoped user's events,
// concatenated in the order Calendly returns them. The returned
// Pagination is that of the last page read.
func (c *Client) ListScheduledEvents(ctx context.Context) (*EventCollection, error) {
	q := url.Values{}
	q.Set("organization", c.scope.Organization)
	q.Set("user", c.scope.User)
	q.Set("count", strconv.Itoa(pageSize))
	path := "/scheduled_events?" + q.Encode()

	all := &EventCollection{}
	for page := 1; ; page++ {
		var events EventCollection
		if err := c.get(ctx, path, &events); err != nil {
			return nil, err
		}
		all.Collection = append(all.Collection, events.Collection...)
		all.Pagination = events.Pagination

		if events.Pagination.NextPage == nil || *events.Pagination.NextPage == "" {
			break
		}
		if page == maxPages {
			c.logger.Warn("scheduled events truncated", "pages", page, "count", len(all.Collection))
			break
		}
		next, err := nextPagePath(*events.Pagination.NextPage)
		if err != nil {
			return nil, err
		}
		path = next
	}
	c.logger.Debug("listed scheduled events", "count", len(all.Collection))
	return all, nil
}

// nextPagePath keeps the query of a next_page link but always sends it to
// the configured base URL, so the token never leaves the Calendly host.
func nextPagePath(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next_page %q: %w", next, err)
	}
	if u.RawQuery == "" {
		return "", fmt.Errorf("next_page %q has no query", next)
	}
	return "/scheduled_events?" + u.RawQuery, nil
}

// CancelEvent cancels the event with the given UUID. No reason is sent.
func (c *Client) CancelEvent(ctx context.Context, uuid string) (*Cancellation, error) {
	if uuid == "" {
		return nil, fmt.Errorf("cancel event: empty uuid")
	}
	var result Cancellation
	path := "/scheduled_events/" + url.PathEscape(uuid) + "/cancellation"
	if err := c.post(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	c.logger.Info("event cancelled", "uuid", uuid)
	return &result, nil
}

// CurrentUser returns the user that owns the token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var body struct {
		Resource User `json:"resource"`
	}
	if err := c.get(ctx, "/users/me", &body); err != nil {
		return nil, err
	}
	return &body.Resource, nil
}

// get performs a GET request to the Calendly API.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs a POST request to the Calendly API. A nil data sends no body.
func (c *Client) post(ctx context.Context, path string, data any, result any) error {
	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, reqBody, result)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody []byte, result any) error {
	var body io.Reader
	if reqBody != nil {
		body = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, req.URL.Path, err)
	}
	// Drain and close to ensure connection reuse even when result is nil.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	c.logger.Debug("calendly request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	if result == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Log(ctx, levelTrace, "calendly response", "path", req.URL.Path, "body", string(data))
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseAPIError builds an APIError from a Calendly error body of the form
// {"title": "...", "message": "..."}.
func parseAPIError(status int, body string) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		apiErr.Title = payload.Title
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = unknownError
	}
	return apiErr
}
