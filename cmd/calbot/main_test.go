package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/agent"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var out bytes.Buffer
		if err := run(context.Background(), &out, io.Discard, args); err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out.String(), "Usage: calbot") {
			t.Errorf("run(%v) output missing usage: %q", args, out.String())
		}
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "go_version:") {
		t.Errorf("text version output = %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), &out, io.Discard, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("json version output: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Errorf("version missing from %v", info)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"book"}, "unknown command: book"},
		{"unknown flag", []string{"-x"}, "unknown flag: -x"},
		{"bad output", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"ask without message", []string{"ask"}, "usage: calbot ask"},
		{"audit bad flag", []string{"audit", "--all"}, "usage: calbot audit"},
		{"missing config", []string{"-config", "/nonexistent/calbot.yaml", "serve"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), io.Discard, io.Discard, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRun_ServeRequiresCredentials(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: gpt-4o-mini\n")
	err := run(context.Background(), io.Discard, io.Discard, []string{"-config", path, "serve"})
	if err == nil {
		t.Fatal("serve started without credentials")
	}
	for _, want := range []string{"calendly.token is required", "llm.api_key is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestParseAuditArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{nil, 20, false},
		{[]string{"-n", "5"}, 5, false},
		{[]string{"-n=7"}, 7, false},
		{[]string{"-n", "0"}, 0, true},
		{[]string{"-n", "many"}, 0, true},
		{[]string{"extra"}, 0, true},
	}
	for _, tt := range tests {
		got, err := parseAuditArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAuditArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAuditArgs(%v) = %d, want %d", tt.args, got, tt.want)
		}
	}
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const calendlyEvents = `{
	"collection": [
		{"uri": "https://api.calendly.com/scheduled_events/AAA", "name": "Review", "status": "active",
		 "start_time": "2024-04-18T15:00:00.000000Z", "end_time": "2024-04-18T15:30:00.000000Z"}
	],
	"pagination": {"count": 1}
}`

func fakeCalendly(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer cal-token" {
			t.Errorf("calendly Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/scheduled_events":
			io.WriteString(w, calendlyEvents)
		case "/users/me":
			io.WriteString(w, `{"resource": {"uri": "https://api.calendly.com/users/U1", "name": "Pat Doe",
				"email": "pat@example.com", "timezone": "America/Chicago",
				"current_organization": "https://api.calendly.com/organizations/O1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"title": "Resource Not Found", "message": "The server could not find the requested resource."}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func backendConfig(calendlyURL, llmURL, extra string) string {
	return fmt.Sprintf(`calendly:
  base_url: %[1]s
  token: cal-token
  organization: %[1]s/organizations/O1
  user: %[1]s/users/U1
llm:
  provider: openai
  api_key: sk-test
  model: gpt-4o-mini
  base_url: %[2]s/v1
timezone: UTC
log_level: error
%[3]s`, calendlyURL, llmURL, extra)
}

func TestRun_Events(t *testing.T) {
	cal := fakeCalendly(t)
	path := writeConfig(t, backendConfig(cal.URL, "http://127.0.0.1:1", ""))

	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"-config", path, "events"}); err != nil {
		t.Fatalf("events: %v", err)
	}
	for _, want := range []string{"START", "Review", "active", "AAA"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("events output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_Whoami(t *testing.T) {
	cal := fakeCalendly(t)
	// whoami runs before the organization and user URIs are known.
	path := writeConfig(t, fmt.Sprintf("calendly:\n  base_url: %s\n  token: cal-token\n", cal.URL))

	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"-config", path, "whoami"}); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	for _, want := range []string{"Pat Doe <pat@example.com>", "users/U1", "organizations/O1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("whoami output missing %q:\n%s", want, out.String())
		}
	}
}

// fakeOpenAI asks for list_scheduled_events on the first call and
// answers in text on the second.
type fakeOpenAI struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	n := len(f.bodies)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if n == 1 {
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"tool_calls","logprobs":null,"message":{"role":"assistant","content":null,"refusal":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"list_scheduled_events","arguments":"{}"}}]}}],
			"usage":{"prompt_tokens":40,"completion_tokens":5,"total_tokens":45}}`)
		return
	}
	io.WriteString(w, `{"id":"c2","object":"chat.completion","created":2,"model":"gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"stop","logprobs":null,"message":{"role":"assistant","content":"You have one event: Review at 15:00.","refusal":null}}],
		"usage":{"prompt_tokens":90,"completion_tokens":12,"total_tokens":102}}`)
}

func TestRun_AskEndToEnd(t *testing.T) {
	cal := fakeCalendly(t)
	model := &fakeOpenAI{}
	llmSrv := httptest.NewServer(model)
	defer llmSrv.Close()

	path := writeConfig(t, backendConfig(cal.URL, llmSrv.URL, ""))

	var out bytes.Buffer
	err := run(context.Background(), &out, io.Discard,
		[]string{"-config", path, "-o", "json", "ask", "what", "is", "scheduled?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	var resp agent.Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode ask output: %v\n%s", err, out.String())
	}
	if resp.Content != "You have one event: Review at 15:00." {
		t.Errorf("Content = %q", resp.Content)
	}
	if diff := cmp.Diff([]string{"list_scheduled_events"}, resp.ToolCalls); diff != "" {
		t.Errorf("ToolCalls (-want +got):\n%s", diff)
	}
	if resp.InputTokens != 130 || resp.OutputTokens != 17 {
		t.Errorf("tokens = %d/%d, want 130/17", resp.InputTokens, resp.OutputTokens)
	}

	if len(model.bodies) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.bodies))
	}
	first := model.bodies[0]
	if first["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", first["model"])
	}
	if tools, _ := first["tools"].([]any); len(tools) != 2 {
		t.Errorf("first call advertised %d tools, want 2", len(tools))
	}
	msgs, _ := model.bodies[1]["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("final call has %d messages, want 3", len(msgs))
	}
	toolMsg, _ := msgs[2].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", toolMsg)
	}
	content, _ := toolMsg["content"].(string)
	if !strings.Contains(content, "scheduled_events/AAA") {
		t.Errorf("tool result does not carry the event list: %q", content)
	}
}

// silentBroker accepts TCP connections and never answers, so an MQTT
// CONNECT waits until the client gives up.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return "mqtt://" + ln.Addr().String()
}

func TestRun_AskDoesNotWaitForBroker(t *testing.T) {
	cal := fakeCalendly(t)
	llmSrv := httptest.NewServer(&fakeOpenAI{})
	defer llmSrv.Close()

	path := writeConfig(t, backendConfig(cal.URL, llmSrv.URL, "mqtt:\n  broker: "+silentBroker(t)+"\n"))

	start := time.Now()
	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"-config", path, "ask", "what's", "scheduled?"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("ask took %v with an unresponsive broker", elapsed)
	}
	if !strings.Contains(out.String(), "You have one event") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_Audit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := audit.NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	now := time.Now()
	for _, e := range []audit.Entry{
		{Timestamp: now.Add(-2 * time.Minute), Date: "2024-04-18", Time: "15:00", EventUUID: "AAA", EventName: "Review", Outcome: audit.OutcomeCancelled},
		{Timestamp: now.Add(-time.Minute), Date: "2024-04-19", Time: "09:00", Outcome: audit.OutcomeNotFound, Detail: "Event not found"},
	} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	path := writeConfig(t, fmt.Sprintf("audit:\n  path: %s\n", dbPath))

	var out bytes.Buffer
	if err := run(ctx, &out, io.Discard, []string{"-config", path, "audit", "-n", "10"}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	text := out.String()
	for _, want := range []string{"1 cancelled, 1 not found, 0 failed", "Review", "Event not found"} {
		if !strings.Contains(text, want) {
			t.Errorf("audit output missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "Event not found") > strings.Index(text, "Review") {
		t.Errorf("audit output not newest first:\n%s", text)
	}

	out.Reset()
	if err := run(ctx, &out, io.Discard, []string{"-config", path, "-o", "json", "audit", "-n=1"}); err != nil {
		t.Fatalf("audit json: %v", err)
	}
	var report auditReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(report.Entries) != 1 || report.Entries[0].Outcome != audit.OutcomeNotFound {
		t.Errorf("entries = %+v", report.Entries)
	}
	if report.Counts[audit.OutcomeCancelled] != 1 {
		t.Errorf("counts = %v", report.Counts)
	}
}

func TestRun_AuditNotConfigured(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	err := run(context.Background(), io.Discard, io.Discard, []string{"-config", path, "audit"})
	if err == nil || !strings.Contains(err.Error(), "audit.path") {
		t.Errorf("audit without ledger = %v", err)
	}
}

func TestPrintEvents_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := printEvents(&out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No scheduled events.") {
		t.Errorf("output = %q", out.String())
	}
}
