package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/agent"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
)

// runAsk handles "calbot ask <message>". It runs one message through
// the same agent the server uses, printing the reply to stdout and logs
// to stderr.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	b, err := buildBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	// The broker connection must not hold up the answer; an announcement
	// made before it is up is dropped and logged.
	notifyCtx, cancelNotify := context.WithCancel(ctx)
	defer cancelNotify()
	go b.startNotifier(notifyCtx, logger)

	resp, err := b.loop.Run(ctx, &agent.Request{Message: strings.Join(args, " ")})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		return writeJSON(stdout, resp)
	}
	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runEvents handles "calbot events": the raw material the
// list_scheduled_events tool hands to the model.
func runEvents(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	client := newCalendlyClient(cfg, configuredLogger(stderr, cfg))

	events, err := client.ListScheduledEvents(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled events: %w", err)
	}
	if outputFmt == "json" {
		return writeJSON(stdout, events)
	}
	return printEvents(stdout, events.Collection)
}

func printEvents(w io.Writer, events []calendly.ScheduledEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No scheduled events.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tSTATUS\tNAME\tUUID")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.StartTime, e.Status, e.Name, e.UUID())
	}
	return tw.Flush()
}

// runWhoami handles "calbot whoami". It needs only the token, and prints
// the organization and user URIs the rest of the config asks for.
func runWhoami(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCalendlyAuth(); err != nil {
		return err
	}
	client := newCalendlyClient(cfg, configuredLogger(stderr, cfg))

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("whoami: %w", err)
	}
	if outputFmt == "json" {
		return writeJSON(stdout, user)
	}
	fmt.Fprintf(stdout, "%s <%s>\n", user.Name, user.Email)
	fmt.Fprintf(stdout, "  %-14s %s\n", "user:", user.URI)
	fmt.Fprintf(stdout, "  %-14s %s\n", "organization:", user.CurrentOrganization)
	if user.Timezone != "" {
		fmt.Fprintf(stdout, "  %-14s %s\n", "timezone:", user.Timezone)
	}
	return nil
}

// parseAuditArgs accepts "-n N" or "-n=N".
func parseAuditArgs(args []string) (int, error) {
	limit := 20
	for i := 0; i < len(args); i++ {
		var v string
		switch {
		case args[i] == "-n" && i+1 < len(args):
			v = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-n="):
			v = strings.TrimPrefix(args[i], "-n=")
		default:
			return 0, fmt.Errorf("usage: calbot audit [-n N]")
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("audit: -n must be a positive integer, got %q", v)
		}
		limit = n
	}
	return limit, nil
}

// auditReport is the JSON form of "calbot audit".
type auditReport struct {
	Counts  map[string]int `json:"counts_24h"`
	Entries []audit.Entry  `json:"entries"`
}

// runAudit handles "calbot audit". It reads the ledger directly and does
// not need the provider credentials.
func runAudit(ctx context.Context, stdout io.Writer, configPath, outputFmt string, limit int) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Audit.Configured() {
		return fmt.Errorf("audit ledger is not configured (set audit.path)")
	}

	store, err := audit.NewStore(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	defer store.Close()

	return printAudit(ctx, stdout, store, outputFmt, limit, time.Now().Add(-24*time.Hour))
}

func printAudit(ctx context.Context, w io.Writer, store *audit.Store, outputFmt string, limit int, since time.Time) error {
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	counts, err := store.CountByOutcome(ctx, since)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		if entries == nil {
			entries = []audit.Entry{}
		}
		return writeJSON(w, auditReport{Counts: counts, Entries: entries})
	}

	fmt.Fprintf(w, "Last 24h: %d cancelled, %d not found, %d failed\n\n",
		counts[audit.OutcomeCancelled], counts[audit.OutcomeNotFound], counts[audit.OutcomeFailed])
	if len(entries) == 0 {
		fmt.Fprintln(w, "No cancellation attempts recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tOUTCOME\tDATE\tTIME\tEVENT\tDETAIL")
	for _, e := range entries {
		event := e.EventName
		if event == "" {
			event = e.EventUUID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Outcome, e.Date, e.Time, event, e.Detail)
	}
	return tw.Flush()
}

