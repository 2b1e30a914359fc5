package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/agent"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/config"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/llm"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/notify"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/tools"
)

// backend is everything the agent needs, wired from one config.
type backend struct {
	loop     *agent.Loop
	registry *tools.Registry
	calendly *calendly.Client
	ledger   *audit.Store     // nil when audit.path is empty
	notifier *notify.Publisher // nil when mqtt.broker is empty
}

// buildBackend constructs the agent and its collaborators. cfg must
// already be validated. The notifier is created but not started; the
// caller decides whether to wait for the broker.
func buildBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	b := &backend{
		calendly: newCalendlyClient(cfg, logger),
	}

	llmClient, err := newLLMClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := tools.CancelOptions{
		Clock:    time.Now,
		Location: loc,
		Logger:   logger.With("component", "cancel_event"),
	}
	if cfg.Audit.Configured() {
		b.ledger, err = audit.NewStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		opts.Auditor = b.ledger
		logger.Info("audit ledger enabled", "path", cfg.Audit.Path)
	}
	if cfg.MQTT.Configured() {
		b.notifier = notify.New(notify.Config{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		}, logger.With("component", "mqtt"))
		opts.Announcer = b.notifier
	}

	b.registry = tools.NewRegistry(logger.With("component", "tools"))
	b.registry.Register(tools.NewListEventsTool(b.calendly, logger.With("component", "list_scheduled_events")))
	b.registry.Register(tools.NewCancelEventTool(b.calendly, opts))

	b.loop = agent.NewLoop(logger.With("component", "agent"), llmClient, b.registry, cfg.LLM.Model)

	logger.Info("agent initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"tools", b.registry.Names(),
		"timezone", loc.String(),
	)
	return b, nil
}

// startNotifier connects the MQTT publisher if one is configured.
func (b *backend) startNotifier(ctx context.Context, logger *slog.Logger) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mqtt publisher failed", "error", err)
	}
}

// close releases the ledger and disconnects the notifier.
func (b *backend) close(logger *slog.Logger) {
	if b.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.notifier.Stop(ctx); err != nil {
			logger.Error("mqtt shutdown failed", "error", err)
		}
	}
	if b.ledger != nil {
		if err := b.ledger.Close(); err != nil {
			logger.Error("closing audit ledger failed", "error", err)
		}
	}
}

func newCalendlyClient(cfg *config.Config, logger *slog.Logger) *calendly.Client {
	return calendly.NewClient(
		cfg.Calendly.BaseURL,
		cfg.Calendly.Token,
		calendly.Scope{Organization: cfg.Calendly.Organization, User: cfg.Calendly.User},
		cfg.Calendly.Timeout,
		logger.With("component", "calendly"),
	)
}

// newLLMClient builds the client for the configured provider.
func newLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	logger = logger.With("component", "llm", "provider", cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIOptions{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Timeout:   cfg.LLM.Timeout,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(llm.AnthropicOptions{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Timeout:   cfg.LLM.Timeout,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
