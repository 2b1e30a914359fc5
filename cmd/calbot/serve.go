package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/api"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/buildinfo"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/web"
)

// runServe handles "calbot serve": it validates the config, wires the
// agent, and serves the API until SIGINT or SIGTERM. A missing
// credential stops startup before the listener opens.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting calbot", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port)

	b, err := buildBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if b.notifier != nil {
		go b.startNotifier(ctx, logger)
		logger.Info("mqtt announcements enabled", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, b.loop, logger.With("component", "api"))
	if b.ledger != nil {
		server.SetLedger(b.ledger)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("calbot stopped")
	return nil
}

// runWeb handles "calbot web": the browser frontend. It needs only the
// web section of the config.
func runWeb(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateFrontend(); err != nil {
		return err
	}
	logger := configuredLogger(stdout, cfg)
	logger.Info("config loaded", "path", cfgPath, "backend_url", cfg.Web.BackendURL)

	ws := web.NewWebServer(web.Config{
		Backend:      web.NewBackend(cfg.Web.BackendURL, cfg.Web.Timeout, logger.With("component", "backend")),
		Title:        cfg.Web.Title,
		MaxExchanges: cfg.Web.MaxExchanges,
		Logger:       logger.With("component", "web"),
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = ws.Shutdown(shutdownCtx)
	}()

	if err := ws.Start(cfg.Web.Listen.Addr()); err != nil {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}
