// Command plugin-telegram is the Telegram channel plugin binary (C8). The
// Gateway Manager spawns one of these per configured "telegram" channel,
// handing it its ChannelDescriptor and the runtime's base URL via
// environment variables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aokihu/atom-message-gateway/internal/gwlog"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
	"github.com/aokihu/atom-message-gateway/internal/pluginserver"
	"github.com/aokihu/atom-message-gateway/internal/runtimeclient"
	"github.com/aokihu/atom-message-gateway/internal/telegramchannel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "plugin-telegram:", err)
		os.Exit(1)
	}
}

func run() error {
	descriptor, serverURL, err := loadEnvConfig()
	if err != nil {
		return err
	}

	settings, err := telegramchannel.ResolveSettings(descriptor.Settings)
	if err != nil {
		return fmt.Errorf("resolving settings: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(settings.BotToken)
	if err != nil {
		return fmt.Errorf("constructing telegram bot client: %w", err)
	}

	runtime := runtimeclient.New(serverURL)
	logger := gwlog.NewJSONLogger(os.Stdout, false)
	logFn := func(msg string, fields map[string]any) { logger.Info(msg, fields) }
	plugin := telegramchannel.New(descriptor.ID, settings, runtime, bot, logFn)

	srv := pluginserver.New(descriptor.ID, descriptor.Endpoint.Host, descriptor.Endpoint.Port,
		descriptor.Endpoint.HealthPath, descriptor.Endpoint.InvokePath)
	srv.RegisterExtraRoute(settings.WebhookPath, plugin.Handler())

	shutdown := func(ctx context.Context) error {
		shutdownErr := plugin.Shutdown(ctx)
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		return shutdownErr
	}
	srv.RegisterMethod("channel.shutdown", telegramShutdownRPC(shutdown))

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting plugin server: %w", err)
	}

	if err := plugin.RegisterWebhook(); err != nil {
		return fmt.Errorf("registering telegram webhook: %w", err)
	}

	if settings.WebhookRenewalEnabled {
		renewal := plugin.StartWebhookRenewal()
		defer renewal.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(ctx)
}

// telegramShutdownRPC mirrors httpchannel.HandleShutdownRPC but drives the
// plugin's own graceful-shutdown sequence (deleteWebhook, then the plugin
// server) ahead of process exit, per spec.md §4.8.
func telegramShutdownRPC(shutdown func(context.Context) error) func(ctx context.Context, params json.RawMessage) (any, error) {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		err := shutdown(ctx)
		go func() { os.Exit(0) }()
		if err != nil {
			return nil, err
		}
		return map[string]any{"stopped": true}, nil
	}
}

func loadEnvConfig() (gwtypes.ChannelDescriptor, string, error) {
	raw := os.Getenv(gwtypes.EnvChannelConfig)
	if raw == "" {
		return gwtypes.ChannelDescriptor{}, "", fmt.Errorf("%s is not set", gwtypes.EnvChannelConfig)
	}
	var descriptor gwtypes.ChannelDescriptor
	if err := json.Unmarshal([]byte(raw), &descriptor); err != nil {
		return gwtypes.ChannelDescriptor{}, "", fmt.Errorf("parsing %s: %w", gwtypes.EnvChannelConfig, err)
	}

	serverURL := os.Getenv(gwtypes.EnvServerURL)
	if serverURL == "" {
		return gwtypes.ChannelDescriptor{}, "", fmt.Errorf("%s is not set", gwtypes.EnvServerURL)
	}
	return descriptor, serverURL, nil
}
