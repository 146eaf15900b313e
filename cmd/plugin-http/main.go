// Command plugin-http is the generic HTTP channel plugin binary (C7). The
// Gateway Manager spawns one of these per configured "http" channel,
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

	"github.com/aokihu/atom-message-gateway/internal/gwlog"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
	"github.com/aokihu/atom-message-gateway/internal/httpchannel"
	"github.com/aokihu/atom-message-gateway/internal/pluginserver"
	"github.com/aokihu/atom-message-gateway/internal/runtimeclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "plugin-http:", err)
		os.Exit(1)
	}
}

func run() error {
	descriptor, serverURL, err := loadEnvConfig()
	if err != nil {
		return err
	}

	settings, err := httpchannel.ResolveSettings(descriptor.Settings)
	if err != nil {
		return fmt.Errorf("resolving settings: %w", err)
	}

	runtime := runtimeclient.New(serverURL)
	logger := gwlog.NewJSONLogger(os.Stdout, false)
	logFn := func(msg string, fields map[string]any) {
		logger.Info(msg, fields)
	}
	plugin := httpchannel.New(descriptor.ID, settings, runtime, logFn)

	srv := pluginserver.New(descriptor.ID, descriptor.Endpoint.Host, descriptor.Endpoint.Port,
		descriptor.Endpoint.HealthPath, descriptor.Endpoint.InvokePath)
	srv.RegisterExtraRoute(settings.InboundPath, plugin.Handler())

	stop := func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}
	srv.RegisterMethod("channel.shutdown", httpchannel.HandleShutdownRPC(stop, os.Exit))

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting plugin server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
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
