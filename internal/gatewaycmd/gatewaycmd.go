// Package gatewaycmd wires the Gateway Manager into a host program's cobra
// command tree: the `--message-gateway`/`--workspace`/`--server-url`/
// `--config` surface from spec.md §6, grounded on forge-cli/cmd/run.go and
// forge-cli/cmd/channel.go's flag-and-RunE shape.
package gatewaycmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aokihu/atom-message-gateway/internal/gateway"
	"github.com/aokihu/atom-message-gateway/internal/gwconfig"
	"github.com/aokihu/atom-message-gateway/internal/gwlog"
	"github.com/aokihu/atom-message-gateway/internal/gwmetrics"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

var (
	selector    string
	workspace   string
	projectRoot string
	serverURL   string
	configPath  string
	listenAddr  string
	verbose     bool
	watchConfig bool
)

// Command builds the `message-gateway` cobra command. A host program's
// root command mounts this; cmd/atom-gateway also runs it standalone as
// its root.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message-gateway",
		Short: "Run the message gateway manager and its channel plugins",
		RunE:  runGateway,
	}
	cmd.Flags().StringVar(&selector, "message-gateway", "", "channel selector: \"all\" or a comma-separated id list with !id exclusions (absent = start nothing)")
	cmd.Flags().StringVar(&workspace, "workspace", ".", "workspace directory (channel log files, .env, config file)")
	cmd.Flags().StringVar(&projectRoot, "project-root", "", "directory plugin executable paths are resolved against (defaults to --workspace)")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "base URL of the task-execution runtime (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to message_gateway.config.json (default: message_gateway.config.json in the workspace)")
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8081", "address for the admin/diagnostics HTTP surface (health + /metrics)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "re-validate the config file on write and log drift (does not restart running channels)")
	return cmd
}

func runGateway(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("--server-url is required")
	}
	if _, err := url.ParseRequestURI(serverURL); err != nil {
		return fmt.Errorf("--server-url must be a valid absolute URL: %w", err)
	}

	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("resolving --workspace: %w", err)
	}
	root := projectRoot
	if root == "" {
		root = absWorkspace
	} else if !filepath.IsAbs(root) {
		root, err = filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving --project-root: %w", err)
		}
	}

	resolvedConfigPath := configPath
	if resolvedConfigPath == "" {
		resolvedConfigPath = filepath.Join(absWorkspace, "message_gateway.config.json")
	}
	cfg, err := gwconfig.Load(resolvedConfigPath)
	if err != nil {
		return fmt.Errorf("loading gateway config: %w", err)
	}

	logger := gwlog.NewJSONLogger(os.Stderr, verbose)
	metrics, registry := gwmetrics.New()

	mgr := gateway.New(absWorkspace, root, serverURL, cfg, logger)
	mgr.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watchConfig {
		if err := gwconfig.WatchDrift(ctx, resolvedConfigPath, logger); err != nil {
			logger.Warn("--watch-config could not start", map[string]any{"error": err.Error()})
		}
	}

	if selector != "" {
		if err := mgr.Start(ctx, selector); err != nil {
			return fmt.Errorf("starting channels: %w", err)
		}
	} else {
		logger.Info("no --message-gateway selector given, starting no channels", nil)
	}

	admin := newAdminServer(listenAddr, cfg, mgr, registry, logger)
	admin.start()
	defer admin.shutdown()

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping channels", nil)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return mgr.Stop(stopCtx)
}

// adminServer is the gateway's own small HTTP surface: health status at
// GatewayConfig.InboundPath (bearer-guarded when the gateway is enabled)
// and a Prometheus /metrics endpoint.
type adminServer struct {
	httpSrv *http.Server
	logger  gwlog.Logger
}

func newAdminServer(addr string, cfg gwtypes.GatewayConfig, mgr *gateway.Manager, registry *prometheus.Registry, logger gwlog.Logger) *adminServer {
	mux := http.NewServeMux()

	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		if cfg.Enabled && cfg.Auth.BearerToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+cfg.Auth.BearerToken {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": mgr.HealthStatus()})
	}
	mux.HandleFunc(cfg.InboundPath, healthHandler)
	if cfg.InboundPath != "/healthz" {
		mux.HandleFunc("/healthz", healthHandler)
	}
	mux.Handle("/metrics", gwmetrics.Handler(registry))

	return &adminServer{
		httpSrv: &http.Server{Addr: addr, Handler: mux},
		logger:  logger,
	}
}

func (a *adminServer) start() {
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("admin HTTP server stopped", map[string]any{"error": err.Error()})
		}
	}()
}

func (a *adminServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = a.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
