// Package gateway implements the Gateway Manager (C9): it owns every
// channel plugin subprocess for one gateway instance, spawning them with a
// merged environment, gating them on their health endpoint, pumping their
// stdout/stderr to per-channel log files, and tearing them down on stop.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aokihu/atom-message-gateway/internal/envfile"
	"github.com/aokihu/atom-message-gateway/internal/gwlog"
	"github.com/aokihu/atom-message-gateway/internal/gwmetrics"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

const healthPollInterval = 200 * time.Millisecond

var logSegmentSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeLogSegment maps a channel id to a safe log-directory path segment.
func sanitizeLogSegment(id string) string {
	s := logSegmentSanitizer.ReplaceAllString(id, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// Manager supervises every channel plugin subprocess for one gateway
// instance. One Manager per gateway process.
type Manager struct {
	workspace   string
	projectRoot string
	serverURL   string
	config      gwtypes.GatewayConfig
	logger      gwlog.Logger
	metrics     *gwmetrics.Collector

	mu       sync.RWMutex
	states   map[string]*ChannelRuntimeState
	stopping bool

	envOnce  sync.Once
	dotenv   map[string]string
}

// New creates a Manager. serverURL must be a non-empty base URL; Start
// fails fast otherwise, matching spec.md §4.9's "serverUrl must be set
// first, else fail".
func New(workspace, projectRoot, serverURL string, config gwtypes.GatewayConfig, logger gwlog.Logger) *Manager {
	if logger == nil {
		logger = gwlog.Nop{}
	}
	return &Manager{
		workspace:   workspace,
		projectRoot: projectRoot,
		serverURL:   serverURL,
		config:      config,
		logger:      logger,
		states:      make(map[string]*ChannelRuntimeState),
	}
}

// SetMetrics attaches a metrics collector. Optional; nil leaves metrics
// unreported, which Report/RefuseRestart call sites tolerate.
func (m *Manager) SetMetrics(c *gwmetrics.Collector) {
	m.metrics = c
}

// Start resolves the selector against enabled channels and spawns each
// selected channel's subprocess, per spec.md §4.9.
func (m *Manager) Start(ctx context.Context, selector string) error {
	if strings.TrimSpace(m.serverURL) == "" {
		return fmt.Errorf("gateway: serverUrl must be set before start")
	}
	if !m.config.Enabled {
		m.logger.Info("message gateway disabled, not starting any channel", nil)
		return nil
	}

	var knownIDs []string
	for _, d := range m.config.Channels {
		if d.Enabled {
			knownIDs = append(knownIDs, d.ID)
		}
	}

	selected, ignored, err := ParseSelector(selector, knownIDs)
	if err != nil {
		return fmt.Errorf("gateway: invalid channel selector: %w", err)
	}
	for _, id := range ignored {
		m.logger.Warn("unknown channel id in selector, ignoring", map[string]any{"id": id})
	}

	running := 0
	for _, d := range m.config.Channels {
		if !selected[d.ID] {
			continue
		}
		if err := m.spawnChannel(ctx, d); err != nil {
			m.logger.Error("failed to spawn channel", map[string]any{"id": d.ID, "error": err.Error()})
			continue
		}
		state := m.states[d.ID]
		if r, _, _ := state.snapshot(); r {
			running++
		}
	}

	m.logger.Info(fmt.Sprintf("started %d configured channel(s), running=%d", len(selected), running), nil)
	return nil
}

func (m *Manager) spawnChannel(ctx context.Context, d gwtypes.ChannelDescriptor) error {
	state := newChannelRuntimeState(d)
	m.mu.Lock()
	m.states[d.ID] = state
	m.mu.Unlock()

	logFile, err := m.openLogFile(d.ID)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	state.logFile = logFile

	entry, err := resolvePluginEntry(m.projectRoot, d.Type)
	if err != nil {
		m.closeAndMark(state, err.Error())
		return err
	}

	env, err := m.buildEnv(d)
	if err != nil {
		m.closeAndMark(state, err.Error())
		return err
	}

	cmd := exec.Command(entry)
	cmd.Dir = m.workspace
	cmd.Env = env
	cmd.Stdin = os.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.closeAndMark(state, err.Error())
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.closeAndMark(state, err.Error())
		return err
	}

	if err := cmd.Start(); err != nil {
		m.closeAndMark(state, err.Error())
		return err
	}
	state.cmd = cmd
	state.pid = cmd.Process.Pid
	m.writeLogLine(state, "system", fmt.Sprintf("spawned pid=%d entry=%s", state.pid, entry))

	go m.pumpLines(state, "stdout", stdout)
	go m.pumpLines(state, "stderr", stderr)
	go m.watchExit(state)

	m.waitForChannelHealth(state)
	return nil
}

// buildEnv merges workspace .env values, the inherited process environment,
// and the three ATOM_MESSAGE_GATEWAY_* overrides for one channel spawn.
func (m *Manager) buildEnv(d gwtypes.ChannelDescriptor) ([]string, error) {
	m.envOnce.Do(func() {
		m.dotenv = envfile.Load(filepath.Join(m.workspace, ".env"))
	})

	channelConfig, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshalling channel descriptor: %w", err)
	}
	globalConfig, err := json.Marshal(map[string]any{
		"enabled":     m.config.Enabled,
		"inboundPath": m.config.InboundPath,
		"auth":        m.config.Auth,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling global config: %w", err)
	}

	extra := map[string]string{
		gwtypes.EnvChannelConfig: string(channelConfig),
		gwtypes.EnvGlobalConfig:  string(globalConfig),
		gwtypes.EnvServerURL:     m.serverURL,
	}

	return envfile.Merge(m.dotenv, os.Environ(), extra), nil
}

func (m *Manager) openLogFile(channelID string) (*os.File, error) {
	dir := filepath.Join(m.workspace, ".agent", "message-gateway", sanitizeLogSegment(channelID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := time.Now().UTC().Format("2006-01-02T15-04-05.000Z") + ".log"
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (m *Manager) pumpLines(state *ChannelRuntimeState, level string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m.writeLogLine(state, level, scanner.Text())
	}
}

func (m *Manager) writeLogLine(state *ChannelRuntimeState, level, text string) {
	state.mu.Lock()
	f := state.logFile
	state.mu.Unlock()
	if f == nil {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s\n", time.Now().UTC().Format(time.RFC3339), level, text)
	_, _ = f.WriteString(line)
}

// watchExit is the sole caller of state.cmd.Wait(): exec.Cmd.Wait must not
// be called more than once, so stopOne waits on state.waitDone instead of
// calling Wait itself.
func (m *Manager) watchExit(state *ChannelRuntimeState) {
	err := state.cmd.Wait()

	m.mu.RLock()
	stopping := m.stopping
	m.mu.RUnlock()

	running, _, _ := state.snapshot()
	if running {
		msg := "process exited"
		if err != nil {
			msg = fmt.Sprintf("process exited with error: %s", err)
		}
		state.setRunning(false, msg)
		m.writeLogLine(state, "system", msg)
		if !stopping {
			m.logger.Warn("channel process exited unexpectedly", map[string]any{"id": state.Descriptor.ID, "error": msg})
			if m.metrics != nil {
				m.metrics.RefuseRestart()
			}
		}
	}

	state.mu.Lock()
	if state.logFile != nil {
		_ = state.logFile.Close()
		state.logFile = nil
	}
	state.mu.Unlock()

	close(state.waitDone)
}

// waitForChannelHealth polls the channel's health endpoint every 200ms
// until a 2xx response or the configured startup timeout elapses.
func (m *Manager) waitForChannelHealth(state *ChannelRuntimeState) {
	ep := state.Descriptor.Endpoint
	url := fmt.Sprintf("http://%s:%d%s", ep.Host, ep.Port, ep.HealthPath)
	deadline := time.Now().Add(time.Duration(ep.StartupTimeoutMs) * time.Millisecond)

	var lastErr string
	client := &http.Client{Timeout: healthPollInterval}
	for {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				state.setRunning(true, "")
				m.writeLogLine(state, "system", "health check passed")
				return
			}
			lastErr = fmt.Sprintf("health check returned status %d", resp.StatusCode)
		} else {
			lastErr = err.Error()
		}

		if time.Now().After(deadline) {
			state.setRunning(false, lastErr)
			m.writeLogLine(state, "system", "health check timed out: "+lastErr)
			m.killChannel(state)
			if m.metrics != nil {
				m.metrics.RefuseRestart()
			}
			return
		}
		time.Sleep(healthPollInterval)
	}
}

func (m *Manager) killChannel(state *ChannelRuntimeState) {
	if state.cmd == nil || state.cmd.Process == nil {
		return
	}
	_ = state.cmd.Process.Kill()
}

func (m *Manager) closeAndMark(state *ChannelRuntimeState, errMsg string) {
	state.setRunning(false, errMsg)
	if state.logFile != nil {
		_ = state.logFile.Close()
	}
}

// HealthStatus reports the live state of every configured channel.
func (m *Manager) HealthStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := HealthStatus{
		Enabled:     m.config.Enabled,
		InboundPath: m.config.InboundPath,
		Configured:  len(m.config.Channels),
	}
	for _, d := range m.config.Channels {
		ch := ChannelHealth{ID: d.ID, Type: d.Type, Enabled: d.Enabled, Endpoint: d.Endpoint}
		if state, ok := m.states[d.ID]; ok {
			running, errMsg, pid := state.snapshot()
			ch.Running = running
			ch.Error = errMsg
			ch.PID = pid
		}
		if ch.Running {
			status.Running++
		} else if ch.Error != "" {
			status.Failed++
		}
		status.Channels = append(status.Channels, ch)
	}
	if m.metrics != nil {
		m.metrics.Report(status.Configured, status.Running, status.Failed)
	}
	return status
}

// Stop kills every running channel subprocess concurrently and waits for
// them to exit. Idempotent.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	states := make([]*ChannelRuntimeState, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, state := range states {
		wg.Add(1)
		go func(s *ChannelRuntimeState) {
			defer wg.Done()
			m.stopOne(ctx, s)
		}(state)
	}
	wg.Wait()
	return nil
}

func (m *Manager) stopOne(ctx context.Context, state *ChannelRuntimeState) {
	if state.cmd == nil || state.cmd.Process == nil {
		return
	}
	_ = state.cmd.Process.Signal(os.Interrupt)

	select {
	case <-state.waitDone:
	case <-time.After(5 * time.Second):
		_ = state.cmd.Process.Kill()
		<-state.waitDone
	case <-ctx.Done():
		_ = state.cmd.Process.Kill()
	}
}
