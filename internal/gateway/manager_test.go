package gateway

import (
	"context"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/aokihu/atom-message-gateway/internal/gwlog"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// S10: Manager health gate. A process that never opens its health port is
// killed once startupTimeoutMs elapses, and the state is marked not running.
func TestWaitForChannelHealth_TimesOutAndKillsProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available in this environment: %v", err)
	}

	m := &Manager{logger: gwlog.Nop{}, states: map[string]*ChannelRuntimeState{}}
	d := gwtypes.ChannelDescriptor{
		ID: "never-healthy",
		Endpoint: gwtypes.ChannelEndpoint{
			Host:             "127.0.0.1",
			Port:             freeTCPPort(t),
			HealthPath:       "/healthz",
			StartupTimeoutMs: 250,
		},
	}
	state := newChannelRuntimeState(d)
	state.cmd = cmd

	start := time.Now()
	m.waitForChannelHealth(state)
	elapsed := time.Since(start)

	running, errMsg, _ := state.snapshot()
	if running {
		t.Error("expected running=false after health timeout")
	}
	if errMsg == "" {
		t.Error("expected a non-empty error message")
	}
	if elapsed < 250*time.Millisecond {
		t.Errorf("returned too early: %v", elapsed)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	select {
	case <-waitErr:
	case <-time.After(2 * time.Second):
		t.Error("process was not killed within 2s of health timeout")
	}
}

// Only watchExit may call state.cmd.Wait(); stopOne must wait on
// state.waitDone instead of calling Wait() itself on the same live process.
func TestSpawnAndStopConcurrently_NoDoubleWait(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available in this environment: %v", err)
	}

	m := &Manager{logger: gwlog.Nop{}, states: map[string]*ChannelRuntimeState{}}
	state := newChannelRuntimeState(gwtypes.ChannelDescriptor{ID: "dual-wait"})
	state.cmd = cmd
	state.setRunning(true, "")
	m.states["dual-wait"] = state

	go m.watchExit(state)

	done := make(chan struct{})
	go func() {
		m.stopOne(context.Background(), state)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stopOne did not return within 2s of signaling the process")
	}

	select {
	case <-state.waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watchExit never closed waitDone after the process exited")
	}

	if running, _, _ := state.snapshot(); running {
		t.Error("expected running=false after the process was stopped")
	}
}

func TestHealthStatus_ReflectsConfiguredChannels(t *testing.T) {
	cfg := gwtypes.GatewayConfig{
		Enabled:     true,
		InboundPath: "/inbound",
		Channels: []gwtypes.ChannelDescriptor{
			{ID: "a", Type: gwtypes.ChannelTypeHTTP, Enabled: true},
			{ID: "b", Type: gwtypes.ChannelTypeTelegram, Enabled: true},
		},
	}
	m := New("/tmp/workspace", "/tmp/project", "http://runtime.local", cfg, gwlog.Nop{})

	state := newChannelRuntimeState(cfg.Channels[0])
	state.setRunning(true, "")
	m.states["a"] = state

	status := m.HealthStatus()
	if status.Configured != 2 {
		t.Errorf("Configured = %d, want 2", status.Configured)
	}
	if status.Running != 1 {
		t.Errorf("Running = %d, want 1", status.Running)
	}
}

func TestStart_DisabledGatewayNoOp(t *testing.T) {
	m := New("/tmp/workspace", "/tmp/project", "http://runtime.local", gwtypes.GatewayConfig{Enabled: false}, gwlog.Nop{})
	if err := m.Start(context.Background(), "all"); err != nil {
		t.Fatal(err)
	}
}

func TestStart_MissingServerURLFails(t *testing.T) {
	m := New("/tmp/workspace", "/tmp/project", "", gwtypes.GatewayConfig{Enabled: true}, gwlog.Nop{})
	if err := m.Start(context.Background(), "all"); err == nil {
		t.Error("expected error when serverUrl is empty")
	}
}

func TestSanitizeLogSegment(t *testing.T) {
	cases := map[string]string{
		"tg1":       "tg1",
		"":          "unknown",
		"a/b c":     "a_b_c",
		"日本語":       "___",
	}
	for in, want := range cases {
		if got := sanitizeLogSegment(in); got != want {
			t.Errorf("sanitizeLogSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
