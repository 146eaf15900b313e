package gateway

import (
	"os"
	"os/exec"
	"sync"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

// ChannelRuntimeState is the manager's live view of one channel subprocess.
type ChannelRuntimeState struct {
	Descriptor gwtypes.ChannelDescriptor

	mu      sync.Mutex
	running bool
	errMsg  string
	pid     int

	cmd      *exec.Cmd
	logFile  *os.File
	waitDone chan struct{}
}

func newChannelRuntimeState(d gwtypes.ChannelDescriptor) *ChannelRuntimeState {
	return &ChannelRuntimeState{Descriptor: d, waitDone: make(chan struct{})}
}

func (s *ChannelRuntimeState) setRunning(running bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	s.errMsg = errMsg
}

func (s *ChannelRuntimeState) snapshot() (running bool, errMsg string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.errMsg, s.pid
}

// ChannelHealth is one channel's entry in the manager's health status report.
type ChannelHealth struct {
	ID       string                  `json:"id"`
	Type     gwtypes.ChannelType     `json:"type"`
	Enabled  bool                    `json:"enabled"`
	Running  bool                    `json:"running"`
	Endpoint gwtypes.ChannelEndpoint `json:"endpoint"`
	PID      int                     `json:"pid,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// HealthStatus is the manager's overall health report, per spec.md §4.9.
type HealthStatus struct {
	Enabled     bool            `json:"enabled"`
	InboundPath string          `json:"inboundPath"`
	Configured  int             `json:"configured"`
	Running     int             `json:"running"`
	Failed      int             `json:"failed"`
	Channels    []ChannelHealth `json:"channels"`
}
