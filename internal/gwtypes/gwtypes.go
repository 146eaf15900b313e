// Package gwtypes holds the neutral data model shared by every gateway
// subsystem: channel descriptors, the inbound-request snapshot, parsed
// messages, and the task runtime's terminal-state shape.
package gwtypes

import "encoding/json"

// Environment variable names the manager sets on every plugin subprocess it
// spawns (spec.md §6).
const (
	EnvChannelConfig = "ATOM_MESSAGE_GATEWAY_CHANNEL_CONFIG"
	EnvGlobalConfig  = "ATOM_MESSAGE_GATEWAY_GLOBAL_CONFIG"
	EnvServerURL     = "ATOM_MESSAGE_GATEWAY_SERVER_URL"
)

// ChannelType enumerates the supported channel kinds.
type ChannelType string

const (
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeHTTP     ChannelType = "http"
)

// ChannelEndpoint describes where a plugin's local HTTP server listens.
type ChannelEndpoint struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	HealthPath       string `json:"healthPath"`
	InvokePath       string `json:"invokePath"`
	StartupTimeoutMs int    `json:"startupTimeoutMs"`
}

// ChannelDescriptor is an immutable, resolved channel configuration.
type ChannelDescriptor struct {
	ID       string          `json:"id"`
	Type     ChannelType     `json:"type"`
	Enabled  bool            `json:"enabled"`
	Endpoint ChannelEndpoint `json:"endpoint"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// GatewayAuth carries the resolved bearer token for the gateway's own
// inbound HTTP surface.
type GatewayAuth struct {
	BearerToken string `json:"bearerToken"`
}

// GatewayConfig is the top-level resolved gateway configuration.
type GatewayConfig struct {
	Enabled     bool                `json:"enabled"`
	InboundPath string              `json:"inboundPath"`
	Auth        GatewayAuth         `json:"auth"`
	Channels    []ChannelDescriptor `json:"channels"`
}

// InboundRequest is a neutral snapshot of one external HTTP call.
type InboundRequest struct {
	RequestID  string
	Method     string
	Headers    map[string]string
	Query      map[string]string
	Body       json.RawMessage
	RawBody    []byte
	ReceivedAt int64 // wall-clock milliseconds
}

// InboundMessage is one normalized user-originated text event.
type InboundMessage struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Text           string
	Metadata       map[string]any
}

// ImmediateReply is a reply delivered without a runtime round-trip.
type ImmediateReply struct {
	ConversationID string
	Text           string
	Metadata       map[string]any
}

// ParsedInbound is the result of parsing one platform payload.
type ParsedInbound struct {
	Accepted            bool
	Messages            []InboundMessage
	ImmediateResponses  []ImmediateReply
}

// TaskStatus enumerates the task runtime's status taxonomy.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskExecutionMeta carries the runtime's execution-completion detail.
type TaskExecutionMeta struct {
	Completed       *bool  `json:"completed,omitempty"`
	StopReason      string `json:"stopReason,omitempty"`
	SegmentCount    *int   `json:"segmentCount,omitempty"`
	TotalToolCalls  *int   `json:"totalToolCalls,omitempty"`
	TotalModelSteps *int   `json:"totalModelSteps,omitempty"`
	RetrySuppressed *bool  `json:"retrySuppressed,omitempty"`
}

// TaskMetadata wraps the execution sub-object the summarizer inspects.
type TaskMetadata struct {
	Execution *TaskExecutionMeta `json:"execution,omitempty"`
}

// TaskError carries the runtime's error detail for a failed task.
type TaskError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// TaskSnapshot is the runtime's view of a task at a point in time.
type TaskSnapshot struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Status   TaskStatus    `json:"status"`
	Result   *string       `json:"result,omitempty"`
	Error    *TaskError    `json:"error,omitempty"`
	Metadata *TaskMetadata `json:"metadata,omitempty"`
}

// IsTaskStillRunning reports whether status represents a non-terminal task.
func IsTaskStillRunning(status TaskStatus) bool {
	return status == TaskStatusPending || status == TaskStatusRunning
}
