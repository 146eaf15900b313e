// Package tasksummary maps a terminal task snapshot from the task runtime
// into a single user-visible reply and a classification of its kind.
package tasksummary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

// Kind classifies the summarizer's output.
type Kind string

const (
	KindAssistantReply Kind = "assistant_reply"
	KindSystem         Kind = "system"
	KindError          Kind = "error"
)

// Summary is the tagged-union result of summarizing a terminal task.
type Summary struct {
	Kind         Kind
	ReplyText    string
	StatusNotice string
}

// controlledStopReasons is the closed set of stop reasons that represent a
// graceful, non-error non-completion of a task.
var controlledStopReasons = map[string]bool{
	"tool_budget_exhausted":       true,
	"step_limit_segment_continue": true,
	"model_step_budget_exhausted": true,
	"continuation_limit_reached":  true,
	"tool_policy_blocked":         true,
	"intent_execution_failed":     true,
}

// Summarize classifies a terminal TaskSnapshot per spec.md §4.4.
func Summarize(t gwtypes.TaskSnapshot) Summary {
	switch t.Status {
	case gwtypes.TaskStatusSuccess:
		if t.Result != nil {
			return Summary{
				Kind:         KindAssistantReply,
				ReplyText:    *t.Result,
				StatusNotice: fmt.Sprintf("Reply received (%d chars)", len([]rune(*t.Result))),
			}
		}
		return Summary{Kind: KindSystem, StatusNotice: "Task succeeded with empty result."}

	case gwtypes.TaskStatusFailed:
		if notice, ok := controlledStopNotice(t); ok {
			return Summary{Kind: KindSystem, StatusNotice: notice}
		}
		msg := "Unknown error"
		if t.Error != nil && t.Error.Message != "" {
			msg = t.Error.Message
		}
		return Summary{Kind: KindError, StatusNotice: "Task failed: " + msg}

	case gwtypes.TaskStatusCancelled:
		return Summary{Kind: KindSystem, StatusNotice: "Task was cancelled."}

	default:
		return Summary{Kind: KindSystem, StatusNotice: fmt.Sprintf("Task completed with unexpected status: %s", t.Status)}
	}
}

// controlledStopNotice builds the "Task not completed: ..." notice when the
// task failed via a controlled (non-error) stop reason.
func controlledStopNotice(t gwtypes.TaskSnapshot) (string, bool) {
	if t.Metadata == nil || t.Metadata.Execution == nil {
		return "", false
	}
	exec := t.Metadata.Execution
	if exec.Completed == nil || *exec.Completed {
		return "", false
	}
	if !controlledStopReasons[exec.StopReason] {
		return "", false
	}

	reason := strings.ReplaceAll(exec.StopReason, "_", " ")

	var stats []string
	if exec.TotalToolCalls != nil {
		stats = append(stats, "tools "+strconv.Itoa(*exec.TotalToolCalls))
	}
	if exec.TotalModelSteps != nil {
		stats = append(stats, "model steps "+strconv.Itoa(*exec.TotalModelSteps))
	}
	if exec.SegmentCount != nil {
		stats = append(stats, "segments "+strconv.Itoa(*exec.SegmentCount))
	}

	notice := "Task not completed: " + reason
	if len(stats) > 0 {
		notice += " (" + strings.Join(stats, ", ") + ")"
	}
	return notice, true
}

// IsTaskStillRunning reports whether status is non-terminal.
func IsTaskStillRunning(status gwtypes.TaskStatus) bool {
	return gwtypes.IsTaskStillRunning(status)
}
