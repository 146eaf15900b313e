package tasksummary

import (
	"testing"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
func strPtr(s string) *string {
	return &s
}

// S4: summarizer success.
func TestSummarize_S4(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{
		Status: gwtypes.TaskStatusSuccess,
		Result: strPtr("hello"),
	})
	want := Summary{Kind: KindAssistantReply, ReplyText: "hello", StatusNotice: "Reply received (5 chars)"}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestSummarize_SuccessEmptyResult(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{Status: gwtypes.TaskStatusSuccess})
	if got.Kind != KindSystem || got.StatusNotice != "Task succeeded with empty result." {
		t.Errorf("Summarize() = %+v", got)
	}
}

// S5: summarizer controlled stop.
func TestSummarize_S5(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{
		Status: gwtypes.TaskStatusFailed,
		Metadata: &gwtypes.TaskMetadata{
			Execution: &gwtypes.TaskExecutionMeta{
				Completed:      boolPtr(false),
				StopReason:     "tool_budget_exhausted",
				TotalToolCalls: intPtr(7),
			},
		},
	})
	want := "Task not completed: tool budget exhausted (tools 7)"
	if got.Kind != KindSystem || got.StatusNotice != want {
		t.Errorf("Summarize() = %+v, want StatusNotice %q", got, want)
	}
}

func TestSummarize_FailedUncontrolled(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{
		Status: gwtypes.TaskStatusFailed,
		Error:  &gwtypes.TaskError{Message: "boom"},
	})
	if got.Kind != KindError || got.StatusNotice != "Task failed: boom" {
		t.Errorf("Summarize() = %+v", got)
	}
}

func TestSummarize_FailedUnknownError(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{Status: gwtypes.TaskStatusFailed})
	if got.Kind != KindError || got.StatusNotice != "Task failed: Unknown error" {
		t.Errorf("Summarize() = %+v", got)
	}
}

func TestSummarize_FailedUnrecognizedStopReason(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{
		Status: gwtypes.TaskStatusFailed,
		Error:  &gwtypes.TaskError{Message: "x"},
		Metadata: &gwtypes.TaskMetadata{
			Execution: &gwtypes.TaskExecutionMeta{
				Completed:  boolPtr(false),
				StopReason: "some_unknown_reason",
			},
		},
	})
	if got.Kind != KindError {
		t.Errorf("Summarize() kind = %v, want error for unrecognized stop reason", got.Kind)
	}
}

func TestSummarize_Cancelled(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{Status: gwtypes.TaskStatusCancelled})
	if got.Kind != KindSystem || got.StatusNotice != "Task was cancelled." {
		t.Errorf("Summarize() = %+v", got)
	}
}

func TestSummarize_UnexpectedStatus(t *testing.T) {
	got := Summarize(gwtypes.TaskSnapshot{Status: "weird"})
	if got.Kind != KindSystem || got.StatusNotice != "Task completed with unexpected status: weird" {
		t.Errorf("Summarize() = %+v", got)
	}
}

func TestSummarize_KindMatchesAssistantReplyInvariant(t *testing.T) {
	cases := []gwtypes.TaskSnapshot{
		{Status: gwtypes.TaskStatusSuccess, Result: strPtr("x")},
		{Status: gwtypes.TaskStatusSuccess},
		{Status: gwtypes.TaskStatusFailed},
		{Status: gwtypes.TaskStatusCancelled},
		{Status: gwtypes.TaskStatusPending},
	}
	for _, c := range cases {
		s := Summarize(c)
		isAssistant := s.Kind == KindAssistantReply
		shouldBe := c.Status == gwtypes.TaskStatusSuccess && c.Result != nil
		if isAssistant != shouldBe {
			t.Errorf("case %+v: kind=%v, assistant-reply invariant violated", c, s.Kind)
		}
	}
}

func TestIsTaskStillRunning(t *testing.T) {
	if !IsTaskStillRunning(gwtypes.TaskStatusPending) {
		t.Error("pending should be running")
	}
	if !IsTaskStillRunning(gwtypes.TaskStatusRunning) {
		t.Error("running should be running")
	}
	for _, s := range []gwtypes.TaskStatus{gwtypes.TaskStatusSuccess, gwtypes.TaskStatusFailed, gwtypes.TaskStatusCancelled} {
		if IsTaskStillRunning(s) {
			t.Errorf("%v should not be running", s)
		}
	}
}
