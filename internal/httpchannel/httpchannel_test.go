package httpchannel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aokihu/atom-message-gateway/internal/runtimeclient"
)

func newRuntimeStub(t *testing.T, onCreate func(req map[string]any)) *runtimeclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if onCreate != nil {
			onCreate(body)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"data":{"taskId":"task-1","task":{"id":"task-1","type":"message_gateway.input","status":"pending"}}}`))
	}))
	t.Cleanup(srv.Close)
	return runtimeclient.New(srv.URL)
}

// S8: HTTP channel happy path.
func TestHandler_S8(t *testing.T) {
	var captured map[string]any
	rt := newRuntimeStub(t, func(req map[string]any) { captured = req })

	settings := Settings{InboundPath: "/http/webhook", AuthToken: "T"}
	p := New("http1", settings, rt, nil)

	body := `{"text":"do x","conversationId":"c1","senderId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/http/webhook", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer T")
	w := httptest.NewRecorder()

	p.Handler()(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["ok"] != true || resp["accepted"] != true || resp["taskId"] != "task-1" {
		t.Errorf("response = %v", resp)
	}
	wantInput := "[channel=http1 conversation=c1 sender=u1]\ndo x"
	if captured["input"] != wantInput {
		t.Errorf("input = %q, want %q", captured["input"], wantInput)
	}
	if captured["type"] != "message_gateway.input" {
		t.Errorf("type = %v", captured["type"])
	}
}

func TestHandler_WrongMethod(t *testing.T) {
	rt := newRuntimeStub(t, nil)
	p := New("http1", Settings{InboundPath: "/http/webhook"}, rt, nil)
	req := httptest.NewRequest(http.MethodGet, "/http/webhook", nil)
	w := httptest.NewRecorder()
	p.Handler()(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandler_MissingAuth(t *testing.T) {
	rt := newRuntimeStub(t, nil)
	p := New("http1", Settings{InboundPath: "/http/webhook", AuthToken: "T"}, rt, nil)
	req := httptest.NewRequest(http.MethodPost, "/http/webhook", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	p.Handler()(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandler_NoText(t *testing.T) {
	rt := newRuntimeStub(t, nil)
	p := New("http1", Settings{InboundPath: "/http/webhook"}, rt, nil)
	req := httptest.NewRequest(http.MethodPost, "/http/webhook", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	p.Handler()(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["accepted"] != false || resp["reason"] != "no text" {
		t.Errorf("response = %v", resp)
	}
}

func TestHandler_BadJSONTreatedAsEmpty(t *testing.T) {
	rt := newRuntimeStub(t, nil)
	p := New("http1", Settings{InboundPath: "/http/webhook"}, rt, nil)
	req := httptest.NewRequest(http.MethodPost, "/http/webhook", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	p.Handler()(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}

func TestResolveSettings_Defaults(t *testing.T) {
	s, err := ResolveSettings(nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.InboundPath != defaultInboundPath {
		t.Errorf("InboundPath = %q", s.InboundPath)
	}
}

func TestResolveSettings_InvalidPath(t *testing.T) {
	_, err := ResolveSettings([]byte(`{"inboundPath":"no-leading-slash"}`))
	if err == nil {
		t.Error("expected error for inboundPath without leading slash")
	}
}
