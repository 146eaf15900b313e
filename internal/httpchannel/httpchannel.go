// Package httpchannel implements the generic HTTP channel plugin (C7):
// accept JSON posts from any producer and submit them as runtime tasks.
// Delivery-back is a log line; there is no reply-polling loop.
package httpchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aokihu/atom-message-gateway/internal/gwconfig"
	"github.com/aokihu/atom-message-gateway/internal/runtimeclient"
)

const defaultInboundPath = "/http/webhook"

// Settings is the resolved configuration for one HTTP channel instance.
type Settings struct {
	InboundPath string
	AuthToken   string
}

// RawSettings mirrors the channel.settings JSON shape.
type RawSettings struct {
	InboundPath    string `json:"inboundPath"`
	AuthToken      string `json:"authToken"`
	AuthTokenEnv   string `json:"authTokenEnv"`
}

// ResolveSettings validates and normalizes a channel's raw settings.
func ResolveSettings(raw json.RawMessage) (Settings, error) {
	var rs RawSettings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rs); err != nil {
			return Settings{}, fmt.Errorf("httpchannel: invalid settings: %w", err)
		}
	}

	path := rs.InboundPath
	if path == "" {
		path = defaultInboundPath
	}
	if path[0] != '/' {
		return Settings{}, fmt.Errorf("httpchannel: inboundPath must start with /, got %q", path)
	}

	token, err := gwconfig.ResolveSecret(gwconfig.SecretRef{
		EnvName:     rs.AuthTokenEnv,
		InlineValue: rs.AuthToken,
	}, "httpchannel.authToken")
	if err != nil {
		return Settings{}, err
	}

	return Settings{InboundPath: path, AuthToken: token}, nil
}

// Plugin is the HTTP channel plugin instance.
type Plugin struct {
	channelID string
	settings  Settings
	runtime   *runtimeclient.Client
	log       func(msg string, fields map[string]any)
}

// New creates an HTTP channel plugin.
func New(channelID string, settings Settings, runtime *runtimeclient.Client, log func(string, map[string]any)) *Plugin {
	if log == nil {
		log = func(string, map[string]any) {}
	}
	return &Plugin{channelID: channelID, settings: settings, runtime: runtime, log: log}
}

// InboundPath returns the webhook path this plugin should be mounted at.
func (p *Plugin) InboundPath() string { return p.settings.InboundPath }

type webhookBody struct {
	Text           string `json:"text"`
	Message        string `json:"message"`
	Input          string `json:"input"`
	ConversationID string `json:"conversationId"`
	ChatID         string `json:"chatId"`
	ThreadID       string `json:"threadId"`
	SenderID       string `json:"senderId"`
	UserID         string `json:"userId"`
	From           string `json:"from"`
}

// Handler returns the http.HandlerFunc to mount at InboundPath().
func (p *Plugin) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if p.settings.AuthToken != "" {
			want := "Bearer " + p.settings.AuthToken
			if r.Header.Get("Authorization") != want {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		raw, _ := io.ReadAll(r.Body)
		var body webhookBody
		_ = json.Unmarshal(raw, &body) // parse failure treated as empty object

		text := firstNonEmpty(body.Text, body.Message, body.Input)
		if strings.TrimSpace(text) == "" {
			writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "accepted": false, "reason": "no text"})
			return
		}

		conversationID := firstNonEmpty(body.ConversationID, body.ChatID, body.ThreadID)
		if conversationID == "" {
			conversationID = "http"
		}
		senderID := firstNonEmpty(body.SenderID, body.UserID, body.From)
		if senderID == "" {
			senderID = "unknown"
		}

		input := fmt.Sprintf("[channel=%s conversation=%s sender=%s]\n%s", p.channelID, conversationID, senderID, strings.TrimSpace(text))

		resp, err := p.runtime.CreateTask(r.Context(), runtimeclient.CreateTaskRequest{
			Type:  "message_gateway.input",
			Input: input,
		})
		if err != nil {
			p.log("createTask failed", map[string]any{"error": err.Error()})
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}

		p.log("delivered inbound message", map[string]any{"conversationId": conversationID, "taskId": resp.TaskID})
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "accepted": true, "taskId": resp.TaskID})
	}
}

// HandleShutdownRPC implements the channel.shutdown RPC method: it invokes
// stop and then exits the process, per spec.md §4.7.
func HandleShutdownRPC(stop func(context.Context) error, exit func(int)) func(ctx context.Context, params json.RawMessage) (any, error) {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		err := stop(ctx)
		go func() {
			exit(0)
		}()
		if err != nil {
			return nil, err
		}
		return map[string]any{"stopped": true}, nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
