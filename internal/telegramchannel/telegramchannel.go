// Package telegramchannel implements the Telegram channel plugin (C8): the
// one channel with real conversational behavior. It registers a webhook,
// filters to an allow-listed set of chats, answers a couple of bot commands
// directly, and otherwise bridges chat text to the task runtime, polling
// for completion and relaying the summarized reply back through Telegram.
package telegramchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/aokihu/atom-message-gateway/internal/gwconfig"
	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
	"github.com/aokihu/atom-message-gateway/internal/mdescape"
	"github.com/aokihu/atom-message-gateway/internal/msgsplit"
	"github.com/aokihu/atom-message-gateway/internal/runtimeclient"
	"github.com/aokihu/atom-message-gateway/internal/tasksummary"
)

const (
	defaultWebhookPath       = "/telegram/webhook"
	defaultParseMode         = "MarkdownV2"
	defaultChunkSize         = 3500
	defaultPollIntervalMs    = 1000
	secretTokenHeader        = "x-telegram-bot-api-secret-token"
	helpText                 = "Available commands:\n/start - check that the bot is ready\n/help - show this message\n\nAny other message is sent to the agent as a task."
	startReplyText           = "Atom bot is ready. Send a message to start a task."
	unsupportedMessageNotice = "Only text messages are supported."
)

var commandPattern = regexp.MustCompile(`^/([a-zA-Z0-9_]+)(?:@[a-zA-Z0-9_]+)?(?:\s|$)`)

// ackPhrases is the fixed pool of ten acknowledgements; one is drawn at
// random and sent before each inbound message's task is created.
var ackPhrases = []string{
	"收到，正在思考中，请稍候。",
	"好的，这就去处理。",
	"任务已接收，马上开始。",
	"收到消息，正在安排执行。",
	"明白了，稍等片刻。",
	"已收到，正在处理中。",
	"好嘞，马上给您结果。",
	"收到啦，正在努力处理。",
	"请稍候，正在为您处理。",
	"任务进行中，请耐心等待。",
}

// RawSettings mirrors the telegram channel's settings JSON shape.
type RawSettings struct {
	AllowedChatIDs            json.RawMessage `json:"allowedChatIds"`
	BotToken                  string          `json:"botToken"`
	BotTokenEnv               string          `json:"botTokenEnv"`
	WebhookPublicBaseURL      string          `json:"webhookPublicBaseUrl"`
	WebhookPath               string          `json:"webhookPath"`
	WebhookSecretToken        string          `json:"webhookSecretToken"`
	WebhookSecretTokenEnv     string          `json:"webhookSecretTokenEnv"`
	DropPendingUpdatesOnStart *bool           `json:"dropPendingUpdatesOnStart"`
	ParseMode                 string          `json:"parseMode"`
	ChunkSize                 *int            `json:"chunkSize"`
	PollIntervalMs            *int            `json:"pollIntervalMs"`
	WebhookRenewalEnabled     *bool           `json:"webhookRenewalEnabled"`
}

// Settings is the resolved, validated configuration for one Telegram
// channel instance.
type Settings struct {
	AllowedChatIDs            map[string]bool
	BotToken                  string
	WebhookPublicBaseURL      string
	WebhookPath               string
	WebhookSecretToken        string
	DropPendingUpdatesOnStart bool
	ParseMode                 string
	ChunkSize                 int
	PollIntervalMs            int
	WebhookRenewalEnabled     bool
}

// WebhookURL is the full URL this channel must be registered under.
func (s Settings) WebhookURL() string {
	return s.WebhookPublicBaseURL + s.WebhookPath
}

// ResolveSettings validates and normalizes a Telegram channel's raw settings
// per spec.md §4.8.
func ResolveSettings(raw json.RawMessage) (Settings, error) {
	var rs RawSettings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rs); err != nil {
			return Settings{}, fmt.Errorf("telegramchannel: invalid settings: %w", err)
		}
	}

	allowed, err := resolveAllowedChatIDs(rs.AllowedChatIDs)
	if err != nil {
		return Settings{}, err
	}

	botToken, err := gwconfig.ResolveSecret(gwconfig.SecretRef{
		EnvName:     rs.BotTokenEnv,
		InlineValue: rs.BotToken,
		Required:    true,
	}, "telegramchannel.botToken")
	if err != nil {
		return Settings{}, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(rs.WebhookPublicBaseURL), "/")
	if baseURL == "" {
		return Settings{}, fmt.Errorf("telegramchannel: webhookPublicBaseUrl is required")
	}

	webhookPath := rs.WebhookPath
	if webhookPath == "" {
		webhookPath = defaultWebhookPath
	}
	if !strings.HasPrefix(webhookPath, "/") {
		return Settings{}, fmt.Errorf("telegramchannel: webhookPath must start with /, got %q", webhookPath)
	}

	secretToken, err := gwconfig.ResolveSecret(gwconfig.SecretRef{
		EnvName:     rs.WebhookSecretTokenEnv,
		InlineValue: rs.WebhookSecretToken,
	}, "telegramchannel.webhookSecretToken")
	if err != nil {
		return Settings{}, err
	}

	dropPending := true
	if rs.DropPendingUpdatesOnStart != nil {
		dropPending = *rs.DropPendingUpdatesOnStart
	}

	parseMode := rs.ParseMode
	if parseMode == "" {
		parseMode = defaultParseMode
	}
	if parseMode != "MarkdownV2" && parseMode != "plain" {
		return Settings{}, fmt.Errorf("telegramchannel: parseMode must be MarkdownV2 or plain, got %q", parseMode)
	}

	chunkSize := defaultChunkSize
	if rs.ChunkSize != nil {
		chunkSize = *rs.ChunkSize
	}
	if chunkSize < 1 || chunkSize > 4096 {
		return Settings{}, fmt.Errorf("telegramchannel: chunkSize must be in [1,4096], got %d", chunkSize)
	}

	pollInterval := defaultPollIntervalMs
	if rs.PollIntervalMs != nil {
		pollInterval = *rs.PollIntervalMs
	}
	if pollInterval < 0 || pollInterval > 60000 {
		return Settings{}, fmt.Errorf("telegramchannel: pollIntervalMs must be in [0,60000], got %d", pollInterval)
	}

	renewalEnabled := false
	if rs.WebhookRenewalEnabled != nil {
		renewalEnabled = *rs.WebhookRenewalEnabled
	}

	return Settings{
		AllowedChatIDs:            allowed,
		BotToken:                  botToken,
		WebhookPublicBaseURL:      baseURL,
		WebhookPath:               webhookPath,
		WebhookSecretToken:        secretToken,
		DropPendingUpdatesOnStart: dropPending,
		ParseMode:                 parseMode,
		ChunkSize:                 chunkSize,
		PollIntervalMs:            pollInterval,
		WebhookRenewalEnabled:     renewalEnabled,
	}, nil
}

// resolveAllowedChatIDs accepts either a JSON array of strings or a single
// comma-separated string, per spec.md §4.8.
func resolveAllowedChatIDs(raw json.RawMessage) (map[string]bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("telegramchannel: allowedChatIds is required")
	}

	var ids []string
	if strings.HasPrefix(trimmed, "[") {
		var arr []string
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("telegramchannel: invalid allowedChatIds array: %w", err)
		}
		ids = arr
	} else {
		var csv string
		if err := json.Unmarshal(raw, &csv); err != nil {
			return nil, fmt.Errorf("telegramchannel: invalid allowedChatIds string: %w", err)
		}
		ids = strings.Split(csv, ",")
	}

	allowed := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			allowed[id] = true
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("telegramchannel: allowedChatIds must contain at least one chat id")
	}
	return allowed, nil
}

// botAPI is the subset of *tgbotapi.BotAPI this plugin exercises. It exists
// so tests can substitute a fake instead of reaching the real Telegram API.
type botAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Plugin is the Telegram channel plugin instance.
type Plugin struct {
	channelID string
	settings  Settings
	runtime   *runtimeclient.Client
	bot       botAPI
	log       func(msg string, fields map[string]any)

	rng *rand.Rand
}

// New creates a Telegram channel plugin. bot is typically a *tgbotapi.BotAPI
// constructed with tgbotapi.NewBotAPI(settings.BotToken).
func New(channelID string, settings Settings, runtime *runtimeclient.Client, bot botAPI, log func(string, map[string]any)) *Plugin {
	if log == nil {
		log = func(string, map[string]any) {}
	}
	return &Plugin{
		channelID: channelID,
		settings:  settings,
		runtime:   runtime,
		bot:       bot,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterWebhook performs the startup setWebhook call per spec.md §4.8
// step 2. A non-ok Telegram response is a fatal startup error.
func (p *Plugin) RegisterWebhook() error {
	wh, err := tgbotapi.NewWebhook(p.settings.WebhookURL())
	if err != nil {
		return fmt.Errorf("telegramchannel: building webhook config: %w", err)
	}
	wh.DropPendingUpdates = p.settings.DropPendingUpdatesOnStart
	wh.SecretToken = p.settings.WebhookSecretToken

	resp, err := p.bot.Request(wh)
	if err != nil {
		return fmt.Errorf("telegramchannel: setWebhook request failed: %w", err)
	}
	if resp == nil || !resp.Ok {
		desc := "unknown error"
		if resp != nil {
			desc = resp.Description
		}
		return fmt.Errorf("telegramchannel: setWebhook rejected: %s", desc)
	}
	return nil
}

// Shutdown performs the best-effort graceful-shutdown sequence of spec.md
// §4.8: deleteWebhook, errors logged but never fatal.
func (p *Plugin) Shutdown(context.Context) error {
	resp, err := p.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: p.settings.DropPendingUpdatesOnStart})
	if err != nil {
		p.log("deleteWebhook failed", map[string]any{"error": err.Error()})
		return nil
	}
	if resp == nil || !resp.Ok {
		p.log("deleteWebhook rejected", map[string]any{"description": descriptionOf(resp)})
	}
	return nil
}

func descriptionOf(resp *tgbotapi.APIResponse) string {
	if resp == nil {
		return "unknown error"
	}
	return resp.Description
}

// Handler returns the webhook HTTP handler, mounted at settings.WebhookPath.
func (p *Plugin) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		req := buildInboundRequest(r)

		parsed := p.parseTelegramInbound(req)
		if !parsed.Accepted {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if len(parsed.Messages) > 0 || len(parsed.ImmediateResponses) > 0 {
			go p.processParsedInbound(context.Background(), parsed)
		}

		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "accepted": true})
	}
}

// buildInboundRequest snapshots one HTTP call per spec.md §4.8.
func buildInboundRequest(r *http.Request) gwtypes.InboundRequest {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	raw, _ := readAll(r)
	var body json.RawMessage
	if len(raw) > 0 {
		body = raw
	}

	return gwtypes.InboundRequest{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Headers:    headers,
		Query:      query,
		Body:       body,
		RawBody:    raw,
		ReceivedAt: time.Now().UnixMilli(),
	}
}

func readAll(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	buf := make([]byte, 0, 2048)
	chunk := make([]byte, 2048)
	for {
		n, err := r.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// tgUpdate is the minimal slice of a Telegram Update this channel inspects.
type tgUpdate struct {
	UpdateID int64       `json:"update_id"`
	Message  *tgMessage  `json:"message"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgUser struct {
	ID int64 `json:"id"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// parseTelegramInbound is the pure parse/authorize/command-dispatch step of
// spec.md §4.8, operating only on the request snapshot and settings.
func (p *Plugin) parseTelegramInbound(req gwtypes.InboundRequest) gwtypes.ParsedInbound {
	if p.settings.WebhookSecretToken != "" {
		if req.Headers[secretTokenHeader] != p.settings.WebhookSecretToken {
			return gwtypes.ParsedInbound{Accepted: false}
		}
	}

	var update tgUpdate
	if len(req.Body) == 0 || json.Unmarshal(req.Body, &update) != nil || update.Message == nil {
		return gwtypes.ParsedInbound{Accepted: true, Messages: nil}
	}
	msg := update.Message

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if !p.settings.AllowedChatIDs[chatID] {
		return gwtypes.ParsedInbound{Accepted: true, Messages: nil}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return gwtypes.ParsedInbound{
			Accepted: true,
			ImmediateResponses: []gwtypes.ImmediateReply{
				{ConversationID: chatID, Text: unsupportedMessageNotice},
			},
		}
	}

	if m := commandPattern.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "start":
			return gwtypes.ParsedInbound{
				Accepted: true,
				ImmediateResponses: []gwtypes.ImmediateReply{
					{ConversationID: chatID, Text: startReplyText},
				},
			}
		case "help":
			return gwtypes.ParsedInbound{
				Accepted: true,
				ImmediateResponses: []gwtypes.ImmediateReply{
					{ConversationID: chatID, Text: helpText},
				},
			}
		}
	}

	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}

	return gwtypes.ParsedInbound{
		Accepted: true,
		Messages: []gwtypes.InboundMessage{
			{
				MessageID:      strconv.FormatInt(msg.MessageID, 10),
				ConversationID: chatID,
				SenderID:       senderID,
				Text:           text,
				Metadata: map[string]any{
					"updateId": update.UpdateID,
					"chatType": msg.Chat.Type,
				},
			},
		},
	}
}

// processParsedInbound is the asynchronous delivery pipeline of spec.md
// §4.8: immediate responses, then ack+task+poll+reply per inbound message.
func (p *Plugin) processParsedInbound(ctx context.Context, parsed gwtypes.ParsedInbound) {
	for _, reply := range parsed.ImmediateResponses {
		if err := p.sendText(reply.ConversationID, reply.Text); err != nil {
			p.log("immediate response delivery failed", map[string]any{"error": err.Error()})
		}
	}

	for _, msg := range parsed.Messages {
		p.runMessagePipeline(ctx, msg)
	}
}

func (p *Plugin) runMessagePipeline(ctx context.Context, msg gwtypes.InboundMessage) {
	if err := p.sendText(msg.ConversationID, p.randomAck()); err != nil {
		p.log("ack delivery failed", map[string]any{"error": err.Error()})
	}

	reply, err := p.deliverTask(ctx, msg)
	if err != nil {
		p.log("message pipeline failed", map[string]any{"error": err.Error(), "conversationId": msg.ConversationID})
		if sendErr := p.sendText(msg.ConversationID, "Task failed: "+err.Error()); sendErr != nil {
			p.log("error-reply delivery failed", map[string]any{"error": sendErr.Error()})
		}
		return
	}

	if err := p.sendText(msg.ConversationID, reply); err != nil {
		p.log("reply delivery failed", map[string]any{"error": err.Error(), "conversationId": msg.ConversationID})
	}
}

func (p *Plugin) deliverTask(ctx context.Context, msg gwtypes.InboundMessage) (string, error) {
	input := fmt.Sprintf("[channel=%s conversation=%s sender=%s]\n%s", p.channelID, msg.ConversationID, msg.SenderID, msg.Text)

	created, err := p.runtime.CreateTask(ctx, runtimeclient.CreateTaskRequest{
		Type:  "message_gateway.input",
		Input: input,
	})
	if err != nil {
		return "", err
	}

	return p.awaitTaskResult(ctx, created.TaskID)
}

// awaitTaskResult polls the runtime until the task reaches a terminal state,
// then applies the Summarizer per spec.md §4.8 step 3.
func (p *Plugin) awaitTaskResult(ctx context.Context, taskID string) (string, error) {
	interval := time.Duration(p.settings.PollIntervalMs) * time.Millisecond
	for {
		got, err := p.runtime.GetTask(ctx, taskID)
		if err != nil {
			return "", err
		}
		if tasksummary.IsTaskStillRunning(got.Task.Status) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(interval):
			}
			continue
		}

		summary := tasksummary.Summarize(got.Task)
		if summary.Kind == tasksummary.KindAssistantReply {
			return summary.ReplyText, nil
		}
		return summary.StatusNotice, nil
	}
}

// sendText implements spec.md §4.8's sendText: normalize, escape, split,
// then deliver chunks sequentially and in order.
func (p *Plugin) sendText(conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		text = "(empty result)"
	}
	if p.settings.ParseMode == "MarkdownV2" {
		text = mdescape.Escape(text)
	}

	chunks, err := msgsplit.Split(text, p.settings.ChunkSize)
	if err != nil {
		return fmt.Errorf("telegramchannel: splitting reply: %w", err)
	}

	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegramchannel: conversationId %q is not a Telegram chat id: %w", conversationID, err)
	}

	for _, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if p.settings.ParseMode == "MarkdownV2" {
			msg.ParseMode = tgbotapi.ModeMarkdownV2
		}
		if _, err := p.bot.Send(msg); err != nil {
			return fmt.Errorf("telegramchannel: sendMessage: %w", err)
		}
	}
	return nil
}

func (p *Plugin) randomAck() string {
	return ackPhrases[p.rng.Intn(len(ackPhrases))]
}

// HandleShutdownRPC implements the channel.shutdown RPC method.
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
