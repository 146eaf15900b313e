package telegramchannel

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestStartWebhookRenewal_SchedulesAndStops(t *testing.T) {
	bot := &fakeBot{requestResp: &tgbotapi.APIResponse{Ok: true}}
	p := New("tg1", Settings{WebhookPublicBaseURL: "https://example.com", WebhookPath: "/hook"}, nil, bot, nil)

	c := p.StartWebhookRenewal()
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one scheduled entry, got %d", len(c.Entries()))
	}
	c.Stop()
}
