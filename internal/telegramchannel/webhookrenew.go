package telegramchannel

import (
	cronlib "github.com/robfig/cron/v3"
)

// StartWebhookRenewal schedules a periodic re-registration of the
// plugin's webhook, guarding against Telegram silently expiring it after
// prolonged inactivity (spec.md §9 is silent on this; webhooks are
// otherwise registered once at startup). Off by default — callers check
// Settings.WebhookRenewalEnabled before calling this. Returns the started
// cron.Cron so the caller can Stop() it on shutdown.
func (p *Plugin) StartWebhookRenewal() *cronlib.Cron {
	c := cronlib.New()
	_, _ = c.AddFunc("0 */6 * * *", func() {
		if err := p.RegisterWebhook(); err != nil {
			p.log("scheduled webhook renewal failed", map[string]any{"error": err.Error()})
			return
		}
		p.log("scheduled webhook renewal succeeded", nil)
	})
	c.Start()
	return c
}
