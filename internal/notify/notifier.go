package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Message is one notification to fan out.
//
// Channels optionally restricts delivery to the named channels; empty
// means every channel whose severity floor the message clears.
// DedupeKey suppresses repeats of the same condition within the
// dispatcher's dedupe window; empty disables deduplication.
type Message struct {
	Subject   string
	Body      string
	Severity  Severity
	DedupeKey string
	Channels  []string
}

// Notifier delivers one message to one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// discord rejects content over 2000 runes.
const discordContentMax = 2000

// SlackWebhook posts messages to a Slack incoming webhook.
type SlackWebhook struct {
	URL    string
	Client *http.Client
}

// Send implements Notifier.
func (n SlackWebhook) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, n.Client, n.URL, map[string]string{
		"text": msg.Subject + "\n" + msg.Body,
	})
}

// DiscordWebhook posts messages to a Discord webhook.
type DiscordWebhook struct {
	URL    string
	Client *http.Client
}

// Send implements Notifier.
func (n DiscordWebhook) Send(ctx context.Context, msg Message) error {
	content := msg.Subject + "\n" + msg.Body
	if runes := []rune(content); len(runes) > discordContentMax {
		content = string(runes[:discordContentMax])
	}
	return postJSON(ctx, n.Client, n.URL, map[string]string{
		"content": content,
	})
}

// TelegramBot posts messages through the bot sendMessage endpoint.
type TelegramBot struct {
	URL    string // https://api.telegram.org/bot<token>/sendMessage
	ChatID string
	Client *http.Client
}

// Send implements Notifier.
func (n TelegramBot) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, n.Client, n.URL, map[string]string{
		"chat_id": n.ChatID,
		"text":    msg.Subject + "\n" + msg.Body,
	})
}

// GenericWebhook posts the full message as JSON for in-house receivers.
type GenericWebhook struct {
	URL    string
	Client *http.Client
}

// Send implements Notifier.
func (n GenericWebhook) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, n.Client, n.URL, map[string]string{
		"subject":  msg.Subject,
		"body":     msg.Body,
		"severity": msg.Severity.String(),
	})
}

// newNotifier builds the Notifier for a validated channel config.
func newNotifier(cfg ChannelConfig, client *http.Client) Notifier {
	switch cfg.Kind {
	case KindSlack:
		return SlackWebhook{URL: cfg.WebhookURL, Client: client}
	case KindDiscord:
		return DiscordWebhook{URL: cfg.WebhookURL, Client: client}
	case KindTelegram:
		return TelegramBot{URL: cfg.WebhookURL, ChatID: cfg.ChatID, Client: client}
	default:
		return GenericWebhook{URL: cfg.WebhookURL, Client: client}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
