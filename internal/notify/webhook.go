package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waabox/commitwatch/internal/domain"
)

// Flavor selects the JSON payload shape expected by the webhook.
type Flavor string

const (
	FlavorDiscord Flavor = "discord"
	FlavorSlack   Flavor = "slack"
)

// maxErrorBody bounds how much of a rejected response ends up in the error.
const maxErrorBody = 512

// Webhook posts messages to a chat webhook URL.
type Webhook struct {
	url    string
	flavor Flavor
	client *http.Client
}

// Ensure Webhook implements domain.Notifier.
var _ domain.Notifier = (*Webhook)(nil)

// NewWebhook creates a Webhook. An unknown flavor falls back to Discord.
func NewWebhook(url string, flavor Flavor, timeout time.Duration) *Webhook {
	if flavor != FlavorSlack {
		flavor = FlavorDiscord
	}
	return &Webhook{
		url:    url,
		flavor: flavor,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts msg once. Any non-2xx response or transport error wraps domain.ErrDelivery.
func (w *Webhook) Deliver(ctx context.Context, msg domain.Message) error {
	body, err := w.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %v: %w", err, domain.ErrDelivery)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook responded %s: %s: %w", resp.Status, strings.TrimSpace(string(detail)), domain.ErrDelivery)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (w *Webhook) encode(msg domain.Message) ([]byte, error) {
	if w.flavor == FlavorSlack {
		return json.Marshal(slackPayload(msg))
	}
	return json.Marshal(discordPayload(msg))
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Author      *discordAuthor `json:"author,omitempty"`
}

type discordAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

func discordPayload(msg domain.Message) discordMessage {
	lines := make([]string, len(msg.Lines))
	for i, l := range msg.Lines {
		lines[i] = fmt.Sprintf("[`%s`](%s) %s - %s", l.ShortSHA, l.URL, l.Summary, l.Author)
	}
	embed := discordEmbed{
		Title:       msg.Title,
		URL:         msg.URL,
		Description: strings.Join(lines, "\n"),
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	if msg.Author.Name != "" {
		embed.Author = &discordAuthor{Name: msg.Author.Name, URL: msg.Author.URL, IconURL: msg.Author.IconURL}
	}
	return discordMessage{Embeds: []discordEmbed{embed}}
}

type slackMessage struct {
	Text string `json:"text"`
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func slackPayload(msg domain.Message) slackMessage {
	var sb strings.Builder
	if msg.URL != "" {
		sb.WriteString(fmt.Sprintf("*<%s|%s>*", msg.URL, slackEscaper.Replace(msg.Title)))
	} else {
		sb.WriteString("*" + slackEscaper.Replace(msg.Title) + "*")
	}
	for _, l := range msg.Lines {
		sb.WriteString(fmt.Sprintf("\n<%s|`%s`> %s - %s", l.URL, l.ShortSHA, slackEscaper.Replace(l.Summary), slackEscaper.Replace(l.Author)))
	}
	return slackMessage{Text: sb.String()}
}
