package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terminalops/movewatch/internal/config"
)

const defaultTextTimeout = 10 * time.Second

// Text delivers alerts through a CallMeBot-style WhatsApp gateway: one GET
// per configured (phone, api key) recipient.
type Text struct {
	gatewayURL string
	recipients []config.TextRecipient
	client     *http.Client
}

// NewText builds the text channel from configuration. With no recipients
// every broadcast is a no-op.
func NewText(cfg config.TextChannelConfig) *Text {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTextTimeout
	}
	return &Text{
		gatewayURL: cfg.GatewayURL,
		recipients: cfg.Recipients,
		client:     &http.Client{Timeout: timeout},
	}
}

func (t *Text) Name() string { return "text" }

// Broadcast sends the alert to every recipient. Per-recipient failures are
// counted, not raised.
func (t *Text) Broadcast(ctx context.Context, title, body string) Result {
	var res Result
	message := title + "\n" + body

	for _, r := range t.recipients {
		if err := t.send(ctx, r, message); err != nil {
			res.Failed++
			log.Error().Err(err).Str("channel", "text").Str("phone", maskPhone(r.Phone)).Msg("delivery failed")
			continue
		}
		res.Delivered++
		log.Info().Str("channel", "text").Str("phone", maskPhone(r.Phone)).Msg("delivered")
	}
	return res
}

func (t *Text) send(ctx context.Context, r config.TextRecipient, message string) error {
	q := url.Values{}
	q.Set("phone", r.Phone)
	q.Set("text", message)
	q.Set("apikey", r.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.gatewayURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

// maskPhone keeps logs useful without spelling out recipient numbers.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
