package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/terminalops/movewatch/internal/config"
	"github.com/terminalops/movewatch/internal/domain"
)

const (
	defaultPushTimeout = 10 * time.Second

	// Push notifications have no rich-text support and little room; bodies
	// are truncated and formatting markers stripped before delivery.
	maxPushBodyRunes = 240
)

// SubscriptionRegistry is the slice of the store the push channel needs.
// The channel prunes permanently dead endpoints itself.
type SubscriptionRegistry interface {
	Subscriptions(ctx context.Context) ([]domain.Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	TouchSubscription(ctx context.Context, endpoint string, at time.Time) error
}

// Push delivers alerts to the web push subscription registry using VAPID.
type Push struct {
	registry SubscriptionRegistry
	options  webpush.Options
	timeout  time.Duration
	clock    func() time.Time
}

// NewPush builds the push channel. clock stamps last_seen on successful
// deliveries and should match the service timezone; nil means time.Now.
// With empty VAPID keys the channel is disabled and every broadcast is a
// no-op.
func NewPush(cfg config.PushChannelConfig, registry SubscriptionRegistry, clock func() time.Time) *Push {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultPushTimeout
	}
	if clock == nil {
		clock = time.Now
	}
	return &Push{
		registry: registry,
		timeout:  timeout,
		clock:    clock,
		options: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		},
	}
}

func (p *Push) Name() string { return "push" }

// Broadcast delivers the alert to every subscribed endpoint. Endpoints the
// push service reports as gone are removed from the registry; transient
// failures keep the subscription.
func (p *Push) Broadcast(ctx context.Context, title, body string) Result {
	var res Result

	if p.options.VAPIDPrivateKey == "" {
		return res
	}

	subs, err := p.registry.Subscriptions(ctx)
	if err != nil {
		log.Error().Err(err).Str("channel", "push").Msg("load subscriptions failed")
		return res
	}

	payload := p.payload(title, body)

	for _, sub := range subs {
		outcome := p.deliver(ctx, sub, payload)
		switch outcome {
		case deliveryOK:
			res.Delivered++
			if err := p.registry.TouchSubscription(ctx, sub.Endpoint, p.clock()); err != nil {
				log.Warn().Err(err).Str("channel", "push").Msg("touch subscription failed")
			}
		case deliveryGone:
			res.Failed++
			log.Info().Str("channel", "push").Int64("subscription_id", sub.ID).Msg("endpoint gone, pruning")
			if err := p.registry.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				log.Warn().Err(err).Str("channel", "push").Msg("prune subscription failed")
			}
		default:
			res.Failed++
		}
	}
	return res
}

// payload builds the JSON the service worker expects: {title, body, url}.
func (p *Push) payload(title, body string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "title", title)
	out, _ = sjson.SetBytes(out, "body", truncateBody(body))
	out, _ = sjson.SetBytes(out, "url", "/alerts/latest")
	return out
}

type deliveryOutcome int

const (
	deliveryOK deliveryOutcome = iota
	deliveryGone
	deliveryFailed
)

func (p *Push) deliver(ctx context.Context, sub domain.Subscription, payload []byte) deliveryOutcome {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(callCtx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &p.options)
	if err != nil {
		log.Error().Err(err).Str("channel", "push").Int64("subscription_id", sub.ID).Msg("delivery failed")
		return deliveryFailed
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return deliveryGone
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return deliveryOK
	default:
		log.Warn().Str("channel", "push").Int("status", resp.StatusCode).
			Int64("subscription_id", sub.ID).Msg("delivery rejected")
		return deliveryFailed
	}
}

var markerStripper = strings.NewReplacer("*", "", "_", "")

func truncateBody(body string) string {
	body = markerStripper.Replace(body)
	runes := []rune(body)
	if len(runes) <= maxPushBodyRunes {
		return body
	}
	return string(runes[:maxPushBodyRunes-1]) + "…"
}
