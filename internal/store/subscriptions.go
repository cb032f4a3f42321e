package store

import (
	"context"
	"fmt"
	"time"

	"github.com/terminalops/movewatch/internal/domain"
)

// UpsertSubscription registers a push endpoint or refreshes an existing one.
// Keyed on the endpoint URL so concurrent re-registrations collapse to one row.
func (s *Store) UpsertSubscription(ctx context.Context, endpoint, p256dh, auth string, at time.Time) (domain.Subscription, error) {
	sub := domain.Subscription{
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		CreatedAt: at,
		LastSeen:  at,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (endpoint, p256dh, auth, created_at, last_seen)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (endpoint) DO UPDATE SET p256dh = $2, auth = $3, last_seen = $4
		 RETURNING id`,
		endpoint, p256dh, auth, at).Scan(&sub.ID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// Subscriptions returns every registered endpoint.
func (s *Store) Subscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, p256dh, auth, created_at, last_seen
		 FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth,
			&sub.CreatedAt, &sub.LastSeen); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// CountSubscriptions returns the number of registered endpoints.
func (s *Store) CountSubscriptions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

// DeleteSubscription removes a permanently dead endpoint. Idempotent.
func (s *Store) DeleteSubscription(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// TouchSubscription refreshes last_seen after a successful delivery.
func (s *Store) TouchSubscription(ctx context.Context, endpoint string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_seen = $1 WHERE endpoint = $2`, at, endpoint); err != nil {
		return fmt.Errorf("touch subscription: %w", err)
	}
	return nil
}
