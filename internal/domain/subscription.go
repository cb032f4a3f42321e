package domain

import "time"

// Subscription is one registered web push endpoint. The endpoint URL is the
// identity: re-registration upserts, a permanently failed delivery deletes.
type Subscription struct {
	ID        int64
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
	LastSeen  time.Time
}
