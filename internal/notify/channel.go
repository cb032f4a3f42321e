// Package notify implements the outbound alert channels.
//
// Channel outcomes are typed results, never errors. A failed recipient is
// counted and logged; it must not stop delivery to the remaining recipients,
// and a channel failure must not reach the monitor loop as an error.
package notify

import "context"

// Result summarizes one broadcast across a channel's recipients.
type Result struct {
	Delivered int
	Failed    int
}

// Ok reports whether at least one recipient received the alert.
func (r Result) Ok() bool { return r.Delivered > 0 }

// Channel is one independent outbound delivery mechanism.
type Channel interface {
	Name() string
	Broadcast(ctx context.Context, title, body string) Result
}
