// Package notify renders switch notifications and delivers them through
// pluggable channels (shoutrrr service URLs, HTTP webhooks, or the log).
package notify

import (
	"context"
)

// Message is a rendered notification. Text is always populated; HTML is
// used by channels that can carry it.
type Message struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Channel sends a rendered message to a single recipient address.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
}
