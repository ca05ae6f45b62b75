package testutil

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"github.com/lcrostarosa/legacyvault/internal/notify"
)

// ErrInjected is returned by a RecordingChannel told to fail.
var ErrInjected = errors.New("injected delivery failure")

// Sent is one message captured by a RecordingChannel.
type Sent struct {
	Recipient string
	Message   notify.Message
}

// RecordingChannel captures every send. Failed sends are captured too.
type RecordingChannel struct {
	mu   sync.Mutex
	sent []Sent
	fail map[string]bool
	all  bool
}

func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{fail: make(map[string]bool)}
}

func (c *RecordingChannel) Name() string { return "recording" }

func (c *RecordingChannel) Send(_ context.Context, recipient string, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{Recipient: recipient, Message: msg})
	if c.all || c.fail[recipient] {
		return ErrInjected
	}
	return nil
}

// FailAll makes every subsequent send fail (or succeed again with false).
func (c *RecordingChannel) FailAll(fail bool) {
	c.mu.Lock()
	c.all = fail
	c.mu.Unlock()
}

// FailFor makes sends to recipient fail.
func (c *RecordingChannel) FailFor(recipient string) {
	c.mu.Lock()
	c.fail[recipient] = true
	c.mu.Unlock()
}

// Sent returns a copy of everything captured so far.
func (c *RecordingChannel) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// To returns the messages captured for recipient.
func (c *RecordingChannel) To(recipient string) []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Message
	for _, s := range c.sent {
		if s.Recipient == recipient {
			out = append(out, s.Message)
		}
	}
	return out
}

// Reset forgets captured messages.
func (c *RecordingChannel) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

var accessLink = regexp.MustCompile(`/vault/access/([A-Za-z0-9_-]+)`)

// AccessTokenFrom extracts the token from the access link in msg, or "".
func AccessTokenFrom(msg notify.Message) string {
	m := accessLink.FindStringSubmatch(msg.HTML)
	if m == nil {
		m = accessLink.FindStringSubmatch(msg.Text)
	}
	if m == nil {
		return ""
	}
	return m[1]
}
