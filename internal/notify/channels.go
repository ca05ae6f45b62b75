package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// DefaultRecipientParam is the shoutrrr param the smtp service reads the
// destination address from.
const DefaultRecipientParam = "toaddresses"

var errNoRecipient = errors.New("recipient address is empty")

// --- Log channel ---

// LogChannel writes messages to the structured log instead of delivering
// them. It is the default when no delivery channel is configured.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(_ context.Context, recipient string, msg Message) error {
	if strings.TrimSpace(recipient) == "" {
		return errNoRecipient
	}
	logging.Info("Notification (log channel)",
		logging.String("recipient", apperrors.SanitizeString(recipient)),
		logging.String("subject", msg.Subject),
		zap.Int("text_bytes", len(msg.Text)),
	)
	logging.Debug("Notification body", logging.String("text", msg.Text))
	return nil
}

// --- Shoutrrr channel ---

// ShoutrrrChannel delivers through one or more shoutrrr service URLs
// (smtp://, generic+https://, ...). The recipient is passed as a service
// param so a single smtp URL can address any nominee.
type ShoutrrrChannel struct {
	mu             sync.Mutex
	sender         *router.ServiceRouter
	recipientParam string
}

// NewShoutrrrChannel builds a sender for urls. An empty recipientParam uses
// DefaultRecipientParam.
func NewShoutrrrChannel(urls []string, recipientParam string, timeout time.Duration) (*ShoutrrrChannel, error) {
	if len(urls) == 0 {
		return nil, apperrors.Configuration("notify.shoutrrr", "at least one service URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, apperrors.Configuration("notify.shoutrrr", apperrors.SanitizeError(err))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(zap.NewStdLog(logging.L().Named("shoutrrr")))

	if recipientParam == "" {
		recipientParam = DefaultRecipientParam
	}
	return &ShoutrrrChannel{sender: sender, recipientParam: recipientParam}, nil
}

func (s *ShoutrrrChannel) Name() string { return "shoutrrr" }

func (s *ShoutrrrChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if strings.TrimSpace(recipient) == "" {
		return errNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(msg.Subject)
	params[s.recipientParam] = recipient

	s.mu.Lock()
	errs := s.sender.Send(msg.Text, &params)
	s.mu.Unlock()

	for _, e := range errs {
		if e != nil {
			return fmt.Errorf("shoutrrr send: %s", apperrors.SanitizeError(e))
		}
	}
	return nil
}

// --- Webhook channel ---

// WebhookPayload is the JSON body POSTed by WebhookChannel.
type WebhookPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html,omitempty"`
	SentAt    string `json:"sent_at"`
}

// WebhookChannel POSTs each message as JSON to a fixed URL, typically a
// mail relay or an automation endpoint.
type WebhookChannel struct {
	url    string
	client *resty.Client
}

// WebhookOptions tune the webhook HTTP client.
type WebhookOptions struct {
	Timeout    time.Duration
	RetryCount int
	Headers    map[string]string
}

// NewWebhookChannel returns a channel posting to url.
func NewWebhookChannel(url string, opts WebhookOptions) (*WebhookChannel, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, apperrors.Configuration("notify.webhook", "webhook URL must be http or https")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "legacyvault-notifier")
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	return &WebhookChannel{url: url, client: client}, nil
}

// Client exposes the underlying resty client, mainly so tests can mock its
// transport.
func (w *WebhookChannel) Client() *resty.Client { return w.client }

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if strings.TrimSpace(recipient) == "" {
		return errNoRecipient
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{
			Recipient: recipient,
			Subject:   msg.Subject,
			Text:      msg.Text,
			HTML:      msg.HTML,
			SentAt:    time.Now().UTC().Format(time.RFC3339),
		}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request: %s", apperrors.SanitizeError(err))
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// --- Fan-out ---

// Multi tries each channel in order and stops at the first successful delivery.
type Multi []Channel

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, c := range m {
		names = append(names, c.Name())
	}
	return strings.Join(names, "+")
}

func (m Multi) Send(ctx context.Context, recipient string, msg Message) error {
	if len(m) == 0 {
		return errors.New("no notification channels configured")
	}
	var errs []error
	for _, c := range m {
		if err := c.Send(ctx, recipient, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
