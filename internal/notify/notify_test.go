package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

func TestRendererWarning(t *testing.T) {
	r := MustRenderer()
	msg, err := r.Warning(WarningData{
		OwnerEmail:    "owner@example.com",
		NomineeName:   "Jane",
		NomineeEmail:  "jane@example.com",
		DaysRemaining: 45,
		LastCheckIn:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		CheckInURL:    "https://vault.example.com/checkin",
	})
	require.NoError(t, err)

	assert.Equal(t, "Digital Legacy Vault - Check-in Reminder", msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://vault.example.com/checkin"`)
	assert.Contains(t, msg.HTML, "<strong>45 days</strong>")
	assert.Contains(t, msg.HTML, "January 2, 2024")
	assert.Contains(t, msg.HTML, "Jane")
	assert.Contains(t, msg.Text, "45 days")
	assert.NotContains(t, msg.Text, "<strong>")
}

func TestRendererWarningFallsBackToNomineeEmail(t *testing.T) {
	msg, err := MustRenderer().Warning(WarningData{NomineeEmail: "jane@example.com", DaysRemaining: 10})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "jane@example.com")
}

func TestRendererFinalWarning(t *testing.T) {
	msg, err := MustRenderer().FinalWarning(WarningData{NomineeName: "Jane", DaysRemaining: 12})
	require.NoError(t, err)
	assert.Equal(t, "URGENT: Digital Legacy Vault - Final Warning", msg.Subject)
	assert.Contains(t, msg.Text, "Only 12 days remaining")
}

func TestRendererTriggered(t *testing.T) {
	expires := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	msg, err := MustRenderer().Triggered(TriggeredData{
		NomineeName:     "Jane",
		OwnerEmail:      "owner@example.com",
		PersonalMessage: "Look after the cat",
		AccessURL:       "https://vault.example.com/vault/access/abc",
		ExpiresAt:       expires,
	})
	require.NoError(t, err)

	assert.Equal(t, "Digital Legacy Vault - You Have Been Granted Access", msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://vault.example.com/vault/access/abc"`)
	assert.Contains(t, msg.HTML, "Look after the cat")
	assert.Contains(t, msg.HTML, "Monday, March 4, 2024")
	assert.Contains(t, msg.Text, "Dear Jane")
}

func TestRendererTriggeredOmitsEmptyPersonalMessage(t *testing.T) {
	msg, err := MustRenderer().Triggered(TriggeredData{NomineeName: "Jane"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "Personal Message")
	assert.Contains(t, msg.HTML, "the vault owner")
}

func TestRendererEscapesData(t *testing.T) {
	msg, err := MustRenderer().Triggered(TriggeredData{PersonalMessage: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRendererCustomProduct(t *testing.T) {
	r, err := NewRenderer("Family Vault")
	require.NoError(t, err)
	msg, err := r.Test(TestData{NomineeName: "Jane", OwnerEmail: "owner@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Family Vault - Test Email Successful", msg.Subject)
	assert.Contains(t, msg.Text, "Hello Jane")
}

func TestLogChannel(t *testing.T) {
	ch := LogChannel{}
	assert.Equal(t, "log", ch.Name())
	assert.NoError(t, ch.Send(context.Background(), "jane@example.com", Message{Subject: "s", Text: "t"}))
	assert.Error(t, ch.Send(context.Background(), " ", Message{}))
}

func TestNewShoutrrrChannelValidation(t *testing.T) {
	_, err := NewShoutrrrChannel(nil, "", 0)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewShoutrrrChannel([]string{"notaservice://nowhere"}, "", 0)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	ch, err := NewShoutrrrChannel([]string{"logger://"}, "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, DefaultRecipientParam, ch.recipientParam)
	assert.Error(t, ch.Send(context.Background(), "", Message{}))
}

func TestShoutrrrChannelHonorsCancelledContext(t *testing.T) {
	ch, err := NewShoutrrrChannel([]string{"logger://"}, "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.Send(ctx, "jane@example.com", Message{}), context.Canceled)
}

func newMockedWebhook(t *testing.T) *WebhookChannel {
	t.Helper()
	ch, err := NewWebhookChannel("https://relay.example.com/send", WebhookOptions{Headers: map[string]string{"X-Token": "abc"}})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(ch.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return ch
}

func TestWebhookChannelPostsPayload(t *testing.T) {
	ch := newMockedWebhook(t)

	var got WebhookPayload
	var token string
	httpmock.RegisterResponder(http.MethodPost, "https://relay.example.com/send",
		func(req *http.Request) (*http.Response, error) {
			token = req.Header.Get("X-Token")
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(body, &got); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	err := ch.Send(context.Background(), "jane@example.com", Message{Subject: "Hi", Text: "body", HTML: "<p>body</p>"})
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "abc", token)
	assert.Equal(t, "jane@example.com", got.Recipient)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, "body", got.Text)
	assert.Equal(t, "<p>body</p>", got.HTML)
	assert.NotEmpty(t, got.SentAt)
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	ch := newMockedWebhook(t)
	httpmock.RegisterResponder(http.MethodPost, "https://relay.example.com/send",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	err := ch.Send(context.Background(), "jane@example.com", Message{Subject: "Hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWebhookChannelRejectsBadURL(t *testing.T) {
	_, err := NewWebhookChannel("ftp://relay", WebhookOptions{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(context.Context, string, Message) error {
	s.calls++
	return s.err
}

func TestMultiStopsAtFirstSuccess(t *testing.T) {
	failing := &stubChannel{name: "a", err: errors.New("boom")}
	ok := &stubChannel{name: "b"}
	never := &stubChannel{name: "c"}

	m := Multi{failing, ok, never}
	assert.Equal(t, "a+b+c", m.Name())
	require.NoError(t, m.Send(context.Background(), "x@example.com", Message{}))
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 0, never.calls)
}

func TestMultiJoinsErrors(t *testing.T) {
	m := Multi{&stubChannel{name: "a", err: errors.New("boom")}, &stubChannel{name: "b", err: errors.New("bang")}}
	err := m.Send(context.Background(), "x@example.com", Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Contains(t, err.Error(), "b: bang")

	assert.Error(t, Multi{}.Send(context.Background(), "x@example.com", Message{}))
}
