package deadman

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
	"github.com/lcrostarosa/legacyvault/internal/notify"
)

// Links builds the URLs embedded in messages.
type Links struct {
	BaseURL string
}

// CheckIn is the page where an owner resets their timer.
func (l Links) CheckIn() string {
	return strings.TrimRight(l.BaseURL, "/") + "/checkin"
}

// Access is the token-addressed locator handed to the nominee.
func (l Links) Access(token string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/vault/access/" + url.PathEscape(token)
}

// DispatchOutcome reports what Dispatch did.
type DispatchOutcome int

const (
	DispatchSent DispatchOutcome = iota
	DispatchFailed
	DispatchDeduplicated
)

func (o DispatchOutcome) String() string {
	switch o {
	case DispatchSent:
		return "sent"
	case DispatchFailed:
		return "failed"
	case DispatchDeduplicated:
		return "deduplicated"
	}
	return "unknown"
}

// Dispatcher sends staged reminders to owners and records every delivery
// attempt in the ledger.
type Dispatcher struct {
	ledger   NotificationLedger
	channel  notify.Channel
	renderer *notify.Renderer
	clock    Clock
	links    Links
	observer Observer
}

// NewDispatcher wires a dispatcher. A nil observer is replaced by NopObserver.
func NewDispatcher(ledger NotificationLedger, channel notify.Channel, renderer *notify.Renderer, clock Clock, links Links, observer Observer) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{
		ledger:   ledger,
		channel:  channel,
		renderer: renderer,
		clock:    clock,
		links:    links,
		observer: observer,
	}
}

// Dispatch sends the warning or final warning for ev to ownerEmail unless a
// sent record of the same kind exists within DedupWindow. The check happens
// before sending, so two concurrent dispatchers for one switch can both send.
func (d *Dispatcher) Dispatch(ctx context.Context, sw *Switch, ev Evaluation, ownerEmail string) (DispatchOutcome, error) {
	kind, ok := ev.Classification.NotificationKind()
	if !ok {
		return DispatchFailed, fmt.Errorf("no reminder for classification %s", ev.Classification)
	}

	now := d.clock.Now()
	exists, err := d.ledger.ExistsSince(ctx, sw.ID, kind, now.Add(-DedupWindow))
	if err != nil {
		return DispatchFailed, apperrors.Store("ledger.exists_since", err)
	}
	if exists {
		logging.Debug("Reminder already sent within dedup window",
			logging.String("switch_id", sw.ID),
			logging.String("kind", string(kind)),
		)
		return DispatchDeduplicated, nil
	}

	data := notify.WarningData{
		OwnerEmail:    ownerEmail,
		NomineeName:   sw.Nominee.Name,
		NomineeEmail:  sw.Nominee.Email,
		DaysRemaining: ev.DaysRemaining,
		CheckInURL:    d.links.CheckIn(),
	}
	if sw.LastCheckIn != nil {
		data.LastCheckIn = *sw.LastCheckIn
	}

	var msg notify.Message
	if kind == KindFinalWarning {
		msg, err = d.renderer.FinalWarning(data)
	} else {
		msg, err = d.renderer.Warning(data)
	}
	if err != nil {
		_, err = d.record(ctx, sw.ID, kind, ownerEmail, err)
		return DispatchFailed, err
	}

	if _, err := d.Deliver(ctx, sw.ID, kind, ownerEmail, msg); err != nil {
		if errors.Is(err, apperrors.ErrDelivery) {
			return DispatchFailed, err
		}
		// Sent, but the ledger write failed.
		return DispatchSent, err
	}
	return DispatchSent, nil
}

// Deliver sends msg and always appends a ledger record with the outcome.
// The returned error carries ErrDelivery when sending failed and ErrStore
// when the ledger write failed.
func (d *Dispatcher) Deliver(ctx context.Context, switchID string, kind NotificationKind, recipient string, msg notify.Message) (NotificationRecord, error) {
	sendErr := d.channel.Send(ctx, recipient, msg)
	return d.record(ctx, switchID, kind, recipient, sendErr)
}

func (d *Dispatcher) record(ctx context.Context, switchID string, kind NotificationKind, recipient string, sendErr error) (NotificationRecord, error) {
	rec := NotificationRecord{
		ID:        uuid.NewString(),
		SwitchID:  switchID,
		Kind:      kind,
		Recipient: recipient,
		SentAt:    d.clock.Now(),
		Status:    StatusSent,
	}
	if sendErr != nil {
		rec.Status = StatusFailed
		rec.Error = apperrors.SanitizeError(sendErr)
		logging.Warn("Notification delivery failed",
			logging.String("switch_id", switchID),
			logging.String("kind", string(kind)),
			logging.String("channel", d.channel.Name()),
			logging.Err(sendErr),
		)
	} else {
		logging.Info("Notification sent",
			logging.String("switch_id", switchID),
			logging.String("kind", string(kind)),
			logging.String("channel", d.channel.Name()),
		)
	}

	insertErr := d.ledger.InsertNotification(ctx, rec)
	if insertErr == nil {
		d.observer.NotificationRecorded(kind, rec.Status)
	}

	var errs []error
	if sendErr != nil {
		errs = append(errs, apperrors.Delivery("notify."+string(kind), sendErr))
	}
	if insertErr != nil {
		errs = append(errs, apperrors.Store("ledger.insert", insertErr))
	}
	return rec, errors.Join(errs...)
}
