package deadman

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
	"github.com/lcrostarosa/legacyvault/internal/notify"
)

// Deps are the collaborators of a Service. Switches, Ledger, CheckIns,
// Directory and Channel are required.
type Deps struct {
	Switches  SwitchStore
	Ledger    NotificationLedger
	CheckIns  CheckInLog
	Owners    OwnerRegistry
	Directory OwnerDirectory
	Channel   notify.Channel

	Renderer        *notify.Renderer
	Clock           Clock
	Links           Links
	Observer        Observer
	ScanLock        ScanLock
	Tokens          TokenSource
	ScanConcurrency int
}

// Service exposes the switch operations to the API and CLI layers.
type Service struct {
	switches  SwitchStore
	ledger    NotificationLedger
	checkIns  CheckInLog
	owners    OwnerRegistry
	directory OwnerDirectory
	renderer  *notify.Renderer
	clock     Clock
	scanLock  ScanLock

	dispatcher *Dispatcher
	checkin    *CheckInHandler
	validator  *TokenValidator
	scanner    *Scanner

	scanning sync.Mutex
}

// NewService validates deps and builds the component graph.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Switches == nil:
		return nil, errors.New("deadman: switch store is required")
	case d.Ledger == nil:
		return nil, errors.New("deadman: notification ledger is required")
	case d.CheckIns == nil:
		return nil, errors.New("deadman: check-in log is required")
	case d.Directory == nil:
		return nil, errors.New("deadman: owner directory is required")
	case d.Channel == nil:
		return nil, errors.New("deadman: delivery channel is required")
	}
	if d.Renderer == nil {
		r, err := notify.NewRenderer("")
		if err != nil {
			return nil, err
		}
		d.Renderer = r
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Observer == nil {
		d.Observer = NopObserver{}
	}

	dispatcher := NewDispatcher(d.Ledger, d.Channel, d.Renderer, d.Clock, d.Links, d.Observer)
	trigger := NewTriggerExecutor(d.Switches, dispatcher, d.Renderer, d.Clock, d.Links, d.Observer, d.Tokens)

	return &Service{
		switches:   d.Switches,
		ledger:     d.Ledger,
		checkIns:   d.CheckIns,
		owners:     d.Owners,
		directory:  d.Directory,
		renderer:   d.Renderer,
		clock:      d.Clock,
		scanLock:   d.ScanLock,
		dispatcher: dispatcher,
		checkin:    NewCheckInHandler(d.Switches, d.CheckIns, d.Clock, d.Observer),
		validator:  NewTokenValidator(d.Switches, d.Directory, d.Clock, d.Observer),
		scanner:    NewScanner(d.Switches, d.Directory, dispatcher, trigger, d.Clock, d.Observer, d.ScanConcurrency),
	}, nil
}

// ConfigureParams configure a switch for an owner.
type ConfigureParams struct {
	OwnerRef        string
	Nominee         Nominee
	PersonalMessage string
	// InactivityPeriodDays defaults to DefaultInactivityPeriodDays when zero.
	InactivityPeriodDays int
}

// ConfigureSwitch creates the owner's switch or updates its nominee details
// and period in place. A new switch starts inactive with its clock at now.
func (s *Service) ConfigureSwitch(ctx context.Context, p ConfigureParams) (*Switch, error) {
	if strings.TrimSpace(p.OwnerRef) == "" {
		return nil, apperrors.Configuration("configure", "owner reference is required")
	}
	if p.InactivityPeriodDays == 0 {
		p.InactivityPeriodDays = DefaultInactivityPeriodDays
	}
	if p.InactivityPeriodDays < 0 || p.InactivityPeriodDays > MaxInactivityPeriodDays {
		return nil, apperrors.Configuration("configure",
			fmt.Sprintf("inactivity period must be between 1 and %d days, got %d",
				MaxInactivityPeriodDays, p.InactivityPeriodDays))
	}
	p.Nominee.Email = strings.TrimSpace(p.Nominee.Email)
	if err := validateEmail("configure", "nominee email", p.Nominee.Email); err != nil {
		return nil, err
	}

	existing, err := s.switches.GetSwitchByOwner(ctx, p.OwnerRef)
	switch {
	case err == nil:
		updated, err := s.switches.ConditionalUpdate(ctx, existing.ID, existing.Version, SwitchPatch{
			Nominee:              &p.Nominee,
			PersonalMessage:      &p.PersonalMessage,
			InactivityPeriodDays: &p.InactivityPeriodDays,
		})
		if err != nil {
			return nil, apperrors.Store("configure.update", err)
		}
		logging.Info("Switch reconfigured",
			logging.String("switch_id", updated.ID),
			logging.Int("inactivity_period_days", updated.InactivityPeriodDays),
		)
		return updated, nil

	case errors.Is(err, apperrors.ErrNotFound):
		now := s.clock.Now()
		sw := &Switch{
			ID:                   uuid.NewString(),
			OwnerRef:             p.OwnerRef,
			Nominee:              p.Nominee,
			PersonalMessage:      p.PersonalMessage,
			InactivityPeriodDays: p.InactivityPeriodDays,
			LastCheckIn:          &now,
			Version:              1,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.switches.CreateSwitch(ctx, sw); err != nil {
			return nil, apperrors.Store("configure.create", err)
		}
		logging.Info("Switch configured",
			logging.String("switch_id", sw.ID),
			logging.Int("inactivity_period_days", sw.InactivityPeriodDays),
		)
		return sw.Clone(), nil

	default:
		return nil, apperrors.Store("configure.lookup", err)
	}
}

// SetActive enables or disables scanning. Enabling starts the clock at now;
// disabling clears it so a later activation does not inherit old silence.
func (s *Service) SetActive(ctx context.Context, switchID string, active bool) (*Switch, error) {
	sw, err := s.switches.GetSwitch(ctx, switchID)
	if err != nil {
		return nil, apperrors.Store("set_active.get", err)
	}

	patch := SwitchPatch{IsActive: &active}
	if active {
		now := s.clock.Now()
		patch.LastCheckIn = &now
	} else {
		patch.ClearLastCheckIn = true
	}

	updated, err := s.switches.ConditionalUpdate(ctx, sw.ID, sw.Version, patch)
	if err != nil {
		return nil, apperrors.Store("set_active.update", err)
	}
	logging.Info("Switch activation changed",
		logging.String("switch_id", switchID),
		logging.Bool("active", active),
	)
	return updated, nil
}

// CheckInResult is returned by CheckIn.
type CheckInResult struct {
	SwitchID      string    `json:"switch_id"`
	LastCheckIn   time.Time `json:"last_check_in"`
	NextTriggerAt time.Time `json:"next_trigger_at"`
}

// CheckIn resets the switch's inactivity clock.
func (s *Service) CheckIn(ctx context.Context, switchID string, origin Origin) (*CheckInResult, error) {
	sw, err := s.checkin.CheckIn(ctx, switchID, origin)
	if err != nil {
		return nil, err
	}
	return &CheckInResult{
		SwitchID:      sw.ID,
		LastCheckIn:   *sw.LastCheckIn,
		NextTriggerAt: sw.LastCheckIn.Add(periodDuration(sw.InactivityPeriodDays)),
	}, nil
}

// CheckInOwner checks in the switch belonging to ownerRef.
func (s *Service) CheckInOwner(ctx context.Context, ownerRef string, origin Origin) (*CheckInResult, error) {
	sw, err := s.switches.GetSwitchByOwner(ctx, ownerRef)
	if err != nil {
		return nil, apperrors.Store("checkin.owner", err)
	}
	return s.CheckIn(ctx, sw.ID, origin)
}

// Status is the read model returned by GetStatus.
type Status struct {
	Configured           bool       `json:"configured"`
	SwitchID             string     `json:"switch_id,omitempty"`
	IsActive             bool       `json:"is_active"`
	IsTriggered          bool       `json:"is_triggered"`
	LastCheckIn          *time.Time `json:"last_check_in,omitempty"`
	DaysSinceCheckIn     int        `json:"days_since_check_in"`
	DaysUntilTrigger     int        `json:"days_until_trigger"`
	InactivityPeriodDays int        `json:"inactivity_period_days"`
	NomineeEmail         string     `json:"nominee_email,omitempty"`
	NomineeName          string     `json:"nominee_name,omitempty"`
	TriggeredAt          *time.Time `json:"triggered_at,omitempty"`
}

// GetStatus reports the switch's current state. A triggered switch always
// reports zero days until trigger.
func (s *Service) GetStatus(ctx context.Context, switchID string) (*Status, error) {
	sw, err := s.switches.GetSwitch(ctx, switchID)
	if err != nil {
		return nil, apperrors.Store("status.get", err)
	}
	return s.status(sw), nil
}

// GetStatusByOwner is GetStatus keyed by owner. An owner without a switch
// gets Configured=false rather than an error.
func (s *Service) GetStatusByOwner(ctx context.Context, ownerRef string) (*Status, error) {
	sw, err := s.switches.GetSwitchByOwner(ctx, ownerRef)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &Status{Configured: false}, nil
	}
	if err != nil {
		return nil, apperrors.Store("status.owner", err)
	}
	return s.status(sw), nil
}

func (s *Service) status(sw *Switch) *Status {
	st := &Status{
		Configured:           true,
		SwitchID:             sw.ID,
		IsActive:             sw.IsActive,
		IsTriggered:          sw.IsTriggered,
		LastCheckIn:          cloneTime(sw.LastCheckIn),
		InactivityPeriodDays: sw.InactivityPeriodDays,
		NomineeEmail:         sw.Nominee.Email,
		NomineeName:          sw.Nominee.Name,
		TriggeredAt:          cloneTime(sw.TriggeredAt),
	}
	if sw.LastCheckIn != nil {
		st.DaysSinceCheckIn = DaysBetween(*sw.LastCheckIn, s.clock.Now())
	}
	if !sw.IsTriggered {
		st.DaysUntilTrigger = max(0, sw.InactivityPeriodDays-st.DaysSinceCheckIn)
	}
	return st
}

// RunScan runs one scan. Overlapping calls in this process, or across
// processes when a ScanLock is configured, fail with ErrScanInProgress.
func (s *Service) RunScan(ctx context.Context) (*ScanReport, error) {
	if !s.scanning.TryLock() {
		return nil, apperrors.ErrScanInProgress
	}
	defer s.scanning.Unlock()

	if s.scanLock != nil {
		release, ok, err := s.scanLock.TryAcquire(ctx)
		if err != nil {
			return nil, apperrors.Store("scan.lock", err)
		}
		if !ok {
			return nil, apperrors.ErrScanInProgress
		}
		defer release()
	}

	return s.scanner.Run(ctx)
}

// ValidateAccessToken resolves a nominee's token to a Grant.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*Grant, error) {
	return s.validator.Validate(ctx, token)
}

// SendTestNotification sends a one-off message to the nominee. It is
// recorded with kind test and ignores the dedup window.
func (s *Service) SendTestNotification(ctx context.Context, switchID string) (*NotificationRecord, error) {
	sw, err := s.switches.GetSwitch(ctx, switchID)
	if err != nil {
		return nil, apperrors.Store("test_notification.get", err)
	}

	ownerEmail, err := s.directory.ResolveEmail(ctx, sw.OwnerRef)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Store("test_notification.owner", err)
	}

	msg, err := s.renderer.Test(notify.TestData{
		NomineeName:  sw.Nominee.Name,
		NomineeEmail: sw.Nominee.Email,
		OwnerEmail:   ownerEmail,
	})
	if err != nil {
		return nil, err
	}

	rec, err := s.dispatcher.Deliver(ctx, sw.ID, KindTest, sw.Nominee.Email, msg)
	return &rec, err
}

// UpsertOwner records or updates an owner's contact address.
func (s *Service) UpsertOwner(ctx context.Context, ref, email string) error {
	if s.owners == nil {
		return apperrors.Configuration("owner.upsert", "no owner registry configured")
	}
	if strings.TrimSpace(ref) == "" {
		return apperrors.Configuration("owner.upsert", "owner reference is required")
	}
	email = strings.TrimSpace(email)
	if err := validateEmail("owner.upsert", "owner email", email); err != nil {
		return err
	}
	if err := s.owners.UpsertOwner(ctx, Owner{Ref: ref, Email: email, UpdatedAt: s.clock.Now()}); err != nil {
		return apperrors.Store("owner.upsert", err)
	}
	if inv, ok := s.directory.(interface{ Invalidate(ref string) }); ok {
		inv.Invalidate(ref)
	}
	return nil
}

// History holds a switch's audit trail, oldest first.
type History struct {
	Notifications []NotificationRecord `json:"notifications"`
	CheckIns      []CheckInEvent       `json:"check_ins"`
}

// GetHistory returns the notification and check-in logs of a switch.
func (s *Service) GetHistory(ctx context.Context, switchID string) (*History, error) {
	if _, err := s.switches.GetSwitch(ctx, switchID); err != nil {
		return nil, apperrors.Store("history.get", err)
	}
	notes, err := s.ledger.ListNotifications(ctx, switchID)
	if err != nil {
		return nil, apperrors.Store("history.notifications", err)
	}
	checkIns, err := s.checkIns.ListCheckIns(ctx, switchID)
	if err != nil {
		return nil, apperrors.Store("history.check_ins", err)
	}
	return &History{Notifications: notes, CheckIns: checkIns}, nil
}

func validateEmail(op, field, addr string) error {
	if addr == "" {
		return apperrors.Configuration(op, field+" is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return apperrors.Configuration(op, field+" is not a valid address")
	}
	return nil
}
