package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// switchRow keeps TokenDigest NULL while no token is issued so the unique
// index ignores untriggered switches.
type switchRow struct {
	ID                   string     `gorm:"primaryKey;size:36"`
	OwnerRef             string     `gorm:"size:191;not null;uniqueIndex"`
	NomineeEmail         string     `gorm:"size:320;not null"`
	NomineeName          string     `gorm:"size:255"`
	NomineeRelation      string     `gorm:"size:255"`
	PersonalMessage      string     `gorm:"type:text"`
	InactivityPeriodDays int        `gorm:"not null"`
	LastCheckIn          *time.Time
	IsActive             bool       `gorm:"not null;index:idx_switch_eligible,priority:1"`
	IsTriggered          bool       `gorm:"not null;index:idx_switch_eligible,priority:2"`
	TokenDigest          *string    `gorm:"size:64;uniqueIndex"`
	TokenExpiresAt       *time.Time
	TriggeredAt          *time.Time
	Version              int64      `gorm:"not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (switchRow) TableName() string { return "dead_man_switches" }

type notificationRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SwitchID  string    `gorm:"size:36;not null;index:idx_notification_dedup,priority:1"`
	Kind      string    `gorm:"size:32;not null;index:idx_notification_dedup,priority:2"`
	Status    string    `gorm:"size:16;not null;index:idx_notification_dedup,priority:3"`
	SentAt    time.Time `gorm:"not null;index:idx_notification_dedup,priority:4"`
	Recipient string    `gorm:"size:320"`
	Error     string    `gorm:"type:text"`
}

func (notificationRow) TableName() string { return "notification_logs" }

type checkInRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SwitchID  string    `gorm:"size:36;not null;index"`
	At        time.Time `gorm:"not null"`
	IP        string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:512"`
	Source    string    `gorm:"size:32"`
}

func (checkInRow) TableName() string { return "check_in_logs" }

type ownerRow struct {
	Ref       string `gorm:"primaryKey;size:191"`
	Email     string `gorm:"size:320;not null"`
	UpdatedAt time.Time
}

func (ownerRow) TableName() string { return "owners" }

// Gorm is a SQL store backed by gorm. Conditional updates are a single
// UPDATE ... WHERE id = ? AND version = ? statement.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm connects to sqlite or mysql and migrates the schema.
func OpenGorm(driver, dsn string) (*Gorm, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "legacyvault.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		if dsn == "" {
			return nil, apperrors.Configuration("store.open", "mysql requires a dsn")
		}
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			zap.NewStdLog(logging.L().Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, apperrors.Store("store.open", fmt.Errorf("%s", apperrors.SanitizeError(err)))
	}

	if driver == DriverSQLite {
		// SQLite has a single writer; one connection also keeps :memory:
		// databases shared across goroutines.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, apperrors.Store("store.open", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGorm(db)
}

// NewGorm wraps an open connection and migrates the schema.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&switchRow{}, &notificationRow{}, &checkInRow{}, &ownerRow{}); err != nil {
		return nil, apperrors.Store("store.migrate", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gorm) CreateSwitch(ctx context.Context, sw *deadman.Switch) error {
	row := toSwitchRow(sw)
	if row.Version == 0 {
		row.Version = 1
	}
	return translate(g.db.WithContext(ctx).Create(&row).Error)
}

func (g *Gorm) ListEligible(ctx context.Context) ([]deadman.Switch, error) {
	var rows []switchRow
	err := g.db.WithContext(ctx).
		Where("is_active = ? AND is_triggered = ?", true, false).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]deadman.Switch, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toSwitch())
	}
	return out, nil
}

func (g *Gorm) GetSwitch(ctx context.Context, id string) (*deadman.Switch, error) {
	return g.takeSwitch(ctx, "id = ?", id)
}

func (g *Gorm) GetSwitchByOwner(ctx context.Context, ownerRef string) (*deadman.Switch, error) {
	return g.takeSwitch(ctx, "owner_ref = ?", ownerRef)
}

func (g *Gorm) GetSwitchByTokenDigest(ctx context.Context, digest string) (*deadman.Switch, error) {
	if digest == "" {
		return nil, apperrors.ErrSwitchNotFound
	}
	return g.takeSwitch(ctx, "token_digest = ?", digest)
}

func (g *Gorm) takeSwitch(ctx context.Context, query string, arg any) (*deadman.Switch, error) {
	var row switchRow
	err := g.db.WithContext(ctx).Where(query, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrSwitchNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toSwitch(), nil
}

func (g *Gorm) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, patch deadman.SwitchPatch) (*deadman.Switch, error) {
	updates := patchColumns(patch)
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()

	var row switchRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&switchRow{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(updates)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&switchRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperrors.ErrSwitchNotFound
			}
			return apperrors.ErrConflict
		}
		return tx.Where("id = ?", id).Take(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toSwitch(), nil
}

func patchColumns(p deadman.SwitchPatch) map[string]any {
	cols := map[string]any{}
	if p.ClearLastCheckIn {
		cols["last_check_in"] = nil
	}
	if p.LastCheckIn != nil {
		cols["last_check_in"] = p.LastCheckIn.UTC()
	}
	if p.IsActive != nil {
		cols["is_active"] = *p.IsActive
	}
	if p.IsTriggered != nil {
		cols["is_triggered"] = *p.IsTriggered
	}
	if p.ClearToken {
		cols["token_digest"] = nil
		cols["token_expires_at"] = nil
		cols["triggered_at"] = nil
	}
	if p.Token != nil {
		cols["token_digest"] = p.Token.Digest
		cols["token_expires_at"] = p.Token.ExpiresAt.UTC()
		cols["triggered_at"] = p.Token.TriggeredAt.UTC()
	}
	if p.Nominee != nil {
		cols["nominee_email"] = p.Nominee.Email
		cols["nominee_name"] = p.Nominee.Name
		cols["nominee_relation"] = p.Nominee.Relation
	}
	if p.PersonalMessage != nil {
		cols["personal_message"] = *p.PersonalMessage
	}
	if p.InactivityPeriodDays != nil {
		cols["inactivity_period_days"] = *p.InactivityPeriodDays
	}
	return cols
}

func (g *Gorm) InsertNotification(ctx context.Context, rec deadman.NotificationRecord) error {
	row := notificationRow{
		ID:        rec.ID,
		SwitchID:  rec.SwitchID,
		Kind:      string(rec.Kind),
		Status:    string(rec.Status),
		SentAt:    rec.SentAt.UTC(),
		Recipient: rec.Recipient,
		Error:     rec.Error,
	}
	return g.db.WithContext(ctx).Create(&row).Error
}

func (g *Gorm) ExistsSince(ctx context.Context, switchID string, kind deadman.NotificationKind, since time.Time) (bool, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&notificationRow{}).
		Where("switch_id = ? AND kind = ? AND status = ? AND sent_at >= ?",
			switchID, string(kind), string(deadman.StatusSent), since.UTC()).
		Count(&n).Error
	return n > 0, err
}

func (g *Gorm) ListNotifications(ctx context.Context, switchID string) ([]deadman.NotificationRecord, error) {
	var rows []notificationRow
	if err := g.db.WithContext(ctx).Where("switch_id = ?", switchID).Order("sent_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]deadman.NotificationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, deadman.NotificationRecord{
			ID:        r.ID,
			SwitchID:  r.SwitchID,
			Kind:      deadman.NotificationKind(r.Kind),
			Recipient: r.Recipient,
			SentAt:    r.SentAt.UTC(),
			Status:    deadman.NotificationStatus(r.Status),
			Error:     r.Error,
		})
	}
	return out, nil
}

func (g *Gorm) AppendCheckIn(ctx context.Context, ev deadman.CheckInEvent) error {
	row := checkInRow{
		ID:        ev.ID,
		SwitchID:  ev.SwitchID,
		At:        ev.At.UTC(),
		IP:        ev.Origin.IP,
		UserAgent: ev.Origin.UserAgent,
		Source:    ev.Origin.Source,
	}
	return g.db.WithContext(ctx).Create(&row).Error
}

func (g *Gorm) ListCheckIns(ctx context.Context, switchID string) ([]deadman.CheckInEvent, error) {
	var rows []checkInRow
	if err := g.db.WithContext(ctx).Where("switch_id = ?", switchID).Order("at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]deadman.CheckInEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, deadman.CheckInEvent{
			ID:       r.ID,
			SwitchID: r.SwitchID,
			At:       r.At.UTC(),
			Origin:   deadman.Origin{IP: r.IP, UserAgent: r.UserAgent, Source: r.Source},
		})
	}
	return out, nil
}

func (g *Gorm) UpsertOwner(ctx context.Context, owner deadman.Owner) error {
	row := ownerRow{Ref: owner.Ref, Email: owner.Email, UpdatedAt: owner.UpdatedAt.UTC()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
	}).Create(&row).Error
}

func (g *Gorm) ResolveEmail(ctx context.Context, ownerRef string) (string, error) {
	var row ownerRow
	err := g.db.WithContext(ctx).Where("ref = ?", ownerRef).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.ErrOwnerNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Email, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrConflict
	}
	return err
}

func toSwitchRow(sw *deadman.Switch) switchRow {
	row := switchRow{
		ID:                   sw.ID,
		OwnerRef:             sw.OwnerRef,
		NomineeEmail:         sw.Nominee.Email,
		NomineeName:          sw.Nominee.Name,
		NomineeRelation:      sw.Nominee.Relation,
		PersonalMessage:      sw.PersonalMessage,
		InactivityPeriodDays: sw.InactivityPeriodDays,
		LastCheckIn:          utcPtr(sw.LastCheckIn),
		IsActive:             sw.IsActive,
		IsTriggered:          sw.IsTriggered,
		TokenExpiresAt:       utcPtr(sw.TokenExpiresAt),
		TriggeredAt:          utcPtr(sw.TriggeredAt),
		Version:              sw.Version,
		CreatedAt:            sw.CreatedAt.UTC(),
		UpdatedAt:            sw.UpdatedAt.UTC(),
	}
	if sw.TokenDigest != "" {
		d := sw.TokenDigest
		row.TokenDigest = &d
	}
	return row
}

func (r *switchRow) toSwitch() *deadman.Switch {
	sw := &deadman.Switch{
		ID:       r.ID,
		OwnerRef: r.OwnerRef,
		Nominee: deadman.Nominee{
			Email:    r.NomineeEmail,
			Name:     r.NomineeName,
			Relation: r.NomineeRelation,
		},
		PersonalMessage:      r.PersonalMessage,
		InactivityPeriodDays: r.InactivityPeriodDays,
		LastCheckIn:          utcPtr(r.LastCheckIn),
		IsActive:             r.IsActive,
		IsTriggered:          r.IsTriggered,
		TokenExpiresAt:       utcPtr(r.TokenExpiresAt),
		TriggeredAt:          utcPtr(r.TriggeredAt),
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
	if r.TokenDigest != nil {
		sw.TokenDigest = *r.TokenDigest
	}
	return sw
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
