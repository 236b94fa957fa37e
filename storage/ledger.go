package storage

import (
	"context"
	"time"
)

const (
	ModeNano = "nano"
	ModePro  = "pro"
)

// UserRecord is the durable per-user ledger entry.
type UserRecord struct {
	UserId        int64     `bson:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	WeekStart     time.Time `bson:"week_start" gorm:"column:week_start;not null"`
	UsedCount     int       `bson:"used_count" gorm:"column:used_count;not null"`
	BonusCount    int       `bson:"bonus_count" gorm:"column:bonus_count;not null"`
	AcceptedTerms bool      `bson:"accepted_terms" gorm:"column:accepted_terms;not null"`
	ReferredBy    int64     `bson:"referred_by" gorm:"column:referred_by;not null;index"`
	IsActive      bool      `bson:"is_active" gorm:"column:is_active;not null"`
	Rewarded      bool      `bson:"rewarded" gorm:"column:rewarded;not null;default:false"`
	Mode          string    `bson:"mode" gorm:"column:mode;not null;default:nano"`
	AwaitingImage bool      `bson:"awaiting_image" gorm:"column:awaiting_image;not null;default:false"`
	CreatedAt     time.Time `bson:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time `bson:"updated_at" gorm:"column:updated_at"`
}

func (UserRecord) TableName() string {
	return "users"
}

func (r *UserRecord) HasReferrer() bool {
	return r.ReferredBy != 0
}

func newRecord(userId, referrer int64, now time.Time) *UserRecord {
	return &UserRecord{
		UserId:     userId,
		WeekStart:  now,
		ReferredBy: referrer,
		Mode:       ModeNano,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Mutation is a partial change to a record. Increments are applied by the
// store itself, never as read-then-write from the caller.
type Mutation struct {
	IncUsed       int
	IncBonus      int
	AcceptTerms   bool
	Mode          *string
	AwaitingImage *bool
}

func (m Mutation) empty() bool {
	return m.IncUsed == 0 && m.IncBonus == 0 && !m.AcceptTerms && m.Mode == nil && m.AwaitingImage == nil
}

func (m Mutation) apply(rec *UserRecord) {
	rec.UsedCount += m.IncUsed
	rec.BonusCount += m.IncBonus
	if m.AcceptTerms {
		rec.AcceptedTerms = true
	}
	if m.Mode != nil {
		rec.Mode = *m.Mode
	}
	if m.AwaitingImage != nil {
		rec.AwaitingImage = *m.AwaitingImage
	}
}

// Activation is the outcome of an is_active transition attempt. Bonus is set
// by whichever call credits the referrer, which is the flipping call unless
// crediting failed and a later call completed it.
type Activation struct {
	Activated bool
	Referrer  int64
	Bonus     int
}

// Ledger persists user records. All methods are atomic per record.
type Ledger interface {
	// GetOrCreate returns the record for userId, creating it when absent.
	// referrer is linked only on creation, only when it differs from userId
	// and names an existing record.
	GetOrCreate(ctx context.Context, userId, referrer int64, now time.Time) (*UserRecord, bool, error)
	// Get returns nil when the record does not exist.
	Get(ctx context.Context, userId int64) (*UserRecord, error)
	Update(ctx context.Context, userId int64, m Mutation, now time.Time) error
	// ResetWindow zeroes used_count and moves week_start to now if the
	// stored week_start is before cutoff. Reports whether a reset happened.
	ResetWindow(ctx context.Context, userId int64, cutoff, now time.Time) (bool, error)
	// Activate flips is_active false->true and credits bonus to the linked
	// referrer exactly once per invitee. The invitee is marked rewarded when
	// the credit lands.
	Activate(ctx context.Context, userId int64, bonus int, now time.Time) (Activation, error)
	CountReferrals(ctx context.Context, referrer int64) (invited int, active int, err error)
	Close() error
}
