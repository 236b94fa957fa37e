package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Genie/core"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLLedger keeps user records in a SQLite table through GORM.
type SQLLedger struct {
	db  *gorm.DB
	log *slog.Logger
}

// OpenSQLite opens the database file at dsn. The pool is limited to one
// connection, SQLite allows a single writer anyway.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLLedger(db *gorm.DB, log *slog.Logger) *SQLLedger {
	return &SQLLedger{db: db, log: log}
}

func (s *SQLLedger) GetOrCreate(ctx context.Context, userId, referrer int64, now time.Time) (*UserRecord, bool, error) {
	var rec UserRecord
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&rec, "user_id = ?", userId).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if referrer == userId {
			referrer = 0
		}
		if referrer != 0 {
			var n int64
			if err := tx.Model(&UserRecord{}).Where("user_id = ?", referrer).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				referrer = 0
			}
		}

		fresh := newRecord(userId, referrer, now)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return tx.First(&rec, "user_id = ?", userId).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: get or create user %d: %w", core.ErrStorage, userId, err)
	}
	return &rec, created, nil
}

func (s *SQLLedger) Get(ctx context.Context, userId int64) (*UserRecord, error) {
	var rec UserRecord
	err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: finding user %d: %w", core.ErrStorage, userId, err)
	}
	return &rec, nil
}

func (s *SQLLedger) Update(ctx context.Context, userId int64, mut Mutation, now time.Time) error {
	if mut.empty() {
		return nil
	}
	values := map[string]interface{}{"updated_at": now}
	if mut.IncUsed != 0 {
		values["used_count"] = gorm.Expr("used_count + ?", mut.IncUsed)
	}
	if mut.IncBonus != 0 {
		values["bonus_count"] = gorm.Expr("bonus_count + ?", mut.IncBonus)
	}
	if mut.AcceptTerms {
		values["accepted_terms"] = true
	}
	if mut.Mode != nil {
		values["mode"] = *mut.Mode
	}
	if mut.AwaitingImage != nil {
		values["awaiting_image"] = *mut.AwaitingImage
	}

	res := s.db.WithContext(ctx).Model(&UserRecord{}).Where("user_id = ?", userId).UpdateColumns(values)
	if res.Error != nil {
		return fmt.Errorf("%w: updating user %d: %w", core.ErrStorage, userId, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d not found", core.ErrStorage, userId)
	}
	return nil
}

func (s *SQLLedger) ResetWindow(ctx context.Context, userId int64, cutoff, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&UserRecord{}).
		Where("user_id = ? AND week_start < ?", userId, cutoff).
		UpdateColumns(map[string]interface{}{
			"used_count": 0,
			"week_start": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: resetting window of user %d: %w", core.ErrStorage, userId, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLLedger) Activate(ctx context.Context, userId int64, bonus int, now time.Time) (Activation, error) {
	var result Activation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&UserRecord{}).
			Where("user_id = ? AND is_active = ?", userId, false).
			UpdateColumns(map[string]interface{}{"is_active": true, "rewarded": true, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		result.Activated = true

		var rec UserRecord
		if err := tx.First(&rec, "user_id = ?", userId).Error; err != nil {
			return err
		}
		result.Referrer = rec.ReferredBy
		if !rec.HasReferrer() || bonus <= 0 {
			return nil
		}
		res = tx.Model(&UserRecord{}).
			Where("user_id = ?", rec.ReferredBy).
			UpdateColumns(map[string]interface{}{
				"bonus_count": gorm.Expr("bonus_count + ?", bonus),
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			result.Bonus = bonus
		}
		return nil
	})
	if err != nil {
		return Activation{}, fmt.Errorf("%w: activating user %d: %w", core.ErrStorage, userId, err)
	}
	return result, nil
}

func (s *SQLLedger) CountReferrals(ctx context.Context, referrer int64) (int, int, error) {
	if referrer == 0 {
		return 0, 0, nil
	}
	var invited, active int64
	db := s.db.WithContext(ctx).Model(&UserRecord{})
	if err := db.Where("referred_by = ?", referrer).Count(&invited).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: counting referrals: %w", core.ErrStorage, err)
	}
	db = s.db.WithContext(ctx).Model(&UserRecord{})
	if err := db.Where("referred_by = ? AND is_active = ?", referrer, true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: counting active referrals: %w", core.ErrStorage, err)
	}
	return int(invited), int(active), nil
}

func (s *SQLLedger) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
