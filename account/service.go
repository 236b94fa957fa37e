// Package account holds the per-user quota, referral reward and terms rules
// on top of the ledger.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"Genie/core"
	"Genie/lib/sl"
	"Genie/storage"
)

type Options struct {
	FreeLimit  int
	RefBonus   int
	Window     time.Duration
	Activation string
}

func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		FreeLimit:  conf.Quota.FreeLimit,
		RefBonus:   conf.Quota.RefBonus,
		Window:     conf.Window(),
		Activation: conf.Quota.Activation,
	}
}

type Service struct {
	ledger     storage.Ledger
	policy     Policy
	refBonus   int
	activation string
	log        *slog.Logger
	now        func() time.Time
}

func NewService(ledger storage.Ledger, opts Options, log *slog.Logger) *Service {
	return &Service{
		ledger:     ledger,
		policy:     Policy{FreeLimit: opts.FreeLimit, Window: opts.Window},
		refBonus:   opts.RefBonus,
		activation: opts.Activation,
		log:        log.With(sl.Module("account")),
		now:        time.Now,
	}
}

// SetClock replaces the wall clock, used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// clock is millisecond precision UTC, the finest resolution every backend keeps.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Touch is called for every inbound event. It creates the record of an unseen
// user and links the referrer carried by referralArg; for a known user the
// argument is ignored.
func (s *Service) Touch(ctx context.Context, userId int64, referralArg string) (*storage.UserRecord, error) {
	referrer, ok := ParseReferrer(referralArg)
	if !ok && referralArg != "" {
		s.log.With(sl.User(userId), sl.Short("arg", referralArg)).Debug("ignoring malformed referral argument")
	}

	rec, created, err := s.ledger.GetOrCreate(ctx, userId, referrer, s.clock())
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if created {
		s.log.With(
			sl.User(userId),
			slog.Int64("referred_by", rec.ReferredBy),
		).Info("new user")
	}
	return rec, nil
}

func (s *Service) load(ctx context.Context, userId int64) (*storage.UserRecord, error) {
	rec, err := s.ledger.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: user %d not found", core.ErrStorage, userId)
	}
	return rec, nil
}

// Remaining returns the allowance left for the user. An expired window is
// reset in the ledger before the value is computed.
func (s *Service) Remaining(ctx context.Context, userId int64) (int, *storage.UserRecord, error) {
	rec, err := s.load(ctx, userId)
	if err != nil {
		return 0, nil, fmt.Errorf("checking quota: %w", err)
	}

	now := s.clock()
	if s.policy.Expired(rec, now) {
		reset, err := s.ledger.ResetWindow(ctx, userId, s.policy.Cutoff(now), now)
		if err != nil {
			return 0, nil, fmt.Errorf("resetting quota window: %w", err)
		}
		if reset {
			s.log.With(sl.User(userId), slog.Int("used", rec.UsedCount)).Info("quota window reset")
		}
		if rec, err = s.load(ctx, userId); err != nil {
			return 0, nil, fmt.Errorf("checking quota: %w", err)
		}
	}
	return s.policy.Remaining(rec, now), rec, nil
}

// CanConsume reports whether the user has allowance left and when the
// current window ends.
func (s *Service) CanConsume(ctx context.Context, userId int64) (bool, time.Time, error) {
	_, rec, err := s.Remaining(ctx, userId)
	if err != nil {
		return false, time.Time{}, err
	}
	return s.policy.CanConsume(rec, s.clock()), s.policy.ResetsAt(rec), nil
}

// Consume charges one generation. Call it only after the metered action
// succeeded.
func (s *Service) Consume(ctx context.Context, userId int64) error {
	if err := s.ledger.Update(ctx, userId, storage.Mutation{IncUsed: 1}, s.clock()); err != nil {
		return fmt.Errorf("consuming quota: %w", err)
	}
	return nil
}

// RecordActivity marks the user active after a successful qualifying action.
// The referrer is credited once per invitee, so any number of later actions
// leaves the reward untouched.
func (s *Service) RecordActivity(ctx context.Context, userId int64, action Action) (storage.Activation, error) {
	if !Qualifies(s.activation, action) {
		return storage.Activation{}, nil
	}
	act, err := s.ledger.Activate(ctx, userId, s.refBonus, s.clock())
	if err != nil {
		return act, fmt.Errorf("recording activity: %w", err)
	}
	log := s.log.With(
		sl.User(userId),
		slog.String("action", action.String()),
		slog.Int64("referrer", act.Referrer),
		slog.Int("bonus", act.Bonus),
	)
	switch {
	case act.Activated:
		log.Info("user activated")
	case act.Bonus > 0:
		log.Info("pending referral bonus credited")
	}
	return act, nil
}

func (s *Service) SetMode(ctx context.Context, userId int64, mode string) error {
	if err := s.ledger.Update(ctx, userId, storage.Mutation{Mode: &mode}, s.clock()); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	return nil
}

func (s *Service) SetAwaitingImage(ctx context.Context, userId int64, awaiting bool) error {
	if err := s.ledger.Update(ctx, userId, storage.Mutation{AwaitingImage: &awaiting}, s.clock()); err != nil {
		return fmt.Errorf("setting image prompt state: %w", err)
	}
	return nil
}

type Profile struct {
	Record        *storage.UserRecord
	Remaining     int
	FreeLimit     int
	ResetsAt      time.Time
	Invited       int
	ActiveInvited int
}

func (s *Service) Profile(ctx context.Context, userId int64) (*Profile, error) {
	left, rec, err := s.Remaining(ctx, userId)
	if err != nil {
		return nil, err
	}
	invited, active, err := s.ledger.CountReferrals(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("loading referrals: %w", err)
	}
	return &Profile{
		Record:        rec,
		Remaining:     left,
		FreeLimit:     s.policy.FreeLimit,
		ResetsAt:      s.policy.ResetsAt(rec),
		Invited:       invited,
		ActiveInvited: active,
	}, nil
}
