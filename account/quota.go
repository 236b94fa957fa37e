package account

import (
	"time"

	"Genie/storage"
)

// Policy is the free allowance rule. It holds no state.
type Policy struct {
	FreeLimit int
	Window    time.Duration
}

// Expired reports whether the quota window of rec is over at now.
func (p Policy) Expired(rec *storage.UserRecord, now time.Time) bool {
	return now.Sub(rec.WeekStart) > p.Window
}

// Cutoff is the oldest week_start still inside the window at now.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Remaining is the allowance left for rec at now, never negative. An expired
// window counts as fresh; persisting the reset is the caller's job.
func (p Policy) Remaining(rec *storage.UserRecord, now time.Time) int {
	used := rec.UsedCount
	if p.Expired(rec, now) {
		used = 0
	}
	left := p.FreeLimit + rec.BonusCount - used
	if left < 0 {
		return 0
	}
	return left
}

func (p Policy) CanConsume(rec *storage.UserRecord, now time.Time) bool {
	return p.Remaining(rec, now) > 0
}

// ResetsAt is when the current window of rec ends.
func (p Policy) ResetsAt(rec *storage.UserRecord) time.Time {
	return rec.WeekStart.Add(p.Window)
}
