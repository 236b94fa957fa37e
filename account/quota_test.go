package account

import (
	"testing"
	"time"

	"Genie/storage"

	"github.com/stretchr/testify/assert"
)

const week = 7 * 24 * time.Hour

func TestPolicy_Remaining(t *testing.T) {
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	policy := Policy{FreeLimit: 5, Window: week}

	tests := []struct {
		name string
		rec  storage.UserRecord
		want int
	}{
		{"fresh", storage.UserRecord{WeekStart: now}, 5},
		{"partly used", storage.UserRecord{WeekStart: now, UsedCount: 2}, 3},
		{"bonus adds", storage.UserRecord{WeekStart: now, UsedCount: 5, BonusCount: 3}, 3},
		{"exhausted", storage.UserRecord{WeekStart: now, UsedCount: 5}, 0},
		{"clamped", storage.UserRecord{WeekStart: now, UsedCount: 40, BonusCount: 1}, 0},
		{"window over", storage.UserRecord{WeekStart: now.Add(-8 * 24 * time.Hour), UsedCount: 5}, 5},
		{"exactly one window", storage.UserRecord{WeekStart: now.Add(-week), UsedCount: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			assert.Equal(t, tt.want, policy.Remaining(&rec, now))
			assert.Equal(t, tt.want > 0, policy.CanConsume(&rec, now))
		})
	}
}

func TestPolicy_ResetsAt(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	policy := Policy{FreeLimit: 5, Window: week}
	rec := storage.UserRecord{WeekStart: start}

	assert.Equal(t, start.Add(week), policy.ResetsAt(&rec))
	assert.False(t, policy.Expired(&rec, start.Add(week)))
	assert.True(t, policy.Expired(&rec, start.Add(week+time.Second)))
	assert.Equal(t, start, policy.Cutoff(start.Add(week)))
}
