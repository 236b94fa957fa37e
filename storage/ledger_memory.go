package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Genie/core"
)

type MemoryLedger struct {
	records map[int64]*UserRecord
	mutex   sync.RWMutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[int64]*UserRecord),
	}
}

func (m *MemoryLedger) GetOrCreate(_ context.Context, userId, referrer int64, now time.Time) (*UserRecord, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if rec, ok := m.records[userId]; ok {
		cc := *rec
		return &cc, false, nil
	}

	if referrer == userId {
		referrer = 0
	}
	if _, ok := m.records[referrer]; !ok {
		referrer = 0
	}
	rec := newRecord(userId, referrer, now)
	m.records[userId] = rec
	cc := *rec
	return &cc, true, nil
}

func (m *MemoryLedger) Get(_ context.Context, userId int64) (*UserRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if rec, ok := m.records[userId]; ok {
		cc := *rec
		return &cc, nil
	}
	return nil, nil
}

func (m *MemoryLedger) Update(_ context.Context, userId int64, mut Mutation, now time.Time) error {
	if mut.empty() {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rec, ok := m.records[userId]
	if !ok {
		return fmt.Errorf("%w: user %d not found", core.ErrStorage, userId)
	}
	mut.apply(rec)
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryLedger) ResetWindow(_ context.Context, userId int64, cutoff, now time.Time) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rec, ok := m.records[userId]
	if !ok || !rec.WeekStart.Before(cutoff) {
		return false, nil
	}
	rec.UsedCount = 0
	rec.WeekStart = now
	rec.UpdatedAt = now
	return true, nil
}

func (m *MemoryLedger) Activate(_ context.Context, userId int64, bonus int, now time.Time) (Activation, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rec, ok := m.records[userId]
	if !ok || rec.IsActive {
		return Activation{}, nil
	}
	rec.IsActive = true
	rec.UpdatedAt = now

	result := Activation{Activated: true, Referrer: rec.ReferredBy}
	if referrer, ok := m.records[rec.ReferredBy]; ok && rec.HasReferrer() && bonus > 0 {
		referrer.BonusCount += bonus
		referrer.UpdatedAt = now
		result.Bonus = bonus
	}
	rec.Rewarded = true
	return result, nil
}

func (m *MemoryLedger) CountReferrals(_ context.Context, referrer int64) (int, int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	invited, active := 0, 0
	for _, rec := range m.records {
		if referrer == 0 || rec.ReferredBy != referrer {
			continue
		}
		invited++
		if rec.IsActive {
			active++
		}
	}
	return invited, active, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}
