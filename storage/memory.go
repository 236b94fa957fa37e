package storage

import (
	"sync"
	"time"
)

type MemoryStorage struct {
	contexts map[int64]*DialogContext
	mutex    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		contexts: make(map[int64]*DialogContext),
	}
}

func (m *MemoryStorage) GetUserContext(userId int64) (*DialogContext, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	dc, ok := m.contexts[userId]
	if !ok {
		return nil, nil
	}
	cc := *dc
	cc.Messages = append([]Message(nil), dc.Messages...)
	return &cc, nil
}

func (m *MemoryStorage) UpdateUserContext(userId int64, message Message) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dc, ok := m.contexts[userId]
	if !ok {
		dc = &DialogContext{UserId: userId}
		m.contexts[userId] = dc
	}
	appendMessage(dc, message)
	return nil
}

func (m *MemoryStorage) SetTopic(userId int64, topic string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if dc, ok := m.contexts[userId]; ok {
		dc.Topic = topic
		dc.UpdatedAt = time.Now()
	} else {
		m.contexts[userId] = &DialogContext{
			UserId:    userId,
			Topic:     topic,
			Messages:  []Message{},
			UpdatedAt: time.Now(),
		}
	}
	return nil
}

func (m *MemoryStorage) ClearUserContext(userId int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.contexts, userId)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
