package storage

import (
	"context"
	"sync"
	"time"

	"PPDesk/module/chat/model"
)

type memEntry struct {
	msgs    []model.Message
	expires time.Time
}

// MemStore 进程内存储，重启即丢；TTL<=0 不过期。
type MemStore struct {
	mu  sync.RWMutex
	m   map[string]memEntry
	ttl time.Duration
	now func() time.Time
}

func NewMemStore(ttl time.Duration) *MemStore {
	return &MemStore{m: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (s *MemStore) Load(_ context.Context, ticketID string) ([]model.Message, error) {
	if err := checkTicket(ticketID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.m[ticketID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.mu.Lock()
		delete(s.m, ticketID)
		s.mu.Unlock()
		return nil, nil
	}
	return model.CloneMessages(e.msgs), nil
}

func (s *MemStore) Save(_ context.Context, ticketID string, msgs []model.Message) error {
	if err := checkTicket(ticketID); err != nil {
		return err
	}
	e := memEntry{msgs: model.CloneMessages(msgs)}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.m[ticketID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(_ context.Context, ticketID string) error {
	s.mu.Lock()
	delete(s.m, ticketID)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Close() error { return nil }
