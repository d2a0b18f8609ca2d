package store

import (
	"context"
	"sync"
)

type memoryStore struct {
	mutex     sync.RWMutex
	sessionID string
}

// NewMemory builds an in-memory session store. Contents vanish on restart.
func NewMemory() Store {
	return &memoryStore{}
}

func (s *memoryStore) Save(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	s.sessionID = sessionID
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Load(_ context.Context) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.sessionID, nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	s.sessionID = ""
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
