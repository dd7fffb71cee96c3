// Package memstore is the in-memory SessionStore reference implementation.
// It backs tests and single-process deployments; postgres and redis provide
// the durable variants.
package memstore

import (
	"context"
	"sync"

	"telegram-bot-dispatch/internal/domain"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*model.Session
}

func New() *Store {
	return &Store{sessions: make(map[int64]*model.Session)}
}

func (s *Store) Get(ctx context.Context, userID int64) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) Upsert(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sess.Clone()
	if prev, ok := s.sessions[sess.UserID]; ok {
		cp.Version = prev.Version + 1
	} else {
		cp.Version = 1
	}
	s.sessions[sess.UserID] = cp
	sess.Version = cp.Version
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, userID int64, expectedVersion int64, sess *model.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sessions[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if prev.Version != expectedVersion {
		return false, nil
	}
	cp := sess.Clone()
	cp.Version = expectedVersion + 1
	s.sessions[userID] = cp
	sess.Version = cp.Version
	return true, nil
}

// Len reports the number of stored sessions; used by tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
