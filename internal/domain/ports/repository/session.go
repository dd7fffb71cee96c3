package repository

import (
	"context"

	"telegram-bot-dispatch/internal/domain/model"
)

// SessionStore persists per-user sessions. Implementations must serve
// concurrent requests for different keys without blocking each other; they
// need no multi-key transactions, only an atomic compare-and-swap per key.
type SessionStore interface {
	// Get returns the session for userID, or domain.ErrNotFound.
	Get(ctx context.Context, userID int64) (*model.Session, error)

	// Upsert writes the session unconditionally and bumps its Version.
	Upsert(ctx context.Context, sess *model.Session) error

	// CompareAndSwap writes sess only if the stored version still equals
	// expectedVersion. Returns false (and no error) on a version mismatch.
	// On success the stored and in-memory Version are expectedVersion+1.
	CompareAndSwap(ctx context.Context, userID int64, expectedVersion int64, sess *model.Session) (bool, error)
}
