package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-dispatch/internal/domain"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS sessions (
  user_id        BIGINT PRIMARY KEY,
  state          JSONB NOT NULL DEFAULT '{}',
  last_active_at TIMESTAMPTZ NOT NULL,
  window_start   TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
  window_count   INT NOT NULL DEFAULT 0,
  version        BIGINT NOT NULL DEFAULT 1
);`
	_, err := s.pool.Exec(ctx, q)
	return err
}

func (s *SessionStore) Get(ctx context.Context, userID int64) (*model.Session, error) {
	const q = `
SELECT user_id, state, last_active_at, window_start, window_count, version
  FROM sessions WHERE user_id=$1;`
	var (
		sess  model.Session
		state []byte
	)
	row := s.pool.QueryRow(ctx, q, userID)
	if err := row.Scan(&sess.UserID, &state, &sess.LastActiveAt, &sess.WindowStart, &sess.WindowCount, &sess.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(state, &sess.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if sess.State == nil {
		sess.State = make(map[string]string)
	}
	return &sess, nil
}

func (s *SessionStore) Upsert(ctx context.Context, sess *model.Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	const ins = `
INSERT INTO sessions (user_id, state, last_active_at, window_start, window_count, version)
VALUES ($1,$2,$3,$4,$5,1);`
	if _, err := s.pool.Exec(ctx, ins, sess.UserID, state, sess.LastActiveAt, sess.WindowStart, sess.WindowCount); err == nil {
		sess.Version = 1
		return nil
	} else if !isUniqueViolation(err) {
		return err
	}

	const upd = `
UPDATE sessions
   SET state=$2, last_active_at=$3, window_start=$4, window_count=$5, version=version+1
 WHERE user_id=$1
RETURNING version;`
	return s.pool.QueryRow(ctx, upd, sess.UserID, state, sess.LastActiveAt, sess.WindowStart, sess.WindowCount).Scan(&sess.Version)
}

func (s *SessionStore) CompareAndSwap(ctx context.Context, userID int64, expectedVersion int64, sess *model.Session) (bool, error) {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return false, fmt.Errorf("encode state: %w", err)
	}

	const q = `
UPDATE sessions
   SET state=$3, last_active_at=$4, window_start=$5, window_count=$6, version=version+1
 WHERE user_id=$1 AND version=$2;`
	tag, err := s.pool.Exec(ctx, q, userID, expectedVersion, state, sess.LastActiveAt, sess.WindowStart, sess.WindowCount)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id=$1);`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, domain.ErrNotFound
		}
		return false, nil
	}
	sess.Version = expectedVersion + 1
	return true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
