package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-bot-dispatch/internal/domain"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore keeps sessions as JSON blobs keyed by user id. Compare-and-swap
// uses WATCH/MULTI on the key; keys are independent so lanes for different
// users never contend.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) key(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (s *SessionStore) Get(ctx context.Context, userID int64) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.key(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Upsert(ctx context.Context, sess *model.Session) error {
	key := s.key(sess.UserID)
	return s.client.cli.Watch(ctx, func(tx *redis.Tx) error {
		version := int64(1)
		data, err := tx.Get(ctx, key).Result()
		switch {
		case err == nil:
			var prev model.Session
			if uerr := json.Unmarshal([]byte(data), &prev); uerr == nil {
				version = prev.Version + 1
			}
		case errors.Is(err, redis.Nil):
		default:
			return err
		}

		cp := sess.Clone()
		cp.Version = version
		buf, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		if err == nil {
			sess.Version = version
		}
		return err
	}, key)
}

func (s *SessionStore) CompareAndSwap(ctx context.Context, userID int64, expectedVersion int64, sess *model.Session) (bool, error) {
	key := s.key(userID)
	swapped := false
	err := s.client.cli.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var prev model.Session
		if err := json.Unmarshal([]byte(data), &prev); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if prev.Version != expectedVersion {
			return nil // version mismatch, no write
		}

		cp := sess.Clone()
		cp.Version = expectedVersion + 1
		buf, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		if err == nil {
			swapped = true
			sess.Version = cp.Version
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer raced the transaction; treat as a failed swap.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}
