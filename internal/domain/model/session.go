package model

import (
	"strconv"
	"time"
)

// Session is the mutable per-user record shared by middleware and handlers.
// It is only ever mutated inside the owning user's lane; the store persists it
// with compare-and-swap on Version.
type Session struct {
	UserID       int64             `json:"user_id"`
	State        map[string]string `json:"state"`
	LastActiveAt time.Time         `json:"last_active_at"`

	// Rate-limit counters (fixed window).
	WindowStart time.Time `json:"window_start"`
	WindowCount int       `json:"window_count"`

	// Version guards compare-and-swap writes. Zero means never persisted.
	Version int64 `json:"version"`
}

// NewSession creates the record for a user's first contact.
func NewSession(userID int64, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		State:        make(map[string]string),
		LastActiveAt: now,
	}
}

// Clone returns a deep copy. The dispatcher snapshots the loaded session and
// hands a working copy to guards and handlers, so a failed update can be
// rolled back by discarding the copy.
func (s *Session) Clone() *Session {
	cp := *s
	cp.State = make(map[string]string, len(s.State))
	for k, v := range s.State {
		cp.State[k] = v
	}
	return &cp
}

// Touch records activity.
func (s *Session) Touch(now time.Time) { s.LastActiveAt = now }

// GetInt reads an integer state value, zero when absent or malformed.
func (s *Session) GetInt(key string) int {
	n, _ := strconv.Atoi(s.State[key])
	return n
}

// SetInt stores an integer state value.
func (s *Session) SetInt(key string, v int) {
	s.State[key] = strconv.Itoa(v)
}

// GetBool reads a boolean state value; def is returned when the key is absent.
func (s *Session) GetBool(key string, def bool) bool {
	v, ok := s.State[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SetBool stores a boolean state value.
func (s *Session) SetBool(key string, v bool) {
	s.State[key] = strconv.FormatBool(v)
}
