package application

import (
	"context"

	"telegram-bot-dispatch/internal/domain/ports/adapter"
)

var _ adapter.AuthPolicy = (*AccessPolicy)(nil)

// AccessPolicy is the config-driven allow/deny policy. Blocked IDs are always
// denied; when an allowlist is present only listed IDs pass, otherwise
// everyone not blocked is allowed.
type AccessPolicy struct {
	blocked map[int64]struct{}
	allowed map[int64]struct{} // nil means open access
}

func NewAccessPolicy(blockedIDs, allowedIDs []int64) *AccessPolicy {
	p := &AccessPolicy{blocked: make(map[int64]struct{}, len(blockedIDs))}
	for _, id := range blockedIDs {
		p.blocked[id] = struct{}{}
	}
	if len(allowedIDs) > 0 {
		p.allowed = make(map[int64]struct{}, len(allowedIDs))
		for _, id := range allowedIDs {
			p.allowed[id] = struct{}{}
		}
	}
	return p
}

func (p *AccessPolicy) Allowed(_ context.Context, userID int64) (bool, error) {
	if _, blocked := p.blocked[userID]; blocked {
		return false, nil
	}
	if p.allowed == nil {
		return true, nil
	}
	_, ok := p.allowed[userID]
	return ok, nil
}
