// Package session persists conversations as append-only turn logs.
package session

import (
	"errors"
	"time"

	"github.com/orbitpay/orbit/internal/rag"
)

// ErrNotFound indicates the session does not exist.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one conversation.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one message in a session. Turns are append-only; editing a
// past turn is not supported.
type Turn struct {
	ID        int64
	SessionID string
	Role      Role
	Content   string
	Citations []rag.Citation
	CreatedAt time.Time
}

// History returns the most recent maxExchanges user/assistant pairs
// from turns, oldest first. maxExchanges <= 0 returns nil.
func History(turns []Turn, maxExchanges int) []Turn {
	if maxExchanges <= 0 || len(turns) == 0 {
		return nil
	}
	keep := maxExchanges * 2
	if keep >= len(turns) {
		return turns
	}
	return turns[len(turns)-keep:]
}
