package domain

import (
	"errors"
	"time"
)

// SessionID is the opaque token binding a client to its transport.
type SessionID string

// SessionState tracks a session through its lifecycle.
type SessionState string

const (
	SessionNone         SessionState = "NONE"
	SessionInitializing SessionState = "INITIALIZING"
	SessionActive       SessionState = "ACTIVE"
	SessionClosed       SessionState = "CLOSED"
)

// Session is the router-side record of one client session.
type Session struct {
	ID        SessionID    `json:"id"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrBadSessionRequest = errors.New("bad session request")
	ErrSessionClosed     = errors.New("session closed")
)
