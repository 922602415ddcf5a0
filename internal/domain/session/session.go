package session

import (
	"fmt"
	"strings"
	"time"
)

// MaxIDLength bounds caller-supplied session identifiers.
const MaxIDLength = 128

// Session is a conversation session (immutable value object). Sessions are
// identified by caller-supplied ids, generated ones are UUIDs.
type Session struct {
	id         string
	createdAt  int64
	lastActive int64
}

// New validates and creates a Session.
func New(id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, fmt.Errorf("session id is required")
	}
	if len(id) > MaxIDLength {
		return Session{}, fmt.Errorf("session id too long (max %d)", MaxIDLength)
	}
	now := time.Now().UnixMilli()
	return Session{id: id, createdAt: now, lastActive: now}, nil
}

// Reconstruct creates a Session without validation (storage hydration).
func Reconstruct(id string, createdAt, lastActive int64) Session {
	return Session{id: id, createdAt: createdAt, lastActive: lastActive}
}

// ID returns the session identifier.
func (s Session) ID() string { return s.id }

// CreatedAt returns the creation timestamp (unix millis).
func (s Session) CreatedAt() int64 { return s.createdAt }

// LastActive returns the last activity timestamp (unix millis).
func (s Session) LastActive() int64 { return s.lastActive }
