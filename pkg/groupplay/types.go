package groupplay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// JoinToken is the unguessable capability granting entry into a session.
type JoinToken struct {
	value string
}

const joinTokenBytes = 32

// GenerateJoinToken produces a cryptographically random token.
func GenerateJoinToken() (JoinToken, error) {
	raw := make([]byte, joinTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return JoinToken{}, fmt.Errorf("%w: %v", ErrInvalidJoinToken, err)
	}
	return JoinToken{value: base64.RawURLEncoding.EncodeToString(raw)}, nil
}

// NewJoinToken validates and normalizes a caller-supplied token.
func NewJoinToken(raw string) (JoinToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return JoinToken{}, fmt.Errorf("%w: empty value", ErrInvalidJoinToken)
	}
	return JoinToken{value: trimmed}, nil
}

// String returns the normalized token.
func (token JoinToken) String() string {
	return token.value
}

// GroupSession is a short-lived staging area for multi-party play.
type GroupSession struct {
	SessionID  string
	JoinToken  string
	GameTypeID string
	CreatedBy  string
	EndsAt     time.Time
	CreatedAt  time.Time
}

// Store is the persistence contract used by Service.
type Store interface {
	InsertSession(ctx context.Context, session GroupSession) error
	GetSessionByToken(ctx context.Context, joinToken string) (GroupSession, error)
}
