package groupplay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionLifetime bounds how long a session accepts joins.
const SessionLifetime = 10 * time.Minute

// Service stages ephemeral multi-party sessions over a Store.
type Service struct {
	store Store
	nowFn func() time.Time
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, nowFn: now}, nil
}

// Create opens a session addressed by a fresh join token. The token
// carries enough entropy that guessing it within the session's ten-minute
// lifetime is not feasible.
func (service *Service) Create(ctx context.Context, userID string, gameTypeID string) (GroupSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return GroupSession{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	gameTypeID = strings.TrimSpace(gameTypeID)
	if gameTypeID == "" {
		return GroupSession{}, fmt.Errorf("%w: empty value", ErrInvalidGameType)
	}
	token, err := GenerateJoinToken()
	if err != nil {
		return GroupSession{}, err
	}
	now := service.nowFn().UTC()
	session := GroupSession{
		SessionID:  uuid.NewString(),
		JoinToken:  token.String(),
		GameTypeID: gameTypeID,
		CreatedBy:  userID,
		EndsAt:     now.Add(SessionLifetime),
		CreatedAt:  now,
	}
	if err := service.store.InsertSession(ctx, session); err != nil {
		return GroupSession{}, err
	}
	return session, nil
}

// Join resolves a join token to its session. Unknown tokens fail with
// ErrSessionNotFound; a session past EndsAt fails with ErrSessionExpired.
func (service *Service) Join(ctx context.Context, token JoinToken) (GroupSession, error) {
	session, err := service.store.GetSessionByToken(ctx, token.String())
	if err != nil {
		return GroupSession{}, err
	}
	if service.nowFn().After(session.EndsAt) {
		return GroupSession{}, ErrSessionExpired
	}
	return session, nil
}
