package turns

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// TurnToken is the single-use secret that advances a turn.
type TurnToken struct {
	value string
}

const turnTokenBytes = 32

// GenerateTurnToken produces a cryptographically random token.
func GenerateTurnToken() (TurnToken, error) {
	raw := make([]byte, turnTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return TurnToken{}, fmt.Errorf("%w: %v", ErrInvalidTurnToken, err)
	}
	return TurnToken{value: base64.RawURLEncoding.EncodeToString(raw)}, nil
}

// NewTurnToken validates and normalizes a caller-supplied token.
func NewTurnToken(raw string) (TurnToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TurnToken{}, fmt.Errorf("%w: empty value", ErrInvalidTurnToken)
	}
	return TurnToken{value: trimmed}, nil
}

// String returns the normalized token.
func (token TurnToken) String() string {
	return token.value
}

// TurnStatus defines the turn lifecycle.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnActive    TurnStatus = "active"
	TurnCompleted TurnStatus = "completed"
	TurnExpired   TurnStatus = "expired"
)

// ParseTurnStatus validates a stored status.
func ParseTurnStatus(raw string) (TurnStatus, error) {
	switch TurnStatus(raw) {
	case TurnPending, TurnActive, TurnCompleted, TurnExpired:
		return TurnStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTurnStatus, raw)
}

// String returns the stored form.
func (status TurnStatus) String() string {
	return string(status)
}

// TurnSpec describes the game attempt being timed.
type TurnSpec struct {
	GameType    string
	TimeLimitMs int64
	Seed        string
}

// Validate checks the fields the timer depends on.
func (spec TurnSpec) Validate() error {
	if strings.TrimSpace(spec.GameType) == "" {
		return fmt.Errorf("%w: game type is required", ErrInvalidTurnSpec)
	}
	if spec.TimeLimitMs <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidTurnSpec)
	}
	return nil
}

// GameTurn is one timed game attempt.
type GameTurn struct {
	TurnID      string
	UserID      string
	TurnToken   string
	GameType    string
	TimeLimitMs int64
	Seed        string
	Status      TurnStatus
	ExpiresAt   time.Time
	StartedAt   *time.Time
	CreatedAt   time.Time
}

// TurnEventType enumerates recorded lifecycle events.
type TurnEventType string

const (
	EventStart    TurnEventType = "start"
	EventInput    TurnEventType = "input"
	EventComplete TurnEventType = "complete"
	EventExpire   TurnEventType = "expire"
)

// ParseTurnEventType validates a stored event type.
func ParseTurnEventType(raw string) (TurnEventType, error) {
	switch TurnEventType(raw) {
	case EventStart, EventInput, EventComplete, EventExpire:
		return TurnEventType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEventType, raw)
}

// String returns the stored form.
func (eventType TurnEventType) String() string {
	return string(eventType)
}

// TurnEvent is one link in a turn's hash chain. ServerTimestampMs is unix
// milliseconds so the hashed value survives storage round-trips exactly.
type TurnEvent struct {
	EventID           string
	TurnID            string
	Type              TurnEventType
	EventIndex        int
	ServerTimestampMs int64
	EventHash         string
}

// StartResult carries the server-authoritative timing the client renders.
type StartResult struct {
	TurnID      string
	StartedAt   time.Time
	TimeLimitMs int64
}

// CompleteResult reports a finished turn.
type CompleteResult struct {
	TurnID      string
	ElapsedMs   int64
	CompletedAt time.Time
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertTurn(ctx context.Context, turn GameTurn) error
	GetTurnByTokenForUpdate(ctx context.Context, token string) (GameTurn, error)
	GetTurnForUpdate(ctx context.Context, turnID string) (GameTurn, error)
	UpdateTurnStatus(ctx context.Context, turnID string, from TurnStatus, to TurnStatus, startedAt *time.Time) error
	LastEvent(ctx context.Context, turnID string) (TurnEvent, bool, error)
	InsertEvent(ctx context.Context, event TurnEvent) error
	ListEvents(ctx context.Context, turnID string) ([]TurnEvent, error)
}
