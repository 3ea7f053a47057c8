package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AmountUnits is a signed integer amount of platform credits.
type AmountUnits int64

// Int64 returns the raw amount.
func (amount AmountUnits) Int64() int64 {
	return int64(amount)
}

// PositiveAmountUnits is an amount validated to be strictly positive.
type PositiveAmountUnits struct {
	value int64
}

// NewPositiveAmountUnits validates an amount and ensures it is strictly positive.
func NewPositiveAmountUnits(raw int64) (PositiveAmountUnits, error) {
	if raw <= 0 {
		return PositiveAmountUnits{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountUnits)
	}
	return PositiveAmountUnits{value: raw}, nil
}

// ToAmountUnits converts to the signed amount type.
func (amount PositiveAmountUnits) ToAmountUnits() AmountUnits {
	return AmountUnits(amount.value)
}

// Int64 returns the raw amount.
func (amount PositiveAmountUnits) Int64() int64 {
	return amount.value
}

// UserID identifies a ledger owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IdempotencyKey scopes duplicate detection for ledger appends.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// UTCDay is a calendar day in UTC, formatted YYYY-MM-DD.
type UTCDay struct {
	value string
}

const utcDayLayout = "2006-01-02"

// NewUTCDay derives the UTC calendar day from an instant.
func NewUTCDay(at time.Time) UTCDay {
	return UTCDay{value: at.UTC().Format(utcDayLayout)}
}

// ParseUTCDay validates a stored day string.
func ParseUTCDay(raw string) (UTCDay, error) {
	if _, err := time.Parse(utcDayLayout, raw); err != nil {
		return UTCDay{}, fmt.Errorf("%w: %q", ErrInvalidUTCDay, raw)
	}
	return UTCDay{value: raw}, nil
}

// String returns the YYYY-MM-DD form.
func (day UTCDay) String() string {
	return day.value
}

// EventType enumerates ledger entry kinds.
type EventType string

const (
	EventDailyGrant EventType = "daily_grant"
	EventGameReward EventType = "game_reward"
	EventClaim      EventType = "claim"
	EventAdjustment EventType = "adjustment"
)

// ParseEventType validates a stored event type.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(raw) {
	case EventDailyGrant, EventGameReward, EventClaim, EventAdjustment:
		return EventType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEventType, raw)
}

// String returns the stored form.
func (eventType EventType) String() string {
	return string(eventType)
}

// ClaimType enumerates pending claim kinds.
type ClaimType string

const (
	ClaimWinnings ClaimType = "winnings"
	ClaimDaily    ClaimType = "daily"
)

// ParseClaimType validates a stored claim type.
func ParseClaimType(raw string) (ClaimType, error) {
	switch ClaimType(raw) {
	case ClaimWinnings, ClaimDaily:
		return ClaimType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidClaimType, raw)
}

// String returns the stored form.
func (claimType ClaimType) String() string {
	return string(claimType)
}

// A single immutable line in the ledger.
type LedgerEntry struct {
	EntryID        string
	UserID         string
	Type           EventType
	AmountUnits    AmountUnits
	UTCDay         string
	ReferenceID    string
	ReferenceType  string
	IdempotencyKey string
	MetadataJSON   string
	CreatedAt      time.Time
}

// PendingClaim is an unclaimed credit awaiting explicit user action.
type PendingClaim struct {
	ClaimID      string
	UserID       string
	Type         ClaimType
	AmountUnits  AmountUnits
	UTCDay       string
	MetadataJSON string
	CreatedAt    time.Time
	ClaimedAt    *time.Time
}

// GrantResult reports the outcome of a daily grant attempt. Granted is
// false when a grant already exists for the user's current UTC day.
type GrantResult struct {
	Granted bool
	Entry   LedgerEntry
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertEntry(ctx context.Context, entry LedgerEntry) error
	SumAmount(ctx context.Context, userID string) (int64, error)
	ListEntries(ctx context.Context, userID string, limit int, offset int) ([]LedgerEntry, error)
	CountEntries(ctx context.Context, userID string) (int64, error)
	InsertClaim(ctx context.Context, claim PendingClaim) error
	GetClaimForUpdate(ctx context.Context, claimID string) (PendingClaim, error)
	ListUnclaimedClaims(ctx context.Context, userID string) ([]PendingClaim, error)
	MarkClaimClaimed(ctx context.Context, claimID string, claimedAt time.Time) error
}
