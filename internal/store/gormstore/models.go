package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID        string         `gorm:"type:uuid;primaryKey"`
	UserID         string         `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	Type           string         `gorm:"not null"`
	AmountUnits    int64          `gorm:"not null"`
	UTCDay         string         `gorm:"column:utc_day;not null"`
	ReferenceID    string         `gorm:""`
	ReferenceType  string         `gorm:""`
	IdempotencyKey string         `gorm:"not null;uniqueIndex:uniq_ledger_idempotency_key"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// PendingClaim mirrors the pending_claims table.
type PendingClaim struct {
	ClaimID     string         `gorm:"type:uuid;primaryKey"`
	UserID      string         `gorm:"not null;index:idx_claims_user_claimed,priority:1"`
	Type        string         `gorm:"not null"`
	AmountUnits int64          `gorm:"not null"`
	UTCDay      string         `gorm:"column:utc_day;not null"`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	ClaimedAt   *time.Time     `gorm:"index:idx_claims_user_claimed,priority:2"`
}

func (PendingClaim) TableName() string { return "pending_claims" }

func (claim *PendingClaim) BeforeCreate(tx *gorm.DB) error {
	if claim.ClaimID == "" {
		claim.ClaimID = uuid.NewString()
	}
	return nil
}

// GameTurn mirrors the game_turns table.
type GameTurn struct {
	TurnID      string     `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"not null;index"`
	TurnToken   string     `gorm:"not null;uniqueIndex:uniq_turn_token"`
	GameType    string     `gorm:"not null"`
	TimeLimitMs int64      `gorm:"not null"`
	Seed        string     `gorm:""`
	Status      string     `gorm:"not null"`
	ExpiresAt   time.Time  `gorm:"not null"`
	StartedAt   *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"not null"`
}

func (GameTurn) TableName() string { return "game_turns" }

func (turn *GameTurn) BeforeCreate(tx *gorm.DB) error {
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	return nil
}

// TurnEvent mirrors the turn_events table. The unique (turn_id,
// event_index) index is the backstop against concurrent writers producing
// a duplicate index.
type TurnEvent struct {
	EventID           string `gorm:"type:uuid;primaryKey"`
	TurnID            string `gorm:"type:uuid;not null;uniqueIndex:uniq_turn_event_index,priority:1"`
	Type              string `gorm:"not null"`
	EventIndex        int    `gorm:"not null;uniqueIndex:uniq_turn_event_index,priority:2"`
	ServerTimestampMs int64  `gorm:"not null"`
	EventHash         string `gorm:"not null"`
}

func (TurnEvent) TableName() string { return "turn_events" }

func (event *TurnEvent) BeforeCreate(tx *gorm.DB) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return nil
}

// GroupSession mirrors the group_sessions table.
type GroupSession struct {
	SessionID  string    `gorm:"type:uuid;primaryKey"`
	JoinToken  string    `gorm:"not null;uniqueIndex:uniq_group_join_token"`
	GameTypeID string    `gorm:"not null"`
	CreatedBy  string    `gorm:"not null"`
	EndsAt     time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (GroupSession) TableName() string { return "group_sessions" }

func (session *GroupSession) BeforeCreate(tx *gorm.DB) error {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	return nil
}

// Models returns every model for schema migration.
func Models() []any {
	return []any{
		&LedgerEntry{},
		&PendingClaim{},
		&GameTurn{},
		&TurnEvent{},
		&GroupSession{},
	}
}
