package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yogev77/tophuman-core/pkg/turns"
)

// TurnsStore implements turns.Store using GORM.
type TurnsStore struct {
	db *gorm.DB
}

// NewTurnsStore returns a store backed by gorm.DB.
func NewTurnsStore(db *gorm.DB) *TurnsStore {
	return &TurnsStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *TurnsStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore turns.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &TurnsStore{db: transaction})
	})
}

func (store *TurnsStore) InsertTurn(ctx context.Context, turn turns.GameTurn) error {
	model := GameTurn{
		TurnID:      turn.TurnID,
		UserID:      turn.UserID,
		TurnToken:   turn.TurnToken,
		GameType:    turn.GameType,
		TimeLimitMs: turn.TimeLimitMs,
		Seed:        turn.Seed,
		Status:      turn.Status.String(),
		ExpiresAt:   turn.ExpiresAt,
		StartedAt:   turn.StartedAt,
		CreatedAt:   turn.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeInsert, err)
	}
	return nil
}

func (store *TurnsStore) GetTurnByTokenForUpdate(ctx context.Context, token string) (turns.GameTurn, error) {
	return store.getTurnForUpdate(ctx, "turn_token = ?", token)
}

func (store *TurnsStore) GetTurnForUpdate(ctx context.Context, turnID string) (turns.GameTurn, error) {
	return store.getTurnForUpdate(ctx, "turn_id = ?", turnID)
}

func (store *TurnsStore) getTurnForUpdate(ctx context.Context, query string, argument string) (turns.GameTurn, error) {
	var model GameTurn
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, argument).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return turns.GameTurn{}, turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeGet, turns.ErrTurnNotFound)
		}
		return turns.GameTurn{}, turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeGet, err)
	}
	turn, err := mapGameTurn(model)
	if err != nil {
		return turns.GameTurn{}, turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeInvalid, err)
	}
	return turn, nil
}

func (store *TurnsStore) UpdateTurnStatus(ctx context.Context, turnID string, from turns.TurnStatus, to turns.TurnStatus, startedAt *time.Time) error {
	values := map[string]interface{}{"status": to.String()}
	if startedAt != nil {
		values["started_at"] = *startedAt
	}
	result := store.db.WithContext(ctx).
		Model(&GameTurn{}).
		Where("turn_id = ? AND status = ?", turnID, from.String()).
		Updates(values)
	if result.Error != nil {
		return turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return turns.WrapError(errorOperationStore, errorSubjectTurn, errorCodeUpdate, turns.ErrInvalidTurnState)
	}
	return nil
}

func (store *TurnsStore) LastEvent(ctx context.Context, turnID string) (turns.TurnEvent, bool, error) {
	var model TurnEvent
	err := store.db.WithContext(ctx).
		Where("turn_id = ?", turnID).
		Order("event_index DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return turns.TurnEvent{}, false, nil
	}
	if err != nil {
		return turns.TurnEvent{}, false, turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeGet, err)
	}
	event, err := mapTurnEvent(model)
	if err != nil {
		return turns.TurnEvent{}, false, turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeInvalid, err)
	}
	return event, true, nil
}

func (store *TurnsStore) InsertEvent(ctx context.Context, event turns.TurnEvent) error {
	model := TurnEvent{
		EventID:           event.EventID,
		TurnID:            event.TurnID,
		Type:              event.Type.String(),
		EventIndex:        event.EventIndex,
		ServerTimestampMs: event.ServerTimestampMs,
		EventHash:         event.EventHash,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeDuplicate, turns.ErrDuplicateEventIndex)
	}
	if err != nil {
		return turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeInsert, err)
	}
	return nil
}

func (store *TurnsStore) ListEvents(ctx context.Context, turnID string) ([]turns.TurnEvent, error) {
	var rows []TurnEvent
	err := store.db.WithContext(ctx).
		Where("turn_id = ?", turnID).
		Order("event_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeList, err)
	}
	events := make([]turns.TurnEvent, 0, len(rows))
	for _, row := range rows {
		event, err := mapTurnEvent(row)
		if err != nil {
			return nil, turns.WrapError(errorOperationStore, errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func mapGameTurn(row GameTurn) (turns.GameTurn, error) {
	status, err := turns.ParseTurnStatus(row.Status)
	if err != nil {
		return turns.GameTurn{}, err
	}
	return turns.GameTurn{
		TurnID:      row.TurnID,
		UserID:      row.UserID,
		TurnToken:   row.TurnToken,
		GameType:    row.GameType,
		TimeLimitMs: row.TimeLimitMs,
		Seed:        row.Seed,
		Status:      status,
		ExpiresAt:   row.ExpiresAt,
		StartedAt:   row.StartedAt,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func mapTurnEvent(row TurnEvent) (turns.TurnEvent, error) {
	eventType, err := turns.ParseTurnEventType(row.Type)
	if err != nil {
		return turns.TurnEvent{}, err
	}
	return turns.TurnEvent{
		EventID:           row.EventID,
		TurnID:            row.TurnID,
		Type:              eventType,
		EventIndex:        row.EventIndex,
		ServerTimestampMs: row.ServerTimestampMs,
		EventHash:         row.EventHash,
	}, nil
}
