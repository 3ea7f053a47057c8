package turns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service governs the turn state machine and its event trail over a Store.
type Service struct {
	store           Store
	nowFn           func() time.Time
	completionGrace time.Duration
	logger          OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, completionGrace: defaultCompletionGrace}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Issue creates a pending turn with a fresh single-use token. This is the
// issuance collaborator's write path.
func (service *Service) Issue(ctx context.Context, userID string, spec TurnSpec, ttl time.Duration) (GameTurn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return GameTurn{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if err := spec.Validate(); err != nil {
		return GameTurn{}, err
	}
	if ttl <= 0 {
		return GameTurn{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidTurnSpec)
	}
	token, err := GenerateTurnToken()
	if err != nil {
		return GameTurn{}, err
	}
	now := service.nowFn().UTC()
	turn := GameTurn{
		TurnID:      uuid.NewString(),
		UserID:      userID,
		TurnToken:   token.String(),
		GameType:    spec.GameType,
		TimeLimitMs: spec.TimeLimitMs,
		Seed:        spec.Seed,
		Status:      TurnPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertTurn(ctx, turn)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationIssue,
		TurnID:    turn.TurnID,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return GameTurn{}, operationError
	}
	return turn, nil
}

// Start consumes a pending turn's token: it flips the turn to active,
// records the server start time, and appends the first chained event. The
// returned start time and limit let the caller render a countdown the
// client clock cannot forge. A turn found past its deadline is expired on
// read before the state check, so an expired turn can never start.
func (service *Service) Start(ctx context.Context, token TurnToken, userID string) (StartResult, error) {
	var result StartResult
	var turnID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		turn, err := transactionStore.GetTurnByTokenForUpdate(ctx, token.String())
		if err != nil {
			return err
		}
		turnID = turn.TurnID
		if turn.UserID != userID {
			return ErrTurnNotFound
		}
		now := service.nowFn()
		if expired, err := service.expireOnRead(ctx, transactionStore, turn, now); err != nil {
			return err
		} else if expired {
			return ErrTurnExpired
		}
		if turn.Status != TurnPending {
			return ErrInvalidTurnState
		}
		startedAt := now.UTC()
		if err := transactionStore.UpdateTurnStatus(ctx, turn.TurnID, TurnPending, TurnActive, &startedAt); err != nil {
			return err
		}
		if _, err := service.appendEvent(ctx, transactionStore, turn.TurnID, EventStart); err != nil {
			return err
		}
		result = StartResult{
			TurnID:      turn.TurnID,
			StartedAt:   startedAt,
			TimeLimitMs: turn.TimeLimitMs,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationStart,
		TurnID:    turnID,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return StartResult{}, operationError
	}
	return result, nil
}

// Complete finishes an active turn. Elapsed time is measured against the
// server-recorded start, never a client-reported duration; a completion
// arriving past the limit (plus grace) expires the turn instead.
func (service *Service) Complete(ctx context.Context, token TurnToken, userID string) (CompleteResult, error) {
	var result CompleteResult
	var turnID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		turn, err := transactionStore.GetTurnByTokenForUpdate(ctx, token.String())
		if err != nil {
			return err
		}
		turnID = turn.TurnID
		if turn.UserID != userID {
			return ErrTurnNotFound
		}
		now := service.nowFn()
		if expired, err := service.expireOnRead(ctx, transactionStore, turn, now); err != nil {
			return err
		} else if expired {
			return ErrTurnExpired
		}
		if turn.Status != TurnActive || turn.StartedAt == nil {
			return ErrInvalidTurnState
		}
		elapsed := now.Sub(*turn.StartedAt)
		limit := time.Duration(turn.TimeLimitMs)*time.Millisecond + service.completionGrace
		if elapsed > limit {
			if err := service.expire(ctx, transactionStore, turn); err != nil {
				return err
			}
			return ErrTurnExpired
		}
		if err := transactionStore.UpdateTurnStatus(ctx, turn.TurnID, TurnActive, TurnCompleted, nil); err != nil {
			return err
		}
		if _, err := service.appendEvent(ctx, transactionStore, turn.TurnID, EventComplete); err != nil {
			return err
		}
		result = CompleteResult{
			TurnID:      turn.TurnID,
			ElapsedMs:   elapsed.Milliseconds(),
			CompletedAt: now.UTC(),
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationComplete,
		TurnID:    turnID,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return CompleteResult{}, operationError
	}
	return result, nil
}

// RecordEvent appends an input event to an active turn's chain. Index and
// hash are computed under the turn row lock in the same transaction, so
// concurrent writers cannot duplicate or skip an index.
func (service *Service) RecordEvent(ctx context.Context, turnID string, eventType TurnEventType) (TurnEvent, error) {
	if eventType != EventInput {
		return TurnEvent{}, fmt.Errorf("%w: only input events may be recorded directly", ErrInvalidEventType)
	}
	var event TurnEvent
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		turn, err := transactionStore.GetTurnForUpdate(ctx, turnID)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if expired, err := service.expireOnRead(ctx, transactionStore, turn, now); err != nil {
			return err
		} else if expired {
			return ErrTurnExpired
		}
		if turn.Status != TurnActive {
			return ErrInvalidTurnState
		}
		event, err = service.appendEvent(ctx, transactionStore, turn.TurnID, eventType)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRecordEvent,
		TurnID:    turnID,
		EventType: eventType.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return TurnEvent{}, operationError
	}
	return event, nil
}

// expireOnRead flips a pending or active turn past its deadline to
// expired. Expiry is applied at read time rather than by a background
// sweep, so observed state is always consistent with the read clock.
func (service *Service) expireOnRead(ctx context.Context, transactionStore Store, turn GameTurn, now time.Time) (bool, error) {
	if turn.Status != TurnPending && turn.Status != TurnActive {
		return false, nil
	}
	if !now.After(turn.ExpiresAt) {
		return false, nil
	}
	if err := service.expire(ctx, transactionStore, turn); err != nil {
		return false, err
	}
	return true, nil
}

func (service *Service) expire(ctx context.Context, transactionStore Store, turn GameTurn) error {
	if err := transactionStore.UpdateTurnStatus(ctx, turn.TurnID, turn.Status, TurnExpired, nil); err != nil {
		return err
	}
	_, err := service.appendEvent(ctx, transactionStore, turn.TurnID, EventExpire)
	return err
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		switch {
		case entry.Error == nil:
			entry.Status = operationStatusOK
		case errorsIsExpired(entry.Error):
			entry.Status = operationStatusExpired
		default:
			entry.Status = operationStatusError
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func errorsIsExpired(err error) bool {
	return errors.Is(err, ErrTurnExpired)
}
