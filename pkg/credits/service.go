package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the ledger domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance returns the sum of all ledger entry amounts for the user. The
// balance is always recomputed from the log, never cached.
func (service *Service) Balance(ctx context.Context, userID UserID) (AmountUnits, error) {
	sum, err := service.store.SumAmount(ctx, userID.String())
	if err != nil {
		return 0, err
	}
	return AmountUnits(sum), nil
}

// History lists ledger entries newest first plus the unpaginated total
// count. Limit is clamped to [1,100] with a default of 50; offset is
// clamped to be non-negative.
func (service *Service) History(ctx context.Context, userID UserID, limit int, offset int) ([]LedgerEntry, int64, error) {
	limit = clampHistoryLimit(limit)
	if offset < 0 {
		offset = 0
	}
	entries, err := service.store.ListEntries(ctx, userID.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := service.store.CountEntries(ctx, userID.String())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GrantDaily credits the fixed daily reward at most once per user per UTC
// day. A grant that already exists for the current day is a no-op, not an
// error: the result carries Granted=false. The at-most-once guarantee is
// the store's unique constraint on the idempotency key, so concurrent
// duplicate requests cannot both succeed.
func (service *Service) GrantDaily(ctx context.Context, userID UserID) (GrantResult, error) {
	now := service.nowFn()
	day := NewUTCDay(now)
	entry := LedgerEntry{
		EntryID:        uuid.NewString(),
		UserID:         userID.String(),
		Type:           EventDailyGrant,
		AmountUnits:    DailyGrantAmountUnits,
		UTCDay:         day.String(),
		IdempotencyKey: dailyGrantKey(userID, day),
		MetadataJSON:   "{}",
		CreatedAt:      now.UTC(),
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertEntry(ctx, entry)
	})
	if errors.Is(operationError, ErrDuplicateEntry) {
		service.logOperation(ctx, OperationLog{
			Operation: operationGrantDaily,
			UserID:    userID,
			UTCDay:    day.String(),
			Status:    operationStatusNoOp,
		})
		return GrantResult{Granted: false}, nil
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGrantDaily,
		UserID:    userID,
		Amount:    entry.AmountUnits,
		UTCDay:    day.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return GrantResult{}, operationError
	}
	return GrantResult{Granted: true, Entry: entry}, nil
}

// Append writes a ledger entry on behalf of the settlement collaborator
// (game rewards, manual adjustments). The idempotency key makes retries
// safe: a duplicate append fails with ErrDuplicateEntry.
func (service *Service) Append(ctx context.Context, userID UserID, eventType EventType, amount AmountUnits, referenceID string, referenceType string, idempotencyKey IdempotencyKey, metadata MetadataJSON) (LedgerEntry, error) {
	if amount == 0 {
		return LedgerEntry{}, fmt.Errorf("%w: must be non-zero", ErrInvalidAmountUnits)
	}
	now := service.nowFn()
	entry := LedgerEntry{
		EntryID:        uuid.NewString(),
		UserID:         userID.String(),
		Type:           eventType,
		AmountUnits:    amount,
		UTCDay:         NewUTCDay(now).String(),
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		IdempotencyKey: idempotencyKey.String(),
		MetadataJSON:   metadata.String(),
		CreatedAt:      now.UTC(),
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertEntry(ctx, entry)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAppend,
		UserID:    userID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerEntry{}, operationError
	}
	return entry, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func dailyGrantKey(userID UserID, day UTCDay) string {
	return dailyGrantKeyPrefix + idempotencyKeyDelimiter + userID.String() + idempotencyKeyDelimiter + day.String()
}

func claimKey(claimID string) string {
	return claimKeyPrefix + idempotencyKeyDelimiter + claimID
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
