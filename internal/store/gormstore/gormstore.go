package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yogev77/tophuman-core/pkg/credits"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectEntry     = "entry"
	errorSubjectBalance   = "balance"
	errorSubjectClaim     = "claim"
	errorSubjectTurn      = "turn"
	errorSubjectEvent     = "event"
	errorSubjectSession   = "session"
	errorCodeInsert       = "insert"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeList         = "list"
	errorCodeCount        = "count"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
	errorCodeInvalid      = "invalid"
)

// CreditsStore implements credits.Store using GORM.
type CreditsStore struct {
	db *gorm.DB
}

// NewCreditsStore returns a store backed by gorm.DB.
func NewCreditsStore(db *gorm.DB) *CreditsStore {
	return &CreditsStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *CreditsStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credits.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &CreditsStore{db: transaction})
	})
}

func (store *CreditsStore) InsertEntry(ctx context.Context, entry credits.LedgerEntry) error {
	model := LedgerEntry{
		EntryID:        entry.EntryID,
		UserID:         entry.UserID,
		Type:           entry.Type.String(),
		AmountUnits:    entry.AmountUnits.Int64(),
		UTCDay:         entry.UTCDay,
		ReferenceID:    entry.ReferenceID,
		ReferenceType:  entry.ReferenceType,
		IdempotencyKey: entry.IdempotencyKey,
		Metadata:       datatypesJSON(entry.MetadataJSON),
		CreatedAt:      entry.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return credits.WrapError(errorOperationStore, errorSubjectEntry, errorCodeDuplicate, credits.ErrDuplicateEntry)
	}
	if err != nil {
		return credits.WrapError(errorOperationStore, errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *CreditsStore) SumAmount(ctx context.Context, userID string) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_units),0) as total").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, credits.WrapError(errorOperationStore, errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *CreditsStore) ListEntries(ctx context.Context, userID string, limit int, offset int) ([]credits.LedgerEntry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, credits.WrapError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]credits.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, credits.WrapError(errorOperationStore, errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *CreditsStore) CountEntries(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, credits.WrapError(errorOperationStore, errorSubjectEntry, errorCodeCount, err)
	}
	return count, nil
}

func (store *CreditsStore) InsertClaim(ctx context.Context, claim credits.PendingClaim) error {
	model := PendingClaim{
		ClaimID:     claim.ClaimID,
		UserID:      claim.UserID,
		Type:        claim.Type.String(),
		AmountUnits: claim.AmountUnits.Int64(),
		UTCDay:      claim.UTCDay,
		Metadata:    datatypesJSON(claim.MetadataJSON),
		CreatedAt:   claim.CreatedAt,
		ClaimedAt:   claim.ClaimedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeInsert, err)
	}
	return nil
}

func (store *CreditsStore) GetClaimForUpdate(ctx context.Context, claimID string) (credits.PendingClaim, error) {
	var model PendingClaim
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("claim_id = ?", claimID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return credits.PendingClaim{}, credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeGet, credits.ErrClaimNotFound)
		}
		return credits.PendingClaim{}, credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeGet, err)
	}
	claim, err := mapPendingClaim(model)
	if err != nil {
		return credits.PendingClaim{}, credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeInvalid, err)
	}
	return claim, nil
}

func (store *CreditsStore) ListUnclaimedClaims(ctx context.Context, userID string) ([]credits.PendingClaim, error) {
	var rows []PendingClaim
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND claimed_at IS NULL", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeList, err)
	}
	claims := make([]credits.PendingClaim, 0, len(rows))
	for _, row := range rows {
		claim, err := mapPendingClaim(row)
		if err != nil {
			return nil, credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeInvalid, err)
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

func (store *CreditsStore) MarkClaimClaimed(ctx context.Context, claimID string, claimedAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&PendingClaim{}).
		Where("claim_id = ? AND claimed_at IS NULL", claimID).
		Update("claimed_at", claimedAt)
	if result.Error != nil {
		return credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return credits.WrapError(errorOperationStore, errorSubjectClaim, errorCodeUpdate, credits.ErrAlreadyClaimed)
	}
	return nil
}

func mapLedgerEntry(row LedgerEntry) (credits.LedgerEntry, error) {
	eventType, err := credits.ParseEventType(row.Type)
	if err != nil {
		return credits.LedgerEntry{}, err
	}
	return credits.LedgerEntry{
		EntryID:        row.EntryID,
		UserID:         row.UserID,
		Type:           eventType,
		AmountUnits:    credits.AmountUnits(row.AmountUnits),
		UTCDay:         row.UTCDay,
		ReferenceID:    row.ReferenceID,
		ReferenceType:  row.ReferenceType,
		IdempotencyKey: row.IdempotencyKey,
		MetadataJSON:   string(row.Metadata),
		CreatedAt:      row.CreatedAt,
	}, nil
}

func mapPendingClaim(row PendingClaim) (credits.PendingClaim, error) {
	claimType, err := credits.ParseClaimType(row.Type)
	if err != nil {
		return credits.PendingClaim{}, err
	}
	return credits.PendingClaim{
		ClaimID:      row.ClaimID,
		UserID:       row.UserID,
		Type:         claimType,
		AmountUnits:  credits.AmountUnits(row.AmountUnits),
		UTCDay:       row.UTCDay,
		MetadataJSON: string(row.Metadata),
		CreatedAt:    row.CreatedAt,
		ClaimedAt:    row.ClaimedAt,
	}, nil
}

type sqlSum struct {
	Total int64
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
