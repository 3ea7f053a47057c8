package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogev77/tophuman-core/pkg/credits"
)

const (
	constraintLedgerIdempotencyKey = "uniq_ledger_idempotency_key"
	pgUniqueViolationCode          = "23505"
	errorOperationStore            = "store"
	errorSubjectEntry              = "entry"
	errorSubjectBalance            = "balance"
	errorSubjectClaim              = "claim"
	errorSubjectTransaction        = "transaction"
	errorCodeBegin                 = "begin"
	errorCodeCommit                = "commit"
	errorCodeInsert                = "insert"
	errorCodeDuplicate             = "duplicate"
	errorCodeGet                   = "get"
	errorCodeList                  = "list"
	errorCodeCount                 = "count"
	errorCodeSum                   = "sum"
	errorCodeUpdate                = "update"
	errorCodeInvalid               = "invalid"

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, user_id, type, amount_units, utc_day, reference_id, reference_type, idempotency_key, metadata, created_at
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, coalesce(nullif($9,''),'{}')::jsonb, $10)
	`

	sqlSumAmount = `
		select coalesce(sum(amount_units),0) from ledger_entries where user_id = $1
	`

	sqlCountEntries = `
		select count(*) from ledger_entries where user_id = $1
	`

	sqlListEntries = `
		select
			entry_id::text,
			user_id,
			type,
			amount_units,
			utc_day,
			coalesce(reference_id,''),
			coalesce(reference_type,''),
			idempotency_key,
			coalesce(metadata::text,'{}'),
			created_at
		from ledger_entries
		where user_id = $1
		order by created_at desc
		limit $2 offset $3
	`

	sqlInsertClaim = `
		insert into pending_claims(
			claim_id, user_id, type, amount_units, utc_day, metadata, created_at
		)
		values($1, $2, $3, $4, $5, coalesce(nullif($6,''),'{}')::jsonb, $7)
	`

	sqlSelectClaimForUpdate = `
		select claim_id::text, user_id, type, amount_units, utc_day, coalesce(metadata::text,'{}'), created_at, claimed_at
		from pending_claims
		where claim_id = $1
		for update
	`

	sqlListUnclaimedClaims = `
		select claim_id::text, user_id, type, amount_units, utc_day, coalesce(metadata::text,'{}'), created_at, claimed_at
		from pending_claims
		where user_id = $1 and claimed_at is null
		order by created_at desc
	`

	sqlMarkClaimClaimed = `
		update pending_claims
		set claimed_at = $2
		where claim_id = $1 and claimed_at is null
	`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements credits.Store using a pgx connection pool (autocommit
// outside WithTx).
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// WithTx executes fn against a transaction-scoped store. Nested calls
// reuse the already-open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credits.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &Store{q: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry credits.LedgerEntry) error {
	_, err := store.q.Exec(ctx, sqlInsertEntry,
		entry.EntryID,
		entry.UserID,
		entry.Type.String(),
		entry.AmountUnits.Int64(),
		entry.UTCDay,
		nullable(entry.ReferenceID),
		nullable(entry.ReferenceType),
		entry.IdempotencyKey,
		entry.MetadataJSON,
		entry.CreatedAt,
	)
	if isUniqueViolation(err, constraintLedgerIdempotencyKey) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, credits.ErrDuplicateEntry)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumAmount(ctx context.Context, userID string) (int64, error) {
	var sum int64
	if err := store.q.QueryRow(ctx, sqlSumAmount, userID).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum, nil
}

func (store *Store) CountEntries(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := store.q.QueryRow(ctx, sqlCountEntries, userID).Scan(&count); err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) ListEntries(ctx context.Context, userID string, limit int, offset int) ([]credits.LedgerEntry, error) {
	rows, err := store.q.Query(ctx, sqlListEntries, userID, limit, offset)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries := make([]credits.LedgerEntry, 0, limit)
	for rows.Next() {
		var (
			entry     credits.LedgerEntry
			typeValue string
		)
		err := rows.Scan(
			&entry.EntryID,
			&entry.UserID,
			&typeValue,
			&entry.AmountUnits,
			&entry.UTCDay,
			&entry.ReferenceID,
			&entry.ReferenceType,
			&entry.IdempotencyKey,
			&entry.MetadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entry.Type, err = credits.ParseEventType(typeValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return entries, nil
}

func (store *Store) InsertClaim(ctx context.Context, claim credits.PendingClaim) error {
	_, err := store.q.Exec(ctx, sqlInsertClaim,
		claim.ClaimID,
		claim.UserID,
		claim.Type.String(),
		claim.AmountUnits.Int64(),
		claim.UTCDay,
		claim.MetadataJSON,
		claim.CreatedAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectClaim, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetClaimForUpdate(ctx context.Context, claimID string) (credits.PendingClaim, error) {
	claim, err := scanClaim(store.q.QueryRow(ctx, sqlSelectClaimForUpdate, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credits.PendingClaim{}, wrapStoreError(errorSubjectClaim, errorCodeGet, credits.ErrClaimNotFound)
		}
		return credits.PendingClaim{}, wrapStoreError(errorSubjectClaim, errorCodeGet, err)
	}
	return claim, nil
}

func (store *Store) ListUnclaimedClaims(ctx context.Context, userID string) ([]credits.PendingClaim, error) {
	rows, err := store.q.Query(ctx, sqlListUnclaimedClaims, userID)
	if err != nil {
		return nil, wrapStoreError(errorSubjectClaim, errorCodeList, err)
	}
	defer rows.Close()
	claims := make([]credits.PendingClaim, 0)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectClaim, errorCodeList, err)
	}
	return claims, nil
}

func (store *Store) MarkClaimClaimed(ctx context.Context, claimID string, claimedAt time.Time) error {
	tag, err := store.q.Exec(ctx, sqlMarkClaimClaimed, claimID, claimedAt)
	if err != nil {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, credits.ErrAlreadyClaimed)
	}
	return nil
}

func scanClaim(row pgx.Row) (credits.PendingClaim, error) {
	var (
		claim     credits.PendingClaim
		typeValue string
	)
	err := row.Scan(
		&claim.ClaimID,
		&claim.UserID,
		&typeValue,
		&claim.AmountUnits,
		&claim.UTCDay,
		&claim.MetadataJSON,
		&claim.CreatedAt,
		&claim.ClaimedAt,
	)
	if err != nil {
		return credits.PendingClaim{}, err
	}
	claim.Type, err = credits.ParseClaimType(typeValue)
	if err != nil {
		return credits.PendingClaim{}, err
	}
	return claim, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func wrapStoreError(subject string, code string, err error) error {
	return credits.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
