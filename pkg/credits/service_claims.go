package credits

import (
	"context"

	"github.com/google/uuid"
)

// ListUnclaimed returns the user's pending claims newest first.
func (service *Service) ListUnclaimed(ctx context.Context, userID UserID) ([]PendingClaim, error) {
	return service.store.ListUnclaimedClaims(ctx, userID.String())
}

// Claim atomically marks a pending claim as claimed and appends the
// matching ledger entry. Both writes happen in one store transaction, so a
// crash leaves either "unclaimed, no entry" or "claimed, entry present".
// A claim that is already claimed fails with ErrAlreadyClaimed; a claim
// that does not exist or belongs to another user fails with
// ErrClaimNotFound.
func (service *Service) Claim(ctx context.Context, claimID string, userID UserID) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		claim, err := transactionStore.GetClaimForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.UserID != userID.String() {
			return ErrClaimNotFound
		}
		if claim.ClaimedAt != nil {
			return ErrAlreadyClaimed
		}
		now := service.nowFn().UTC()
		if err := transactionStore.MarkClaimClaimed(ctx, claimID, now); err != nil {
			return err
		}
		entry = LedgerEntry{
			EntryID:        uuid.NewString(),
			UserID:         userID.String(),
			Type:           EventClaim,
			AmountUnits:    claim.AmountUnits,
			UTCDay:         NewUTCDay(now).String(),
			ReferenceID:    claim.ClaimID,
			ReferenceType:  "pending_claim",
			IdempotencyKey: claimKey(claim.ClaimID),
			MetadataJSON:   claim.MetadataJSON,
			CreatedAt:      now,
		}
		return transactionStore.InsertEntry(ctx, entry)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationClaim,
		UserID:    userID,
		ClaimID:   claimID,
		Amount:    entry.AmountUnits,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerEntry{}, operationError
	}
	return entry, nil
}

// CreateClaim stores a pending claim on behalf of the settlement
// collaborator (e.g. pool winnings awaiting user action).
func (service *Service) CreateClaim(ctx context.Context, userID UserID, claimType ClaimType, amount PositiveAmountUnits, metadata MetadataJSON) (PendingClaim, error) {
	now := service.nowFn().UTC()
	claim := PendingClaim{
		ClaimID:      uuid.NewString(),
		UserID:       userID.String(),
		Type:         claimType,
		AmountUnits:  amount.ToAmountUnits(),
		UTCDay:       NewUTCDay(now).String(),
		MetadataJSON: metadata.String(),
		CreatedAt:    now,
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertClaim(ctx, claim)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateClaim,
		UserID:    userID,
		ClaimID:   claim.ClaimID,
		Amount:    claim.AmountUnits,
		Error:     operationError,
	})
	if operationError != nil {
		return PendingClaim{}, operationError
	}
	return claim, nil
}
