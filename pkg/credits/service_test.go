package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func TestGrantDailyAppendsEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-1")

	result, err := service.GrantDaily(context.Background(), userID)
	if err != nil {
		test.Fatalf("grant daily: %v", err)
	}
	if !result.Granted {
		test.Fatalf("expected grant, got noop")
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Type != EventDailyGrant {
		test.Fatalf("unexpected entry type: %s", entry.Type)
	}
	if entry.AmountUnits != DailyGrantAmountUnits {
		test.Fatalf("unexpected amount: %d", entry.AmountUnits)
	}
	if entry.IdempotencyKey != "daily_grant:user-1:2026-03-14" {
		test.Fatalf("unexpected idempotency key: %s", entry.IdempotencyKey)
	}
	if entry.UTCDay != "2026-03-14" {
		test.Fatalf("unexpected utc day: %s", entry.UTCDay)
	}
}

func TestGrantDailySecondCallIsNoOp(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-2")

	first, err := service.GrantDaily(context.Background(), userID)
	if err != nil {
		test.Fatalf("first grant: %v", err)
	}
	second, err := service.GrantDaily(context.Background(), userID)
	if err != nil {
		test.Fatalf("second grant: %v", err)
	}
	if !first.Granted || second.Granted {
		test.Fatalf("expected granted then noop, got %v then %v", first.Granted, second.Granted)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected a single entry, got %d", len(store.entries))
	}
}

func TestGrantDailyConcurrentRequestsGrantOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-race")

	const attempts = 8
	granted := make(chan bool, attempts)
	var group sync.WaitGroup
	for i := 0; i < attempts; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			result, err := service.GrantDaily(context.Background(), userID)
			if err != nil {
				test.Errorf("grant daily: %v", err)
				return
			}
			granted <- result.Granted
		}()
	}
	group.Wait()
	close(granted)

	grantedCount := 0
	for wasGranted := range granted {
		if wasGranted {
			grantedCount++
		}
	}
	if grantedCount != 1 {
		test.Fatalf("expected exactly one grant, got %d", grantedCount)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected a single entry, got %d", len(store.entries))
	}
}

func TestGrantDailyNewDayGrantsAgain(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &steppedClock{now: fixedNow}
	service, err := NewService(store, clock.Now)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	userID := mustUserID(test, "user-3")

	if _, err := service.GrantDaily(context.Background(), userID); err != nil {
		test.Fatalf("first grant: %v", err)
	}
	clock.advance(24 * time.Hour)
	result, err := service.GrantDaily(context.Background(), userID)
	if err != nil {
		test.Fatalf("next-day grant: %v", err)
	}
	if !result.Granted {
		test.Fatalf("expected grant on new day")
	}
	if len(store.entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(store.entries))
	}
}

func TestBalanceSumsLedger(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "balance-user")

	key := mustIdempotencyKey(test, "reward-1")
	metadata := mustMetadata(test, "{}")
	if _, err := service.Append(context.Background(), userID, EventGameReward, 30, "game-1", "game", key, metadata); err != nil {
		test.Fatalf("append reward: %v", err)
	}
	key = mustIdempotencyKey(test, "adjust-1")
	if _, err := service.Append(context.Background(), userID, EventAdjustment, -12, "", "", key, metadata); err != nil {
		test.Fatalf("append adjustment: %v", err)
	}

	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Int64() != 18 {
		test.Fatalf("expected balance 18, got %d", balance.Int64())
	}
}

func TestAppendRejectsZeroAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "zero-user")
	key := mustIdempotencyKey(test, "zero-key")
	metadata := mustMetadata(test, "{}")

	_, err := service.Append(context.Background(), userID, EventAdjustment, 0, "", "", key, metadata)
	if !errors.Is(err, ErrInvalidAmountUnits) {
		test.Fatalf("expected ErrInvalidAmountUnits, got %v", err)
	}
}

func TestAppendDuplicateKeyFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "dup-user")
	key := mustIdempotencyKey(test, "dup-key")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Append(context.Background(), userID, EventGameReward, 10, "", "", key, metadata); err != nil {
		test.Fatalf("first append: %v", err)
	}
	_, err := service.Append(context.Background(), userID, EventGameReward, 10, "", "", key, metadata)
	if !errors.Is(err, ErrDuplicateEntry) {
		test.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestHistoryClampsPagination(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "history-user")

	if _, _, err := service.History(context.Background(), userID, 0, -3); err != nil {
		test.Fatalf("history: %v", err)
	}
	if store.lastListLimit != 50 {
		test.Fatalf("expected default limit 50, got %d", store.lastListLimit)
	}
	if store.lastListOffset != 0 {
		test.Fatalf("expected clamped offset 0, got %d", store.lastListOffset)
	}

	if _, _, err := service.History(context.Background(), userID, 500, 20); err != nil {
		test.Fatalf("history: %v", err)
	}
	if store.lastListLimit != 100 {
		test.Fatalf("expected max limit 100, got %d", store.lastListLimit)
	}
	if store.lastListOffset != 20 {
		test.Fatalf("expected offset 20, got %d", store.lastListOffset)
	}
}

func TestHistoryReturnsTotalCount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "count-user")
	metadata := mustMetadata(test, "{}")
	for i := 0; i < 3; i++ {
		key := mustIdempotencyKey(test, "count-"+string(rune('a'+i)))
		if _, err := service.Append(context.Background(), userID, EventGameReward, 5, "", "", key, metadata); err != nil {
			test.Fatalf("append: %v", err)
		}
	}

	entries, total, err := service.History(context.Background(), userID, 2, 0)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if total != 3 {
		test.Fatalf("expected total 3, got %d", total)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewService(nil, func() time.Time { return fixedNow })
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	_, err = NewService(newStubStore(test), nil)
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}

type steppedClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (clock *steppedClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *steppedClock) advance(delta time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(delta)
}

type stubStore struct {
	mutex          sync.Mutex
	entries        []LedgerEntry
	claims         map[string]PendingClaim
	idempotency    map[string]struct{}
	lastListLimit  int
	lastListOffset int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		claims:      make(map[string]PendingClaim),
		idempotency: make(map[string]struct{}),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return fn(ctx, unlockedStore{store})
}

// unlockedStore runs inside WithTx where the mutex is already held.
type unlockedStore struct {
	store *stubStore
}

func (tx unlockedStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, tx)
}

func (tx unlockedStore) InsertEntry(ctx context.Context, entry LedgerEntry) error {
	return tx.store.insertEntryLocked(entry)
}

func (tx unlockedStore) SumAmount(ctx context.Context, userID string) (int64, error) {
	return tx.store.sumAmountLocked(userID), nil
}

func (tx unlockedStore) ListEntries(ctx context.Context, userID string, limit int, offset int) ([]LedgerEntry, error) {
	return tx.store.listEntriesLocked(userID, limit, offset), nil
}

func (tx unlockedStore) CountEntries(ctx context.Context, userID string) (int64, error) {
	return tx.store.countEntriesLocked(userID), nil
}

func (tx unlockedStore) InsertClaim(ctx context.Context, claim PendingClaim) error {
	tx.store.claims[claim.ClaimID] = claim
	return nil
}

func (tx unlockedStore) GetClaimForUpdate(ctx context.Context, claimID string) (PendingClaim, error) {
	claim, ok := tx.store.claims[claimID]
	if !ok {
		return PendingClaim{}, ErrClaimNotFound
	}
	return claim, nil
}

func (tx unlockedStore) ListUnclaimedClaims(ctx context.Context, userID string) ([]PendingClaim, error) {
	return tx.store.listUnclaimedLocked(userID), nil
}

func (tx unlockedStore) MarkClaimClaimed(ctx context.Context, claimID string, claimedAt time.Time) error {
	claim, ok := tx.store.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.ClaimedAt != nil {
		return ErrAlreadyClaimed
	}
	claimedAtCopy := claimedAt
	claim.ClaimedAt = &claimedAtCopy
	tx.store.claims[claimID] = claim
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry LedgerEntry) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.insertEntryLocked(entry)
}

func (store *stubStore) SumAmount(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.sumAmountLocked(userID), nil
}

func (store *stubStore) ListEntries(ctx context.Context, userID string, limit int, offset int) ([]LedgerEntry, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listEntriesLocked(userID, limit, offset), nil
}

func (store *stubStore) CountEntries(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.countEntriesLocked(userID), nil
}

func (store *stubStore) InsertClaim(ctx context.Context, claim PendingClaim) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.claims[claim.ClaimID] = claim
	return nil
}

func (store *stubStore) GetClaimForUpdate(ctx context.Context, claimID string) (PendingClaim, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	claim, ok := store.claims[claimID]
	if !ok {
		return PendingClaim{}, ErrClaimNotFound
	}
	return claim, nil
}

func (store *stubStore) ListUnclaimedClaims(ctx context.Context, userID string) ([]PendingClaim, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listUnclaimedLocked(userID), nil
}

func (store *stubStore) MarkClaimClaimed(ctx context.Context, claimID string, claimedAt time.Time) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return unlockedStore{store}.MarkClaimClaimed(context.Background(), claimID, claimedAt)
}

func (store *stubStore) insertEntryLocked(entry LedgerEntry) error {
	if _, exists := store.idempotency[entry.IdempotencyKey]; exists {
		return ErrDuplicateEntry
	}
	store.idempotency[entry.IdempotencyKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) sumAmountLocked(userID string) int64 {
	var sum int64
	for _, entry := range store.entries {
		if entry.UserID == userID {
			sum += entry.AmountUnits.Int64()
		}
	}
	return sum
}

func (store *stubStore) listEntriesLocked(userID string, limit int, offset int) []LedgerEntry {
	store.lastListLimit = limit
	store.lastListOffset = offset
	matched := make([]LedgerEntry, 0, len(store.entries))
	for index := len(store.entries) - 1; index >= 0; index-- {
		if store.entries[index].UserID == userID {
			matched = append(matched, store.entries[index])
		}
	}
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (store *stubStore) countEntriesLocked(userID string) int64 {
	var count int64
	for _, entry := range store.entries {
		if entry.UserID == userID {
			count++
		}
	}
	return count
}

func (store *stubStore) listUnclaimedLocked(userID string) []PendingClaim {
	unclaimed := make([]PendingClaim, 0, len(store.claims))
	for _, claim := range store.claims {
		if claim.UserID == userID && claim.ClaimedAt == nil {
			unclaimed = append(unclaimed, claim)
		}
	}
	return unclaimed
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return fixedNow })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key %q: %v", raw, err)
	}
	return key
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmountUnits {
	test.Helper()
	amount, err := NewPositiveAmountUnits(raw)
	if err != nil {
		test.Fatalf("amount %d: %v", raw, err)
	}
	return amount
}
