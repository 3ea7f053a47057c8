package turns

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

func TestComputeEventHashCanonicalForm(test *testing.T) {
	test.Parallel()
	digest := sha256.Sum256([]byte("turn-1|start|1770000000000|0|"))
	expected := hex.EncodeToString(digest[:])
	got := computeEventHash("turn-1", EventStart, 1770000000000, 0, "")
	if got != expected {
		test.Fatalf("expected %s, got %s", expected, got)
	}
}

func TestComputeEventHashLinksToPrevious(test *testing.T) {
	test.Parallel()
	first := computeEventHash("turn-1", EventStart, 1770000000000, 0, "")
	second := computeEventHash("turn-1", EventInput, 1770000001000, 1, first)
	rechained := computeEventHash("turn-1", EventInput, 1770000001000, 1, "forged")
	if second == rechained {
		test.Fatalf("previous hash must alter the digest")
	}
}

func TestVerifyChainAcceptsUntouchedTrail(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newTestClock(baseNow)
	service := mustNewService(test, store, clock)
	turn := mustIssue(test, service, "player-1")
	token := mustToken(test, turn.TurnToken)
	if _, err := service.Start(context.Background(), token, "player-1"); err != nil {
		test.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		clock.advance(time.Second)
		if _, err := service.RecordEvent(context.Background(), turn.TurnID, EventInput); err != nil {
			test.Fatalf("record event: %v", err)
		}
	}
	clock.advance(time.Second)
	if _, err := service.Complete(context.Background(), token, "player-1"); err != nil {
		test.Fatalf("complete: %v", err)
	}

	if err := service.VerifyChain(context.Background(), turn.TurnID); err != nil {
		test.Fatalf("verify chain: %v", err)
	}
}

func TestVerifyChainDetectsMutatedTimestamp(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newTestClock(baseNow))
	turn := mustIssue(test, service, "player-1")
	if _, err := service.Start(context.Background(), mustToken(test, turn.TurnToken), "player-1"); err != nil {
		test.Fatalf("start: %v", err)
	}
	if _, err := service.RecordEvent(context.Background(), turn.TurnID, EventInput); err != nil {
		test.Fatalf("record event: %v", err)
	}

	store.mutex.Lock()
	store.events[turn.TurnID][1].ServerTimestampMs += 5
	store.mutex.Unlock()

	err := service.VerifyChain(context.Background(), turn.TurnID)
	if !errors.Is(err, ErrChainTampered) {
		test.Fatalf("expected ErrChainTampered, got %v", err)
	}
}

func TestVerifyChainDetectsDeletedEvent(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newTestClock(baseNow))
	turn := mustIssue(test, service, "player-1")
	if _, err := service.Start(context.Background(), mustToken(test, turn.TurnToken), "player-1"); err != nil {
		test.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := service.RecordEvent(context.Background(), turn.TurnID, EventInput); err != nil {
			test.Fatalf("record event: %v", err)
		}
	}

	store.mutex.Lock()
	events := store.events[turn.TurnID]
	store.events[turn.TurnID] = append(events[:1], events[2:]...)
	store.mutex.Unlock()

	err := service.VerifyChain(context.Background(), turn.TurnID)
	if !errors.Is(err, ErrChainTampered) {
		test.Fatalf("expected ErrChainTampered, got %v", err)
	}
}

func TestVerifyChainDetectsSwappedHash(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, newTestClock(baseNow))
	turn := mustIssue(test, service, "player-1")
	if _, err := service.Start(context.Background(), mustToken(test, turn.TurnToken), "player-1"); err != nil {
		test.Fatalf("start: %v", err)
	}
	if _, err := service.RecordEvent(context.Background(), turn.TurnID, EventInput); err != nil {
		test.Fatalf("record event: %v", err)
	}

	store.mutex.Lock()
	store.events[turn.TurnID][1].EventHash = store.events[turn.TurnID][0].EventHash
	store.mutex.Unlock()

	err := service.VerifyChain(context.Background(), turn.TurnID)
	if !errors.Is(err, ErrChainTampered) {
		test.Fatalf("expected ErrChainTampered, got %v", err)
	}
}

func TestGenerateTurnTokenIsURLSafeAndUnique(test *testing.T) {
	test.Parallel()
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := GenerateTurnToken()
		if err != nil {
			test.Fatalf("generate token: %v", err)
		}
		value := token.String()
		if len(value) != 43 {
			test.Fatalf("expected 43-char token for 32 bytes, got %d", len(value))
		}
		for _, char := range value {
			if char == '+' || char == '/' || char == '=' {
				test.Fatalf("token not URL safe: %q", value)
			}
		}
		if _, exists := seen[value]; exists {
			test.Fatalf("duplicate token generated")
		}
		seen[value] = struct{}{}
	}
}
