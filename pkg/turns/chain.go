package turns

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Canonical hash input: turnID|eventType|serverTimestampMs|eventIndex|prevHash,
// with an empty prevHash for the first event. Any verifier must reproduce
// this exact serialization.
const chainDelimiter = "|"

func computeEventHash(turnID string, eventType TurnEventType, serverTimestampMs int64, eventIndex int, previousHash string) string {
	canonical := strings.Join([]string{
		turnID,
		eventType.String(),
		strconv.FormatInt(serverTimestampMs, 10),
		strconv.Itoa(eventIndex),
		previousHash,
	}, chainDelimiter)
	digest := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(digest[:])
}

// appendEvent writes the next chained event for a turn. Callers must hold
// the turn row lock inside the surrounding transaction so concurrent
// writers cannot race the index.
func (service *Service) appendEvent(ctx context.Context, transactionStore Store, turnID string, eventType TurnEventType) (TurnEvent, error) {
	previous, hasPrevious, err := transactionStore.LastEvent(ctx, turnID)
	if err != nil {
		return TurnEvent{}, err
	}
	eventIndex := 0
	previousHash := ""
	if hasPrevious {
		eventIndex = previous.EventIndex + 1
		previousHash = previous.EventHash
	}
	timestampMs := service.nowFn().UTC().UnixMilli()
	event := TurnEvent{
		EventID:           uuid.NewString(),
		TurnID:            turnID,
		Type:              eventType,
		EventIndex:        eventIndex,
		ServerTimestampMs: timestampMs,
		EventHash:         computeEventHash(turnID, eventType, timestampMs, eventIndex, previousHash),
	}
	if err := transactionStore.InsertEvent(ctx, event); err != nil {
		return TurnEvent{}, err
	}
	return event, nil
}

// VerifyChain replays a turn's events in index order and recomputes every
// hash. Any gap, reordering, or mutated field breaks the recomputation and
// is reported as tampering at the first bad index.
func (service *Service) VerifyChain(ctx context.Context, turnID string) error {
	events, err := service.store.ListEvents(ctx, turnID)
	if err != nil {
		return err
	}
	previousHash := ""
	for position, event := range events {
		if event.EventIndex != position {
			return fmt.Errorf("%w: index gap at position %d", ErrChainTampered, position)
		}
		expected := computeEventHash(turnID, event.Type, event.ServerTimestampMs, event.EventIndex, previousHash)
		if event.EventHash != expected {
			return fmt.Errorf("%w: hash mismatch at index %d", ErrChainTampered, event.EventIndex)
		}
		previousHash = event.EventHash
	}
	return nil
}
