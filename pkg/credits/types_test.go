package credits

import (
	"errors"
	"testing"
	"time"
)

func TestNewUserIDTrimsAndRejectsEmpty(test *testing.T) {
	test.Parallel()
	userID, err := NewUserID("  user-7  ")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	if userID.String() != "user-7" {
		test.Fatalf("expected trimmed id, got %q", userID.String())
	}
	if _, err := NewUserID("   "); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestNewPositiveAmountUnitsRejectsNonPositive(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{0, -1, -100} {
		if _, err := NewPositiveAmountUnits(raw); !errors.Is(err, ErrInvalidAmountUnits) {
			test.Fatalf("amount %d: expected ErrInvalidAmountUnits, got %v", raw, err)
		}
	}
	amount := mustPositiveAmount(test, 5)
	if amount.ToAmountUnits().Int64() != 5 {
		test.Fatalf("unexpected amount: %d", amount.ToAmountUnits())
	}
}

func TestNewMetadataJSONDefaultsAndValidates(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected empty object, got %q", metadata.String())
	}
	if _, err := NewMetadataJSON("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestUTCDayUsesUTCCalendar(test *testing.T) {
	test.Parallel()
	// 23:30 in UTC-5 is already the next day in UTC.
	zone := time.FixedZone("UTC-5", -5*60*60)
	localEvening := time.Date(2026, time.March, 14, 23, 30, 0, 0, zone)
	day := NewUTCDay(localEvening)
	if day.String() != "2026-03-15" {
		test.Fatalf("expected 2026-03-15, got %s", day.String())
	}
	if _, err := ParseUTCDay("2026-13-40"); !errors.Is(err, ErrInvalidUTCDay) {
		test.Fatalf("expected ErrInvalidUTCDay, got %v", err)
	}
}

func TestParseEventType(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"daily_grant", "game_reward", "claim", "adjustment"} {
		if _, err := ParseEventType(raw); err != nil {
			test.Fatalf("event type %q: %v", raw, err)
		}
	}
	if _, err := ParseEventType("mystery"); !errors.Is(err, ErrInvalidEventType) {
		test.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestParseClaimType(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"winnings", "daily"} {
		if _, err := ParseClaimType(raw); err != nil {
			test.Fatalf("claim type %q: %v", raw, err)
		}
	}
	if _, err := ParseClaimType("bonus"); !errors.Is(err, ErrInvalidClaimType) {
		test.Fatalf("expected ErrInvalidClaimType, got %v", err)
	}
}
