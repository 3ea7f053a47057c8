// Package oplog adapts domain operation logs onto a shared zap logger.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/yogev77/tophuman-core/pkg/credits"
	"github.com/yogev77/tophuman-core/pkg/turns"
)

// CreditsLogger forwards credits operation logs to zap.
type CreditsLogger struct {
	logger *zap.Logger
}

// NewCreditsLogger wraps the supplied zap logger.
func NewCreditsLogger(logger *zap.Logger) *CreditsLogger {
	return &CreditsLogger{logger: logger.Named("credits")}
}

// LogOperation implements credits.OperationLogger.
func (adapter *CreditsLogger) LogOperation(_ context.Context, entry credits.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if entry.ClaimID != "" {
		fields = append(fields, zap.String("claim_id", entry.ClaimID))
	}
	if entry.Amount.Int64() != 0 {
		fields = append(fields, zap.Int64("amount_units", entry.Amount.Int64()))
	}
	if entry.UTCDay != "" {
		fields = append(fields, zap.String("utc_day", entry.UTCDay))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("credits operation", fields...)
		return
	}
	adapter.logger.Info("credits operation", fields...)
}

// TurnsLogger forwards turn operation logs to zap.
type TurnsLogger struct {
	logger *zap.Logger
}

// NewTurnsLogger wraps the supplied zap logger.
func NewTurnsLogger(logger *zap.Logger) *TurnsLogger {
	return &TurnsLogger{logger: logger.Named("turns")}
}

// LogOperation implements turns.OperationLogger.
func (adapter *TurnsLogger) LogOperation(_ context.Context, entry turns.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("turn_id", entry.TurnID),
		zap.String("user_id", entry.UserID),
		zap.String("status", entry.Status),
	}
	if entry.EventType != "" {
		fields = append(fields, zap.String("event_type", entry.EventType))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("turn operation", fields...)
		return
	}
	adapter.logger.Info("turn operation", fields...)
}
