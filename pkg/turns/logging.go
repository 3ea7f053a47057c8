package turns

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing turn operation.
type OperationLog struct {
	Operation string
	TurnID    string
	UserID    string
	EventType string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithCompletionGrace overrides the latency allowance applied when
// validating elapsed time on completion.
func WithCompletionGrace(grace time.Duration) ServiceOption {
	return func(service *Service) {
		if grace >= 0 {
			service.completionGrace = grace
		}
	}
}
