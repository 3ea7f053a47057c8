package turns

import "time"

const (
	operationIssue       = "issue"
	operationStart       = "start"
	operationComplete    = "complete"
	operationRecordEvent = "record_event"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusExpired = "expired"

	// defaultCompletionGrace absorbs network latency between the client
	// finishing and the completion request arriving at the server.
	defaultCompletionGrace = 2 * time.Second
)
