package credits

const (
	operationBalance     = "balance"
	operationHistory     = "history"
	operationGrantDaily  = "grant_daily"
	operationAppend      = "append"
	operationClaim       = "claim"
	operationCreateClaim = "create_claim"

	operationStatusOK    = "ok"
	operationStatusError = "error"
	operationStatusNoOp  = "noop"

	idempotencyKeyDelimiter = ":"
	dailyGrantKeyPrefix     = "daily_grant"
	claimKeyPrefix          = "claim"

	// DailyGrantAmountUnits is the fixed reward credited at most once per
	// user per UTC calendar day.
	DailyGrantAmountUnits = 5

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)
