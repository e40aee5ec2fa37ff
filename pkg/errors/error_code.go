package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidInstrument    ErrorCode = 102
	ErrCodeInvalidLeverage      ErrorCode = 103
	ErrCodeInvalidMarginRatio   ErrorCode = 104
	ErrCodeInvalidQuantity      ErrorCode = 105
	ErrCodeInvalidPrice         ErrorCode = 106
	ErrCodeInvalidIntent        ErrorCode = 107
	ErrCodeInvalidFeeModel      ErrorCode = 108
	ErrCodeInvalidSlippageModel ErrorCode = 109

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeNonMonotonicTick      ErrorCode = 203
	ErrCodeInvalidTick           ErrorCode = 204

	// Execution errors (500-599)
	ErrCodeOrderRejected     ErrorCode = 500
	ErrCodeNoMarketData      ErrorCode = 501
	ErrCodeUnknownInstrument ErrorCode = 502
	ErrCodePositionNotFound  ErrorCode = 503

	// Ledger/Backtest errors (600-699)
	ErrCodeMarginBreach      ErrorCode = 600
	ErrCodeEquityMismatch    ErrorCode = 601
	ErrCodeJournalFailed     ErrorCode = 602
	ErrCodeRunNotInitialized ErrorCode = 603
)
