package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidType          ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105

	// Storage errors (200-299)
	ErrCodeDataNotFound    ErrorCode = 200
	ErrCodeQueryFailed     ErrorCode = 201
	ErrCodeStorageFailed   ErrorCode = 202
	ErrCodeSerializeFailed ErrorCode = 203

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301

	// Algo order errors (400-499)
	ErrCodeAlgoNotFound         ErrorCode = 400
	ErrCodeAlgoAlreadyExists    ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402
	ErrCodeInstanceNotFound     ErrorCode = 403
	ErrCodeVersionMismatch      ErrorCode = 404
	ErrCodeSignalAlreadyEnded   ErrorCode = 405
	ErrCodeSignalForeignParent  ErrorCode = 406
	ErrCodeHostClosed           ErrorCode = 407

	// Exchange errors (500-599)
	ErrCodeOrderFailed         ErrorCode = 500
	ErrCodeInsufficientBalance ErrorCode = 501
	ErrCodeMinimumSize         ErrorCode = 502
	ErrCodeActionDisabled      ErrorCode = 503
	ErrCodeCancelFailed        ErrorCode = 504
	ErrCodeSubscribeFailed     ErrorCode = 505
	ErrCodeStreamFailed        ErrorCode = 506

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
)
