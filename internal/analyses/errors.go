package analyses

import "errors"

var (
	ErrNotFound           = errors.New("analysis not found")
	ErrInvalidInput       = errors.New("invalid analysis request")
	ErrQueueNotConfigured = errors.New("analysis queue not configured")
)

const (
	ErrorCodeService  = "ANALYSIS_SERVICE_ERROR"
	ErrorCodeParse    = "ANALYSIS_PARSE_ERROR"
	ErrorCodeStorage  = "STORAGE_ERROR"
	ErrorCodeInternal = "INTERNAL_ERROR"
)
