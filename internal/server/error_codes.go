package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009

	// Domain state (2xxx)
	ErrCodeCaseNotFound         = 2001
	ErrCodeEvidenceNotFound     = 2002
	ErrCodeJobNotFound          = 2003
	ErrCodeUnknownModule        = 2004
	ErrCodeCaseClosed           = 2101
	ErrCodeDuplicateTarget      = 2102
	ErrCodeIncompatibleEvidence = 2103
	ErrCodeCaseHalted           = 2104
	ErrCodePathOutsideVault     = 2105
	ErrCodeIntegrityMismatch    = 2106
	ErrCodeConflict             = 2199

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 404:
		return ErrCodeCaseNotFound
	case 409:
		return ErrCodeConflict
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
