// Package errors provides structured error handling for taxctx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Persistence errors (database, lexical index, disk)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryPersistence indicates database and index I/O errors.
	CategoryPersistence Category = "PERSISTENCE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Persistence errors (200-299)
	ErrCodePersistenceRead  = "ERR_201_PERSISTENCE_READ"
	ErrCodePersistenceWrite = "ERR_202_PERSISTENCE_WRITE"
	ErrCodeChunkNotFound    = "ERR_203_CHUNK_NOT_FOUND"
	ErrCodeCorruptStore     = "ERR_204_CORRUPT_STORE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeBatchMismatch     = "ERR_403_BATCH_MISMATCH"
	ErrCodeMalformedMetadata = "ERR_404_MALFORMED_METADATA"
	ErrCodeQueryEmpty        = "ERR_405_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
	ErrCodeRetrievalFailed = "ERR_506_RETRIEVAL_FAILED"
)

// Sentinels for errors.Is checks. Matching is by code, so any *Error
// carrying the same code satisfies errors.Is against these.
var (
	ErrChunkNotFound     = &Error{Code: ErrCodeChunkNotFound}
	ErrDimensionMismatch = &Error{Code: ErrCodeDimensionMismatch}
	ErrMalformedMetadata = &Error{Code: ErrCodeMalformedMetadata}
	ErrEmptyInput        = &Error{Code: ErrCodeInvalidInput}
	ErrSearchFailed      = &Error{Code: ErrCodeSearchFailed}
	ErrRetrievalFailed   = &Error{Code: ErrCodeRetrievalFailed}
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryPersistence
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore:
		return SeverityFatal
	case ErrCodeMalformedMetadata:
		// A single bad candidate never fails a retrieval.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodePersistenceRead, ErrCodePersistenceWrite, ErrCodeEmbeddingFailed, ErrCodeRetrievalFailed:
		return true
	default:
		return false
	}
}
