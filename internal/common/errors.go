package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes surfaced in results and logs.
const (
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeCorruptDocument   = "CORRUPT_DOCUMENT"
	CodePageLimitExceeded = "PAGE_LIMIT_EXCEEDED"
	CodeTransientBackend  = "TRANSIENT_BACKEND_ERROR"
	CodeAuthentication    = "AUTHENTICATION_ERROR"
	CodeExtractionFailure = "EXTRACTION_FAILURE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeValidation        = "VALIDATION_ERROR"
	CodeCacheConsistency  = "CACHE_CONSISTENCY_ERROR"
	CodeCanceled          = "CANCELED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinel errors; AppErrors carry one of these as Cause so errors.Is works across layers.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrPageLimitExceeded = errors.New("page limit exceeded")
	ErrTransientBackend  = errors.New("transient backend error")
	ErrAuthentication    = errors.New("authentication failed")
	ErrExtractionFailure = errors.New("extraction failed")
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrValidation        = errors.New("validation failed")
	ErrCacheConsistency  = errors.New("cache consistency violated")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func ConfigurationErrorf(format string, args ...any) error {
	return NewAppError(CodeConfiguration, fmt.Sprintf(format, args...), ErrConfiguration)
}

func UnsupportedFormatf(format string, args ...any) error {
	return NewAppError(CodeUnsupportedFormat, fmt.Sprintf(format, args...), ErrUnsupportedFormat)
}

func CorruptDocument(message string, cause error) error {
	return NewAppError(CodeCorruptDocument, message, errors.Join(ErrCorruptDocument, cause))
}

func PageLimitExceededf(format string, args ...any) error {
	return NewAppError(CodePageLimitExceeded, fmt.Sprintf(format, args...), ErrPageLimitExceeded)
}

func TransientBackend(message string, cause error) error {
	return NewAppError(CodeTransientBackend, message, errors.Join(ErrTransientBackend, cause))
}

func Authentication(message string, cause error) error {
	return NewAppError(CodeAuthentication, message, errors.Join(ErrAuthentication, cause))
}

func ExtractionFailure(message string, cause error) error {
	return NewAppError(CodeExtractionFailure, message, errors.Join(ErrExtractionFailure, cause))
}

func MalformedResponsef(format string, args ...any) error {
	return NewAppError(CodeMalformedResponse, fmt.Sprintf(format, args...), ErrMalformedResponse)
}

func CacheConsistencyf(format string, args ...any) error {
	return NewAppError(CodeCacheConsistency, fmt.Sprintf(format, args...), ErrCacheConsistency)
}

// ErrorCode returns the taxonomy code for any error in the chain.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrCorruptDocument):
		return CodeCorruptDocument
	case errors.Is(err, ErrPageLimitExceeded):
		return CodePageLimitExceeded
	case errors.Is(err, ErrTransientBackend):
		return CodeTransientBackend
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrExtractionFailure):
		return CodeExtractionFailure
	case errors.Is(err, ErrCacheConsistency):
		return CodeCacheConsistency
	}
	return CodeInternal
}

// GRPCCode maps taxonomy codes onto canonical status codes.
func GRPCCode(code string) codes.Code {
	switch code {
	case "":
		return codes.OK
	case CodeConfiguration:
		return codes.FailedPrecondition
	case CodeUnsupportedFormat, CodeCorruptDocument, CodeValidation:
		return codes.InvalidArgument
	case CodePageLimitExceeded:
		return codes.ResourceExhausted
	case CodeTransientBackend:
		return codes.Unavailable
	case CodeAuthentication:
		return codes.Unauthenticated
	case CodeExtractionFailure, CodeMalformedResponse:
		return codes.Aborted
	case CodeCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// Status converts err into a gRPC status carrying its taxonomy code in the message.
func Status(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	code := ErrorCode(err)
	return status.New(GRPCCode(code), err.Error())
}

// IsInputError reports errors that reject a document before any backend call.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptDocument) ||
		errors.Is(err, ErrPageLimitExceeded)
}

// Process exit codes used by the CLIs.
const (
	ExitOK            = 0
	ExitInternal      = 1
	ExitUsage         = 2
	ExitConfiguration = 3
	ExitInputRejected = 4
	ExitExtraction    = 5
)

// ExitCode maps an error onto the CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrAuthentication):
		return ExitConfiguration
	case IsInputError(err):
		return ExitInputRejected
	case errors.Is(err, ErrExtractionFailure), errors.Is(err, ErrTransientBackend):
		return ExitExtraction
	default:
		return ExitInternal
	}
}
