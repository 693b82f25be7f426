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

// Error codes of the extraction taxonomy.
const (
	CodeConfiguration        = "CONFIGURATION_ERROR"
	CodeResourceExhausted    = "RESOURCE_EXHAUSTED"
	CodeTimeout              = "TIMEOUT"
	CodeTransport            = "TRANSPORT_ERROR"
	CodeContent              = "CONTENT_ERROR"
	CodeIsolationUnavailable = "ISOLATION_UNAVAILABLE"
	CodeRaster               = "RASTER_ERROR"
	CodeNotFound             = "NOT_FOUND"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func ConfigurationError(message string) *AppError {
	return NewAppError(CodeConfiguration, message, ErrInvalidInput)
}

func ConfigurationErrorf(format string, args ...any) *AppError {
	return ConfigurationError(fmt.Sprintf(format, args...))
}

func ResourceExhaustedError(message string, cause error) *AppError {
	return NewAppError(CodeResourceExhausted, message, cause)
}

func TimeoutError(message string, cause error) *AppError {
	return NewAppError(CodeTimeout, message, cause)
}

func TransportError(message string, cause error) *AppError {
	return NewAppError(CodeTransport, message, cause)
}

func ContentError(message string, cause error) *AppError {
	return NewAppError(CodeContent, message, cause)
}

func IsolationUnavailableError(message string, cause error) *AppError {
	return NewAppError(CodeIsolationUnavailable, message, cause)
}

func RasterError(message string, cause error) *AppError {
	return NewAppError(CodeRaster, message, cause)
}

// KindOf returns the taxonomy code of the outermost AppError in err's chain.
// Bare context deadline errors classify as TIMEOUT.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}
	return ""
}

// IsKind reports whether err classifies as code.
func IsKind(err error, code string) bool {
	return KindOf(err) == code
}

// IsRetryable is true for failures a lower resolution may cure.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case CodeResourceExhausted, CodeTimeout, CodeTransport:
		return true
	}
	return false
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

// ToStatus maps a taxonomy error onto a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch KindOf(err) {
	case CodeConfiguration:
		return status.Error(codes.InvalidArgument, err.Error())
	case CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case CodeTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case CodeTransport, CodeResourceExhausted:
		return status.Error(codes.Unavailable, err.Error())
	case CodeRaster, CodeContent:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	return InternalError(err.Error())
}
