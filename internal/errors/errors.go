// Package errors provides unified error handling with a structured ErrorCode.
// Codes travel over gRPC as errdetails.ErrorInfo reasons and over HTTP as the
// "code" field of error responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain identifies this service in ErrorInfo details.
const ErrorDomain = "diagnostics.tradein"

// ErrorCode classifies application errors.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeInternal            ErrorCode = "INTERNAL"
	CodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeNotImplemented      ErrorCode = "NOT_IMPLEMENTED"
	CodeUnavailable         ErrorCode = "UNAVAILABLE"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeCancelled           ErrorCode = "CANCELLED"
	CodeHardwareUnavailable ErrorCode = "HARDWARE_UNAVAILABLE"
	CodeSamplingFailed      ErrorCode = "SAMPLING_FAILED"
	CodeBatteryError        ErrorCode = "BATTERY_ERROR"
	CodeDeviceInfoError     ErrorCode = "DEVICE_INFO_ERROR"
	CodeADBFailed           ErrorCode = "ADB_FAILED"
	CodeCommandFailed       ErrorCode = "COMMAND_FAILED"
	CodeConfigInvalid       ErrorCode = "CONFIG_INVALID"
)

func (c ErrorCode) String() string { return string(c) }

// grpcCodeMap maps ErrorCode to gRPC status codes.
var grpcCodeMap = map[ErrorCode]codes.Code{
	CodeUnknown:             codes.Unknown,
	CodeInternal:            codes.Internal,
	CodeInvalidArgument:     codes.InvalidArgument,
	CodeNotFound:            codes.NotFound,
	CodeNotImplemented:      codes.Unimplemented,
	CodeUnavailable:         codes.Unavailable,
	CodeTimeout:             codes.DeadlineExceeded,
	CodeCancelled:           codes.Canceled,
	CodeHardwareUnavailable: codes.Unavailable,
	CodeSamplingFailed:      codes.Internal,
	CodeBatteryError:        codes.Internal,
	CodeDeviceInfoError:     codes.Internal,
	CodeADBFailed:           codes.Unavailable,
	CodeCommandFailed:       codes.FailedPrecondition,
	CodeConfigInvalid:       codes.InvalidArgument,
}

// httpStatusMap maps ErrorCode to HTTP status codes.
var httpStatusMap = map[ErrorCode]int{
	CodeInvalidArgument:     http.StatusBadRequest,
	CodeConfigInvalid:       http.StatusBadRequest,
	CodeNotFound:            http.StatusNotFound,
	CodeNotImplemented:      http.StatusNotImplemented,
	CodeUnavailable:         http.StatusServiceUnavailable,
	CodeHardwareUnavailable: http.StatusServiceUnavailable,
	CodeADBFailed:           http.StatusBadGateway,
	CodeCommandFailed:       http.StatusBadGateway,
	CodeTimeout:             http.StatusGatewayTimeout,
	CodeCancelled:           499,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     ErrorCode
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the corresponding HTTP status code.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusMap[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ToProto converts to an ErrorInfo detail message.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: ErrorDomain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	if withDetails, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return &AppError{
				Code:     ErrorCode(info.GetReason()),
				Message:  st.Message(),
				Metadata: info.GetMetadata(),
			}
		}
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message()}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) ErrorCode {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unimplemented:
		return CodeNotImplemented
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in the chain, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeADBFailed:
		return true
	default:
		return false
	}
}

// Is and As re-export the standard library helpers so callers importing this
// package under the name "errors" keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
