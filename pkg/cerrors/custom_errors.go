package cerrors

import (
	"encoding/json"
	"fmt"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	// ErrorTypeNonUserFriendly is the fallback for errors raised outside this package
	ErrorTypeNonUserFriendly ErrorType = "NON_USER_FRIENDLY_ERROR"
	// ErrorTypeGeneric is used for generic operational failures
	ErrorTypeGeneric ErrorType = "GENERIC_ERROR"
	// ErrorTypeInvalidArgument marks bad identifiers or cron syntax, never retried
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"
	// ErrorTypeExecutionError marks a cluster command that failed after exhausting retries
	ErrorTypeExecutionError ErrorType = "EXECUTION_ERROR"
	// ErrorTypeExecutionTimeout marks a single command attempt that exceeded its time budget
	ErrorTypeExecutionTimeout ErrorType = "EXECUTION_TIMEOUT"
	// ErrorTypeWaitTimeout marks a polling wait whose condition never held
	ErrorTypeWaitTimeout ErrorType = "WAIT_TIMEOUT"
	// ErrorTypeNotFound marks a missing cluster resource
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
)

// Error is the structured error carried across the orchestrator boundaries
type Error struct {
	ErrorCode ErrorType `json:"errorCode"`
	Phase     string    `json:"phase,omitempty"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason"`
}

func (e Error) Error() string {
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("[%s]: %s", e.ErrorCode, e.Reason)
	}
	return string(out)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to the caller
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// IsType reports whether the root cause of err carries the given error code
func IsType(err error, code ErrorType) bool {
	if err == nil {
		return false
	}
	return GetErrorType(stacktrace.RootCause(err)) == code
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}
