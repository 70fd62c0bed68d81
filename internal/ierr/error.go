package ierr

import "errors"

type ErrorCode string

const (
	ErrorCodeInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeInvalidPayload       ErrorCode = "INVALID_PAYLOAD"
	ErrorCodeUnknownEvent         ErrorCode = "UNKNOWN_EVENT"
	ErrorCodeNotAuthenticated     ErrorCode = "NOT_AUTHENTICATED"
	ErrorCodeAlreadyAuthenticated ErrorCode = "ALREADY_AUTHENTICATED"
	ErrorCodeUnauthenticated      ErrorCode = "UNAUTHENTICATED"
	ErrorCodeUnknownSubject       ErrorCode = "UNKNOWN_SUBJECT"
	ErrorCodeNotMember            ErrorCode = "NOT_MEMBER"
	ErrorCodePermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrorCodePersistence          ErrorCode = "PERSISTENCE_ERROR"
	ErrorCodeTimeout              ErrorCode = "TIMEOUT"
	ErrorCodeInternal             ErrorCode = "INTERNAL"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	cause error
}

func New(code ErrorCode, cause error) Error {
	return Error{
		Code:    code,
		Message: cause.Error(),
		cause:   cause,
	}
}

func (e Error) Error() string {
	return string(e.Code) + ": " + e.cause.Error()
}

func (e Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the code carried by err, or ErrorCodeInternal when err is not an Error.
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrorCodeInternal
}
