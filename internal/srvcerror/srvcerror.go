// Package srvcerror carries service level errors with a user facing
// message, a stable error code and an HTTP status, keeping debug
// detail out of responses.
package srvcerror

import "net/http"

type Error struct {
	errorCode string
	msgToUser string // public
	dbgErr    error  // private, for logs only

	httpStatus int
}

func (e *Error) Error() string {
	return e.msgToUser
}

func (e *Error) ErrorCode() string {
	return e.errorCode
}

func (e *Error) DebugInfo() error {
	return e.dbgErr
}

func (e *Error) SetDebug(err error) *Error {
	e.dbgErr = err
	return e
}

func (e *Error) Unwrap() error {
	return e.dbgErr
}

func (e *Error) HttpStatusCode() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) SetHttpStatusCode(code int) *Error {
	e.httpStatus = code
	return e
}

func New(errorCode string, msgToUser string) *Error {
	return &Error{
		errorCode: errorCode,
		msgToUser: msgToUser,
	}
}

const (
	ErrCodeInternalServerError = "internal_server_error"
	ErrCodeInvalidToken        = "invalid_token"
	ErrCodeInvalidIdentity     = "invalid_exercise_identity"
	ErrCodeExerciseNotFound    = "exercise_not_found"
	ErrCodeExerciseExists      = "exercise_already_exists"
	ErrCodeInvalidBundle       = "invalid_exercise_bundle"
	ErrCodeResultNotFound      = "result_not_found"
	ErrCodeQueueUnavailable    = "queue_unavailable"
	ErrCodeBadRequest          = "bad_request"
)

func ErrInternalSE() *Error {
	return New(
		ErrCodeInternalServerError,
		"internal server error",
	).SetHttpStatusCode(http.StatusInternalServerError)
}

func ErrInvalidToken() *Error {
	return New(
		ErrCodeInvalidToken,
		"shared token does not match",
	).SetHttpStatusCode(http.StatusUnauthorized)
}

func ErrInvalidIdentity(reason string) *Error {
	return New(
		ErrCodeInvalidIdentity,
		"invalid exercise identity: "+reason,
	).SetHttpStatusCode(http.StatusBadRequest)
}

func ErrExerciseNotFound() *Error {
	return New(
		ErrCodeExerciseNotFound,
		"exercise definition is not installed",
	).SetHttpStatusCode(http.StatusNotFound)
}

func ErrExerciseExists() *Error {
	return New(
		ErrCodeExerciseExists,
		"exercise definition already exists and is immutable",
	).SetHttpStatusCode(http.StatusConflict)
}

func ErrInvalidBundle(reason string) *Error {
	return New(
		ErrCodeInvalidBundle,
		"exercise bundle rejected: "+reason,
	).SetHttpStatusCode(http.StatusBadRequest)
}

func ErrResultNotFound() *Error {
	return New(
		ErrCodeResultNotFound,
		"no result stored for this submission",
	).SetHttpStatusCode(http.StatusNotFound)
}

func ErrQueueUnavailable() *Error {
	return New(
		ErrCodeQueueUnavailable,
		"submission queue is unavailable, retry later",
	).SetHttpStatusCode(http.StatusServiceUnavailable)
}

func ErrBadRequest(reason string) *Error {
	return New(
		ErrCodeBadRequest,
		reason,
	).SetHttpStatusCode(http.StatusBadRequest)
}
