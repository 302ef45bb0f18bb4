package exercise

import "fmt"

// ValidationError reports a malformed or unsupported definition. It is
// terminal: a definition failing validation is rejected at upload and
// never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
