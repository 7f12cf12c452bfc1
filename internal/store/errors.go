package store

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// ErrNotFound matches any *Error with CodeNotFound under errors.Is.
var ErrNotFound = errors.New("not found")

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}

func notFound(kind, id string) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

func invalid(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf maps an error to an HTTP status. Errors not raised by the store map to 500.
func StatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return statusForCode(se.Code)
	}
	return http.StatusInternalServerError
}
