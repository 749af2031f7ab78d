// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors understood by RespondError.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// KindMapper resolves a module specific error to a status and problem type.
// ok=false leaves the error to the generic mapping.
type KindMapper func(err error) (status int, kind string, ok bool)

// RespondError maps errors to RFC7807 responses. Mappers run first so a module
// can expose its own error taxonomy.
func RespondError(w http.ResponseWriter, err error, mappers ...KindMapper) {
	for _, m := range mappers {
		if status, kind, ok := m(err); ok {
			TypedProblem(w, status, kind, http.StatusText(status), err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
