package app

import (
	"errors"
	"fmt"
	"net/http"

	"sitecms/internal/docstore"
)

// DomainError carries the HTTP status and client-facing message for a
// failed request. Err, when set, is the underlying cause.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// storeError reports a backing store failure as a 500 whose message is the
// store's own error text.
func storeError(fallback string, err error) *DomainError {
	code := "STORE_ERROR"
	if errors.Is(err, docstore.ErrConflict) {
		code = "CONFLICT"
	}
	message := err.Error()
	if message == "" {
		message = fallback
	}
	domainErr := domainError(http.StatusInternalServerError, code, message, nil)
	domainErr.Err = err
	return domainErr
}
