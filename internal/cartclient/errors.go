package cartclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("transient")
	ErrRejected     = errors.New("rejected")
)

// StatusError is a non-success answer from the cart service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cart service status %d", e.Code)
	}
	return fmt.Sprintf("cart service status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return classify(e.Code)
}

func classify(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusConflict:
		return ErrConflict
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return ErrTransient
	default:
		return ErrRejected
	}
}
