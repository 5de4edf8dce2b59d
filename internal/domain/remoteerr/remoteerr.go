package remoteerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindTransient covers timeouts, connectivity loss, 5xx and auth hiccups. Retried.
	KindTransient Kind = iota
	// KindValidation covers bad input the server will keep rejecting. Not retried.
	KindValidation
	// KindConflict means the server already holds the requested state.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

var (
	ErrTransient  = errors.New("transient remote error")
	ErrValidation = errors.New("remote rejected request")
	ErrConflict   = errors.New("remote state conflict")
)

// Error carries the remote status alongside a classified kind.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// FromStatus classifies an HTTP response status. 2xx returns nil.
func FromStatus(code int, message string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	kind := KindTransient
	switch {
	case code == http.StatusConflict:
		kind = KindConflict
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		kind = KindTransient
	case code >= 400 && code < 500:
		kind = KindValidation
	}
	return &Error{Kind: kind, StatusCode: code, Message: message}
}

// Network wraps a transport failure as transient.
func Network(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// IsPermanent reports whether err must not be retried automatically.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation)
}
