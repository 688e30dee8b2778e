package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error for transport mapping and logging.
type Kind int

const (
	KindInternal Kind = iota
	// KindConfiguration signals missing or invalid runtime configuration.
	// Fatal: the process should not serve tenant traffic in this state.
	KindConfiguration
	KindForbidden
	KindAlreadySimulating
	KindInvalidState
	KindNotFound
	KindBadRequest
)

// Error is a typed application error carrying a localized message key.
// Params are interpolated into the translated message in order.
type Error struct {
	Kind       Kind
	MessageKey string
	Params     []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.MessageKey + ": " + e.Err.Error()
	}
	return e.MessageKey
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a message key and optional params.
func New(kind Kind, messageKey string, params ...string) *Error {
	return &Error{Kind: kind, MessageKey: messageKey, Params: params}
}

// Wrap attaches an underlying cause to a typed error.
func Wrap(err error, kind Kind, messageKey string, params ...string) *Error {
	return &Error{Kind: kind, MessageKey: messageKey, Params: params, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageKeyOf returns the message key for err, or the generic internal key.
func MessageKeyOf(err error) (key string, params []string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.MessageKey, appErr.Params
	}
	return "errors.internal", nil
}

// HTTPStatus maps an error kind to its transport status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindAlreadySimulating, KindInvalidState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
