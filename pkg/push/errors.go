package push

import (
	"errors"
	"fmt"
	"net/http"
)

// Input errors are reported to callers of the batch entry points as a false
// result, never as a failure of the call itself.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmptyTarget            = fmt.Errorf("%w: no delivery target", ErrInvalidInput)
	ErrMissingContent         = fmt.Errorf("%w: title and body are required", ErrInvalidInput)
	ErrUnsupportedTokenFormat = fmt.Errorf("%w: unsupported token format, token must be a string or a slice of strings", ErrInvalidInput)
)

// ConfigError is a missing or invalid setting. It is raised before any
// network call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// AuthError wraps a failed credential exchange.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to get access token: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError is a rejected or unreadable gateway response. StatusCode is
// zero when no response was received at all.
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("failed to send FCM message: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to send FCM message: status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("failed to send FCM message: status %d", e.StatusCode)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Unauthorized reports whether the gateway rejected the bearer token.
func (e *GatewayError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// UnexpectedError is anything that fits none of the other kinds.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Kind names an error class for log fields.
type Kind string

const (
	KindNone       Kind = ""
	KindInput      Kind = "input"
	KindConfig     Kind = "config"
	KindAuth       Kind = "auth"
	KindGateway    Kind = "gateway"
	KindUnexpected Kind = "unexpected"
)

// Classify maps err onto the error taxonomy. A gateway 401/403 counts as an
// auth failure.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		cfgErr  *ConfigError
		authErr *AuthError
		gwErr   *GatewayError
	)
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInput
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &gwErr):
		if gwErr.Unauthorized() {
			return KindAuth
		}
		return KindGateway
	default:
		return KindUnexpected
	}
}
