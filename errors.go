package tokenauth

import (
	"errors"
	"net/http"
)

var (
	// ErrConfig is returned by Config.Validate and Builder.Build. It is never a per-request condition.
	ErrConfig = errors.New("invalid configuration")
	// ErrMissingBearer is returned when the Authorization header does not carry a Bearer token.
	ErrMissingBearer = errors.New("missing bearer authorization")
	// ErrInvalidToken is returned for tokens with a bad signature, wrong namespace or malformed body.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for authentic tokens past their exp.
	ErrExpiredToken = errors.New("expired token")
	// ErrMissingRefreshCookie is returned when the refresh cookie is absent or its signature fails.
	ErrMissingRefreshCookie = errors.New("missing refresh cookie")
	// ErrRefreshRevoked is returned when the revocation gateway refuses a jti.
	ErrRefreshRevoked = errors.New("refresh token revoked or reused")
	// ErrIdentityRejected is returned when the identity provider fails a signup or login.
	ErrIdentityRejected = errors.New("identity rejected")
	// ErrUserNotFound is returned when the identity provider resolves no identity for a login.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginThrottled is returned when the login throttle refuses an attempt.
	ErrLoginThrottled = errors.New("login throttled")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Public messages carried by AuthError. They never contain internal causes.
const (
	MessageMissingBearer       = "Must include a Bearer authorization."
	MessageInvalidAccessToken  = "Invalid access token"
	MessageInvalidRefresh      = "Invalid refresh token"
	MessageSignUpFailed        = "Could not create user"
	MessageLoginFailed         = "Request unauthorized."
	MessageUserNotFound        = "User not found"
	MessageLoginThrottled      = "Too many login attempts. Please try again later."
	MessageInternalServerError = "Internal Server Error"
)

// AuthError is the terminal, client-facing outcome of a failed authentication step.
//
// Error returns only the fixed public Message. errors.Is matches both Kind and the
// wrapped cause, so callers can branch on the taxonomy while logs keep the cause.
type AuthError struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *AuthError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ConfigError reports an invalid Config. Startup must abort when one is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "tokenauth: invalid config: " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func unauthorized(kind error, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Status: http.StatusUnauthorized, Message: message, Err: cause}
}

// StatusOf maps err to the HTTP status it should produce. Errors that are not an
// *AuthError map to 500.
func StatusOf(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Status != 0 {
		return authErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the public message for err, hiding anything that is not an *AuthError.
func MessageOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return MessageInternalServerError
}

// MissingBearerError is the terminal rejection for a request without
// "Authorization: Bearer <token>".
func MissingBearerError() *AuthError {
	return unauthorized(ErrMissingBearer, MessageMissingBearer, nil)
}
