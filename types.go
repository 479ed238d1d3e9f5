package tokenauth

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"go.uber.org/zap"
)

// Identity is the subject embedded in both token kinds. The engine treats it as
// opaque beyond its two fields.
type Identity struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Credentials is the signup/login payload handed to an IdentityProvider.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is produced by issuance and rotation. Both tokens are always minted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IdentityProvider resolves credentials to an identity. Implementations own the
// user store and any password hashing.
//
// Login returns (nil, nil) when no identity matches the credentials. Any returned
// error is mapped to a fixed public message and never shown to clients.
type IdentityProvider interface {
	SignUp(ctx context.Context, creds Credentials) (Identity, error)
	Login(ctx context.Context, creds Credentials) (*Identity, error)
}

// RevocationGateway is the authority on refresh-token validity.
//
// Refresh is the sole gate for rotation and must be checked atomically against
// revocation and reuse. Implementations must be safe for concurrent use, possibly
// from multiple processes.
type RevocationGateway interface {
	Refresh(ctx context.Context, jti string) (bool, error)
	Logout(ctx context.Context, jti string) error
}

// ProviderFuncs adapts plain functions to IdentityProvider.
type ProviderFuncs struct {
	SignUpFunc func(ctx context.Context, creds Credentials) (Identity, error)
	LoginFunc  func(ctx context.Context, creds Credentials) (*Identity, error)
}

func (p ProviderFuncs) SignUp(ctx context.Context, creds Credentials) (Identity, error) {
	if p.SignUpFunc == nil {
		return Identity{}, ErrIdentityRejected
	}
	return p.SignUpFunc(ctx, creds)
}

func (p ProviderFuncs) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	if p.LoginFunc == nil {
		return nil, ErrIdentityRejected
	}
	return p.LoginFunc(ctx, creds)
}

// GatewayFuncs adapts plain functions to RevocationGateway. A nil RefreshFunc
// refuses every rotation and a nil LogoutFunc is a no-op.
type GatewayFuncs struct {
	RefreshFunc func(ctx context.Context, jti string) (bool, error)
	LogoutFunc  func(ctx context.Context, jti string) error
}

func (g GatewayFuncs) Refresh(ctx context.Context, jti string) (bool, error) {
	if g.RefreshFunc == nil {
		return false, nil
	}
	return g.RefreshFunc(ctx, jti)
}

func (g GatewayFuncs) Logout(ctx context.Context, jti string) error {
	if g.LogoutFunc == nil {
		return nil
	}
	return g.LogoutFunc(ctx, jti)
}

// LoginThrottle budgets failed logins per identifier and client IP. Allow is
// consulted before the IdentityProvider; Failure records a rejected or unknown
// login and Reset clears the budget after a successful one.
type LoginThrottle interface {
	Allow(ctx context.Context, identifier, ip string) (bool, error)
	Failure(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier, ip string) error
}

// RefreshPolicy overrides the engine auto-refresh setting for a single route.
type RefreshPolicy int

const (
	// RefreshInherit uses Config.AutoRefresh.
	RefreshInherit RefreshPolicy = iota
	// RefreshDisabled rejects expired access tokens without consulting the refresh cookie.
	RefreshDisabled
	// RefreshEnabled rotates the refresh cookie when the access token fails verification.
	RefreshEnabled
)

// AuditEvent is an alias of the internal audit event model.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events on a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = internalaudit.SinkFunc

// ZapSink logs audit events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewZapSink returns a sink logging each event on logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
