package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth/cookie"
	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/jwt"
	"go.uber.org/zap"
)

// AccessTokenHeader carries the new access token after a transparent rotation.
const AccessTokenHeader = "X-Access-Token"

var errGateway = errors.New("revocation gateway unavailable")

// Engine issues, verifies, rotates and revokes token pairs.
//
// The engine holds no cross-request state. All durability lives in the
// RevocationGateway, and no lock is held across gateway or provider calls.
// Engine methods are safe for concurrent use after Builder.Build.
type Engine struct {
	config   Config
	codec    *jwt.Codec
	cookies  *cookie.Codec
	provider IdentityProvider
	gateway  RevocationGateway
	throttle LoginThrottle
	flows    flows.Service
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *zap.Logger
}

func (e *Engine) buildFlowService() flows.Service {
	issue := flows.IssueDeps{
		SignAccess: func(userID, provider string) (string, error) {
			return e.codec.SignAccess(userID, provider)
		},
		SignRefresh: func(userID, provider string) (string, error) {
			return e.codec.SignRefresh(userID, provider)
		},
	}

	var observe func(time.Duration)
	if e.metrics.LatencyEnabled() {
		observe = func(d time.Duration) { e.metrics.Observe(MetricVerifyLatency, d) }
	}

	return flows.New(flows.Deps{
		Issue: issue,
		Rotate: flows.RotateDeps{
			VerifyRefresh: func(token string) (*jwt.RefreshClaims, error) {
				return e.codec.VerifyRefresh(token, jwt.VerifyOptions{})
			},
			Gateway: e.gateway,
			Issue:   issue,
		},
		Revoke: flows.RevokeDeps{
			DecodeRefresh: func(token string) (*jwt.RefreshClaims, error) {
				return e.codec.VerifyRefresh(token, jwt.VerifyOptions{AllowExpired: true})
			},
			Gateway: e.gateway,
		},
		Verify: flows.VerifyDeps{
			VerifyAccess: e.codec.VerifyAccess,
			Now:          time.Now,
			Observe:      observe,
		},
	})
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AutoRefreshEnabled resolves a route policy against Config.AutoRefresh.
func (e *Engine) AutoRefreshEnabled(policy RefreshPolicy) bool {
	switch policy {
	case RefreshEnabled:
		return true
	case RefreshDisabled:
		return false
	default:
		return e.config.AutoRefresh
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized() && e.cookies != nil
}

// Issue signs a fresh pair for identity and attaches the refresh cookie to w.
func (e *Engine) Issue(ctx context.Context, w http.ResponseWriter, identity Identity) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if identity.ID == "" {
		return TokenPair{}, e.issueFailure(ctx, identity, errors.New("identity has no id"))
	}

	res := e.flows.Issue(identity.ID, identity.Provider)
	if res.Failure != flows.IssueFailureNone {
		return TokenPair{}, e.issueFailure(ctx, identity, res.Err)
	}
	if err := e.cookies.Attach(w, res.RefreshToken); err != nil {
		return TokenPair{}, e.issueFailure(ctx, identity, err)
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventIssueSuccess, true, sessionTarget(identity, ""), nil)

	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func (e *Engine) issueFailure(ctx context.Context, identity Identity, cause error) error {
	e.metricInc(MetricIssueFailure)
	e.logger.Error("token issuance failed", zap.String("user_id", identity.ID), zap.Error(cause))
	e.emitAudit(ctx, auditEventIssueFailure, false, sessionTarget(identity, ""), cause)
	return &AuthError{
		Status:  http.StatusInternalServerError,
		Message: MessageInternalServerError,
		Err:     cause,
	}
}

// SignUp creates an identity through the IdentityProvider and issues its first pair.
// Any provider error becomes 400 "Could not create user".
func (e *Engine) SignUp(ctx context.Context, w http.ResponseWriter, creds Credentials) (TokenPair, Identity, error) {
	if !e.ready() || e.provider == nil {
		return TokenPair{}, Identity{}, ErrEngineNotReady
	}

	identity, err := e.provider.SignUp(ctx, creds)
	if err == nil && identity.ID == "" {
		err = errors.New("identity provider returned an empty id")
	}
	if err != nil {
		e.metricInc(MetricSignUpFailure)
		e.logger.Warn("signup rejected by identity provider", zap.Error(err))
		authErr := &AuthError{
			Kind:    ErrIdentityRejected,
			Status:  http.StatusBadRequest,
			Message: MessageSignUpFailed,
			Err:     err,
		}
		e.emitAudit(ctx, auditEventSignUpFailure, false, auditTarget{}, authErr)
		return TokenPair{}, Identity{}, authErr
	}

	pair, err := e.Issue(ctx, w, identity)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	return pair, identity, nil
}

// Login resolves credentials through the IdentityProvider and issues a pair.
// A provider error becomes 401 "Request unauthorized." and a missing identity
// becomes 404 "User not found". With a LoginThrottle configured, an exhausted
// budget becomes 429 before the provider is called.
func (e *Engine) Login(ctx context.Context, w http.ResponseWriter, creds Credentials) (TokenPair, Identity, error) {
	if !e.ready() || e.provider == nil {
		return TokenPair{}, Identity{}, ErrEngineNotReady
	}

	if err := e.checkLoginThrottle(ctx, creds); err != nil {
		return TokenPair{}, Identity{}, err
	}

	identity, err := e.provider.Login(ctx, creds)
	if err == nil && identity != nil && identity.ID == "" {
		err = errors.New("identity provider returned an empty id")
	}
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.logger.Warn("login rejected by identity provider", zap.Error(err))
		e.recordLoginFailure(ctx, creds)
		authErr := unauthorized(ErrIdentityRejected, MessageLoginFailed, err)
		e.emitAudit(ctx, auditEventLoginFailure, false, auditTarget{}, authErr)
		return TokenPair{}, Identity{}, authErr
	}
	if identity == nil {
		e.metricInc(MetricLoginNotFound)
		e.recordLoginFailure(ctx, creds)
		authErr := &AuthError{
			Kind:    ErrUserNotFound,
			Status:  http.StatusNotFound,
			Message: MessageUserNotFound,
		}
		e.emitAudit(ctx, auditEventLoginNotFound, false, auditTarget{}, authErr)
		return TokenPair{}, Identity{}, authErr
	}

	pair, err := e.Issue(ctx, w, *identity)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}

	if e.throttle != nil {
		if err := e.throttle.Reset(ctx, creds.Email, clientIPFromContext(ctx)); err != nil {
			e.logger.Warn("failed to reset login throttle", zap.Error(err))
		}
	}
	return pair, *identity, nil
}

func (e *Engine) checkLoginThrottle(ctx context.Context, creds Credentials) error {
	if e.throttle == nil {
		return nil
	}

	allowed, err := e.throttle.Allow(ctx, creds.Email, clientIPFromContext(ctx))
	if err != nil {
		e.logger.Error("login throttle unavailable", zap.Error(err))
		return &AuthError{
			Status:  http.StatusInternalServerError,
			Message: MessageInternalServerError,
			Err:     fmt.Errorf("login throttle: %w", err),
		}
	}
	if allowed {
		return nil
	}

	e.metricInc(MetricLoginThrottled)
	authErr := &AuthError{
		Kind:    ErrLoginThrottled,
		Status:  http.StatusTooManyRequests,
		Message: MessageLoginThrottled,
	}
	e.emitAudit(ctx, auditEventLoginThrottled, false, auditTarget{}, authErr)
	return authErr
}

func (e *Engine) recordLoginFailure(ctx context.Context, creds Credentials) {
	if e.throttle == nil {
		return
	}
	if err := e.throttle.Failure(ctx, creds.Email, clientIPFromContext(ctx)); err != nil {
		e.logger.Warn("failed to record login failure", zap.Error(err))
	}
}

// Rotate exchanges the refresh cookie on r for a brand-new pair.
//
// The new pair is only signed after the RevocationGateway accepts the presented
// jti. On any failure no cookie is written and the error is a 401 *AuthError.
func (e *Engine) Rotate(w http.ResponseWriter, r *http.Request) (TokenPair, Identity, error) {
	if !e.ready() {
		return TokenPair{}, Identity{}, ErrEngineNotReady
	}

	ctx := r.Context()
	pair, identity, jti, err := e.rotate(w, r)
	if err != nil {
		e.emitAudit(ctx, rotateFailureEvent(err), false, sessionTarget(identity, jti), err)
		return TokenPair{}, Identity{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sessionTarget(identity, jti), nil)
	return pair, identity, nil
}

// AutoRefresh is Rotate for the middleware. On success it also sets
// AccessTokenHeader on w so the client can adopt the new access token.
func (e *Engine) AutoRefresh(w http.ResponseWriter, r *http.Request) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	ctx := r.Context()
	pair, identity, jti, err := e.rotate(w, r)
	if err != nil {
		e.metricInc(MetricAutoRefreshFailure)
		e.emitAudit(ctx, auditEventAutoRefreshFailure, false, sessionTarget(identity, jti), err)
		return Identity{}, err
	}

	w.Header().Set(AccessTokenHeader, pair.AccessToken)

	e.metricInc(MetricAutoRefreshSuccess)
	e.emitAudit(ctx, auditEventAutoRefreshSuccess, true, sessionTarget(identity, jti), nil)
	return identity, nil
}

func (e *Engine) rotate(w http.ResponseWriter, r *http.Request) (TokenPair, Identity, string, error) {
	token, err := e.cookies.Extract(r)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, Identity{}, "", unauthorized(ErrMissingRefreshCookie, MessageInvalidRefresh, err)
	}

	res := e.flows.Rotate(r.Context(), token)
	identity := Identity{ID: res.UserID, Provider: res.Provider}

	switch res.Failure {
	case flows.RotateFailureNone:
	case flows.RotateFailureDecode:
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, identity, res.JTI, unauthorized(ErrInvalidToken, MessageInvalidRefresh, res.Err)
	case flows.RotateFailureExpired:
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, identity, res.JTI, unauthorized(ErrExpiredToken, MessageInvalidRefresh, res.Err)
	case flows.RotateFailureRevoked:
		e.metricInc(MetricRefreshRevoked)
		return TokenPair{}, identity, res.JTI, unauthorized(ErrRefreshRevoked, MessageInvalidRefresh, nil)
	case flows.RotateFailureGateway:
		e.metricInc(MetricGatewayError)
		e.logger.Error("revocation gateway refresh failed", zap.String("jti", res.JTI), zap.Error(res.Err))
		return TokenPair{}, identity, res.JTI, unauthorized(ErrRefreshRevoked, MessageInvalidRefresh, fmt.Errorf("%w: %w", errGateway, res.Err))
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("token rotation signing failed", zap.String("jti", res.JTI), zap.Error(res.Err))
		return TokenPair{}, identity, res.JTI, unauthorized(nil, MessageInvalidRefresh, res.Err)
	}

	if err := e.cookies.Attach(w, res.RefreshToken); err != nil {
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh cookie encoding failed", zap.String("jti", res.JTI), zap.Error(err))
		return TokenPair{}, identity, res.JTI, unauthorized(nil, MessageInvalidRefresh, err)
	}

	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, identity, res.JTI, nil
}

func rotateFailureEvent(err error) string {
	if errors.Is(err, ErrRefreshRevoked) {
		return auditEventRefreshRevoked
	}
	return auditEventRefreshInvalid
}

// Revoke logs the session on r out.
//
// Without a refresh cookie it is a successful no-op. An authentic cookie is
// decoded tolerating expiry and its jti is reported to RevocationGateway.Logout
// exactly once. A cookie that fails signature or token verification is cleared
// without consulting the gateway. The cookie is always cleared when present.
func (e *Engine) Revoke(w http.ResponseWriter, r *http.Request) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	ctx := r.Context()
	e.metricInc(MetricLogout)

	token, err := e.cookies.Extract(r)
	if err != nil {
		if errors.Is(err, cookie.ErrInvalid) {
			e.cookies.Clear(w)
		}
		return nil
	}

	res := e.flows.Revoke(ctx, token)
	e.cookies.Clear(w)

	switch res.Failure {
	case flows.RevokeFailureNone:
		e.emitAudit(ctx, auditEventLogout, true, auditTarget{userID: res.UserID, jti: res.JTI}, nil)
		return nil
	case flows.RevokeFailureDecode:
		e.emitAudit(ctx, auditEventLogout, false, auditTarget{}, unauthorized(ErrInvalidToken, MessageInvalidRefresh, res.Err))
		return nil
	default:
		e.metricInc(MetricGatewayError)
		e.logger.Error("revocation gateway logout failed", zap.String("jti", res.JTI), zap.Error(res.Err))
		authErr := &AuthError{
			Status:  http.StatusInternalServerError,
			Message: MessageInternalServerError,
			Err:     fmt.Errorf("%w: %w", errGateway, res.Err),
		}
		e.emitAudit(ctx, auditEventLogout, false, auditTarget{userID: res.UserID, jti: res.JTI}, authErr)
		return authErr
	}
}

// VerifyAccess checks an access token locally. It never calls the gateway or the
// provider. Failures are 401 *AuthError values with the message "Invalid access token".
func (e *Engine) VerifyAccess(ctx context.Context, token string) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	res := e.flows.Verify(token)
	if res.Failure != flows.VerifyFailureNone {
		kind := ErrInvalidToken
		if res.Failure == flows.VerifyFailureExpired {
			kind = ErrExpiredToken
		}
		authErr := unauthorized(kind, MessageInvalidAccessToken, res.Err)
		e.metricInc(MetricAccessRejected)
		e.emitAudit(ctx, auditEventAccessRejected, false, auditTarget{}, authErr)
		return Identity{}, authErr
	}

	return Identity{ID: res.Claims.UserID, Provider: res.Claims.Provider}, nil
}
