package tokenauth

import (
	"context"
	"errors"
)

const (
	auditEventIssueSuccess       = "issue_success"
	auditEventIssueFailure       = "issue_failure"
	auditEventSignUpFailure      = "signup_failure"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginNotFound      = "login_not_found"
	auditEventLoginThrottled     = "login_throttled"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRevoked     = "refresh_revoked"
	auditEventAutoRefreshSuccess = "auto_refresh_success"
	auditEventAutoRefreshFailure = "auto_refresh_failure"
	auditEventLogout             = "logout"
	auditEventAccessRejected     = "access_rejected"
)

// AuditErrorCode is the stable, non-leaking error code recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken   AuditErrorCode = "invalid_token"
	auditErrExpiredToken   AuditErrorCode = "expired_token"
	auditErrMissingCookie  AuditErrorCode = "missing_refresh_cookie"
	auditErrRefreshRevoked AuditErrorCode = "refresh_revoked"
	auditErrIdentity       AuditErrorCode = "identity_rejected"
	auditErrUserNotFound   AuditErrorCode = "user_not_found"
	auditErrLoginThrottled AuditErrorCode = "login_throttled"
	auditErrGatewayFailure AuditErrorCode = "gateway_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
	auditErrMissingBearer  AuditErrorCode = "missing_bearer"
)

// auditTarget names who an audit event concerns and which refresh jti it acted on.
type auditTarget struct {
	userID   string
	provider string
	jti      string
}

func sessionTarget(identity Identity, jti string) auditTarget {
	return auditTarget{userID: identity.ID, provider: identity.Provider, jti: jti}
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, target auditTarget, err error) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Type:      eventType,
		UserID:    target.userID,
		Provider:  target.provider,
		JTI:       target.jti,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Code:      string(auditErrorCode(err)),
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errGateway):
		return auditErrGatewayFailure
	case errors.Is(err, ErrRefreshRevoked):
		return auditErrRefreshRevoked
	case errors.Is(err, ErrMissingRefreshCookie):
		return auditErrMissingCookie
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrLoginThrottled):
		return auditErrLoginThrottled
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrIdentityRejected):
		return auditErrIdentity
	case errors.Is(err, ErrMissingBearer):
		return auditErrMissingBearer
	default:
		return auditErrInternal
	}
}
