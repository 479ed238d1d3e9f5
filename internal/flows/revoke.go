package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tokenauth/jwt"
)

// RevokeFailureKind classifies logout failures.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureDecode
	RevokeFailureGateway
)

type RevokeResult struct {
	Failure RevokeFailureKind
	Err     error
	UserID  string
	JTI     string
}

// RevokeGateway records logouts.
type RevokeGateway interface {
	Logout(ctx context.Context, jti string) error
}

// RevokeDeps captures logout dependencies. DecodeRefresh must tolerate expiry so
// that a stale session still yields its jti.
type RevokeDeps struct {
	DecodeRefresh func(string) (*jwt.RefreshClaims, error)
	Gateway       RevokeGateway
}

// RunRevoke decodes the refresh token and reports its jti to the gateway exactly once.
func RunRevoke(ctx context.Context, refreshToken string, deps RevokeDeps) RevokeResult {
	claims, err := deps.DecodeRefresh(refreshToken)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureDecode, Err: err}
	}

	result := RevokeResult{UserID: claims.UserID, JTI: claims.JTI()}
	if err := deps.Gateway.Logout(ctx, result.JTI); err != nil {
		result.Failure = RevokeFailureGateway
		result.Err = fmt.Errorf("revocation gateway logout: %w", err)
	}
	return result
}
