package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth/jwt"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureExpired
	RotateFailureGateway
	RotateFailureRevoked
	RotateFailureIssue
)

// RotateResult carries either the rotated pair or failure metadata.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	UserID       string
	Provider     string
	JTI          string
	AccessToken  string
	RefreshToken string
}

// RotateGateway is the single gate for rotation.
type RotateGateway interface {
	Refresh(ctx context.Context, jti string) (bool, error)
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	Gateway       RotateGateway
	Issue         IssueDeps
}

// RunRotate verifies the presented refresh token, asks the gateway whether its jti
// may rotate, and signs a new pair for the same identity. Nothing is signed unless
// the gateway answers true.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		failure := RotateFailureDecode
		if errors.Is(err, jwt.ErrTokenExpired) {
			failure = RotateFailureExpired
		}
		return RotateResult{Failure: failure, Err: err}
	}

	result := RotateResult{
		UserID:   claims.UserID,
		Provider: claims.Provider,
		JTI:      claims.JTI(),
	}

	ok, err := deps.Gateway.Refresh(ctx, result.JTI)
	if err != nil {
		result.Failure = RotateFailureGateway
		result.Err = fmt.Errorf("revocation gateway refresh: %w", err)
		return result
	}
	if !ok {
		result.Failure = RotateFailureRevoked
		return result
	}

	issued := RunIssue(claims.UserID, claims.Provider, deps.Issue)
	if issued.Failure != IssueFailureNone {
		result.Failure = RotateFailureIssue
		result.Err = issued.Err
		return result
	}

	result.AccessToken = issued.AccessToken
	result.RefreshToken = issued.RefreshToken
	return result
}
