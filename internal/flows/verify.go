package flows

import (
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/jwt"
)

// VerifyFailureKind classifies access verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureInvalid
	VerifyFailureExpired
)

// VerifyResult returns either the access claims or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// VerifyDeps captures access verification dependencies. Observe may be nil.
type VerifyDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
	Now          func() time.Time
	Observe      func(time.Duration)
}

// RunVerify checks an access token locally. It performs no I/O.
func RunVerify(accessToken string, deps VerifyDeps) VerifyResult {
	var start time.Time
	if deps.Observe != nil {
		start = deps.Now()
		defer func() { deps.Observe(deps.Now().Sub(start)) }()
	}

	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{Failure: VerifyFailureExpired, Err: err}
		}
		return VerifyResult{Failure: VerifyFailureInvalid, Err: err}
	}

	return VerifyResult{Claims: claims}
}
