package jwt

import (
	"errors"
)

// Codec pairs the access and refresh namespaces.
//
// Codec instances are immutable after NewCodec and safe for concurrent use.
type Codec struct {
	access  *Signer
	refresh *Signer
}

// NewCodec builds both namespaces. The two configs must not share a secret.
func NewCodec(access, refresh Config) (*Codec, error) {
	if len(access.Secret) > 0 && string(access.Secret) == string(refresh.Secret) {
		return nil, errors.New("access and refresh secrets must differ")
	}

	a, err := NewSigner(KindAccess, access)
	if err != nil {
		return nil, err
	}
	r, err := NewSigner(KindRefresh, refresh)
	if err != nil {
		return nil, err
	}

	return &Codec{access: a, refresh: r}, nil
}

// SignAccess mints an access token.
func (c *Codec) SignAccess(userID, provider string, opts ...SignOption) (string, error) {
	return c.access.SignAccess(userID, provider, opts...)
}

// VerifyAccess verifies an access token.
func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	return c.access.VerifyAccess(token)
}

// SignRefresh mints a refresh token with a new jti.
func (c *Codec) SignRefresh(userID, provider string, opts ...SignOption) (string, error) {
	return c.refresh.SignRefresh(userID, provider, opts...)
}

// VerifyRefresh verifies a refresh token.
func (c *Codec) VerifyRefresh(token string, opts VerifyOptions) (*RefreshClaims, error) {
	return c.refresh.VerifyRefresh(token, opts)
}
