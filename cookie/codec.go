// Package cookie carries refresh tokens in a signed, HttpOnly cookie.
//
// The cookie is the only accepted transport for refresh tokens. Extract never
// looks at the request body, query string or headers other than Cookie, so a
// refresh token leaked into a URL or a log line cannot be replayed.
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

var (
	// ErrMissing is returned when the request carries no refresh cookie.
	ErrMissing = errors.New("missing refresh cookie")
	// ErrInvalid is returned when a refresh cookie is present but its signature does
	// not verify. It wraps ErrMissing.
	ErrInvalid = fmt.Errorf("%w: signature mismatch", ErrMissing)
)

// Config describes the cookie attributes. HttpOnly is always set.
type Config struct {
	Name     string
	Path     string
	Domain   string
	Secret   []byte
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// Codec writes and reads the refresh cookie.
//
// A Codec is immutable after New and safe for concurrent use.
type Codec struct {
	cfg    Config
	signer *securecookie.SecureCookie
}

// New returns a Codec signing values with cfg.Secret.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("cookie secret is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("cookie name is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}

	// Expiry is enforced by the token itself; an expired session must still decode
	// so that logout can recover its jti.
	signer := securecookie.New(cfg.Secret, nil).
		MaxAge(0).
		SetSerializer(securecookie.JSONEncoder{})

	return &Codec{cfg: cfg, signer: signer}, nil
}

// Attach writes the signed refresh cookie to w.
func (c *Codec) Attach(w http.ResponseWriter, refreshToken string) error {
	encoded, err := c.signer.Encode(c.cfg.Name, refreshToken)
	if err != nil {
		return fmt.Errorf("encode refresh cookie: %w", err)
	}

	cookie := c.base()
	cookie.Value = encoded
	cookie.MaxAge = int(c.cfg.MaxAge / time.Second)
	if c.cfg.MaxAge > 0 {
		cookie.Expires = time.Now().Add(c.cfg.MaxAge).UTC()
	}
	http.SetCookie(w, cookie)
	return nil
}

// Extract returns the refresh token carried by the request cookie. Only the
// cookie is consulted.
func (c *Codec) Extract(r *http.Request) (string, error) {
	raw, err := r.Cookie(c.cfg.Name)
	if err != nil || raw.Value == "" {
		return "", ErrMissing
	}

	var token string
	if err := c.signer.Decode(c.cfg.Name, raw.Value, &token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if token == "" {
		return "", ErrInvalid
	}
	return token, nil
}

// Clear expires the refresh cookie immediately.
func (c *Codec) Clear(w http.ResponseWriter) {
	cookie := c.base()
	cookie.Value = ""
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, cookie)
}

func (c *Codec) base() *http.Cookie {
	return &http.Cookie{
		Name:     c.cfg.Name,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		Secure:   c.cfg.Secure,
		HttpOnly: true,
		SameSite: c.cfg.SameSite,
	}
}
