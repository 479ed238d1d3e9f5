package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names a supported JWT signing algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over the configured secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384 over the configured secret.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512 over the configured secret.
	MethodHS512 SigningMethod = "hs512"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind identifies the signing namespace of a token.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, wrong namespaces and malformed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for authentic tokens whose exp has passed.
	ErrTokenExpired = errors.New("token expired")
)

const typHeaderSuffix = "+jwt"

// Config configures one signing namespace.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// Secret is the HMAC key for the hs* methods.
	Secret []byte
	// PrivateKey and PublicKey are used by MethodEd25519 (raw or PEM).
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// Now overrides the clock used for iat/exp and verification.
	Now func() time.Time
}

// AccessClaims are carried by access tokens. They are only time-bounded and have no
// jti. Nonce makes every minted token distinct; nothing is ever looked up by it.
type AccessClaims struct {
	UserID   string `json:"id"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. RegisteredClaims.ID holds the jti.
type RefreshClaims struct {
	UserID   string `json:"id"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// JTI returns the unique identifier of the refresh token.
func (c *RefreshClaims) JTI() string {
	return c.ID
}

// SignOption overrides per-call signing parameters.
type SignOption func(*signOptions)

type signOptions struct {
	ttl time.Duration
	now time.Time
}

// WithTTL overrides the namespace TTL for one token.
func WithTTL(ttl time.Duration) SignOption {
	return func(o *signOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithIssuedAt pins the iat of one token.
func WithIssuedAt(t time.Time) SignOption {
	return func(o *signOptions) {
		o.now = t
	}
}

// VerifyOptions tunes verification.
type VerifyOptions struct {
	// AllowExpired waives the exp deadline only. exp must still be present and
	// nbf, iat and iss are validated as usual.
	AllowExpired bool
}

// Signer signs and verifies tokens of a single Kind.
//
// A Signer is immutable after construction and safe for concurrent use.
type Signer struct {
	kind   Kind
	config Config
	method jwt.SigningMethod
	sign   interface{}
	verify interface{}
}

// NewSigner validates cfg and returns a Signer for the given namespace.
func NewSigner(kind Kind, cfg Config) (*Signer, error) {
	if kind != KindAccess && kind != KindRefresh {
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%s: invalid TTL configuration", kind)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%s: invalid leeway configuration", kind)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, fmt.Errorf("%s: invalid MaxFutureIAT configuration", kind)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.SigningMethod = SigningMethod(strings.ToLower(string(cfg.SigningMethod)))

	s := &Signer{kind: kind, config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
		if len(cfg.Secret) == 0 {
			return nil, fmt.Errorf("%s: %s requires a secret", kind, cfg.SigningMethod)
		}
		s.method = hmacMethod(cfg.SigningMethod)
		s.sign = cfg.Secret
		s.verify = cfg.Secret
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, fmt.Errorf("%s: ed25519 requires public key", kind)
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		s.verify = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			s.sign = priv
		}
		s.method = jwt.SigningMethodEdDSA
	default:
		return nil, fmt.Errorf("%s: unsupported signing method %q", kind, cfg.SigningMethod)
	}

	return s, nil
}

// SignAccess mints an access token for the identity. It fails on a refresh signer.
func (s *Signer) SignAccess(userID, provider string, opts ...SignOption) (string, error) {
	if s.kind != KindAccess {
		return "", fmt.Errorf("signer kind %s cannot mint access tokens", s.kind)
	}
	nonce, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	registered := s.registeredClaims(userID, opts)
	return s.signClaims(AccessClaims{
		UserID:           userID,
		Provider:         provider,
		Nonce:            nonce.String(),
		RegisteredClaims: registered,
	})
}

// SignRefresh mints a refresh token carrying a freshly generated jti. Every call
// yields a distinct jti, including repeated calls for the same identity.
func (s *Signer) SignRefresh(userID, provider string, opts ...SignOption) (string, error) {
	if s.kind != KindRefresh {
		return "", fmt.Errorf("signer kind %s cannot mint refresh tokens", s.kind)
	}
	jti, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	registered := s.registeredClaims(userID, opts)
	registered.ID = jti.String()
	return s.signClaims(RefreshClaims{
		UserID:           userID,
		Provider:         provider,
		RegisteredClaims: registered,
	})
}

// VerifyAccess checks signature, namespace and expiry of an access token.
func (s *Signer) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenStr, claims, VerifyOptions{}); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token. With AllowExpired the exp check is waived so
// that an authentic stale token still yields its jti.
func (s *Signer) VerifyRefresh(tokenStr string, opts VerifyOptions) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenStr, claims, opts); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.JTI() == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *Signer) registeredClaims(userID string, opts []SignOption) jwt.RegisteredClaims {
	o := signOptions{ttl: s.config.TTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now.IsZero() {
		o.now = s.config.Now()
	}

	return jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(o.now),
		ExpiresAt: jwt.NewNumericDate(o.now.Add(o.ttl)),
	}
}

func (s *Signer) signClaims(claims jwt.Claims) (string, error) {
	if s.sign == nil {
		return "", fmt.Errorf("%s signer has no private key", s.kind)
	}
	token := jwt.NewWithClaims(s.method, claims)
	token.Header["typ"] = string(s.kind) + typHeaderSuffix
	return token.SignedString(s.sign)
}

func (s *Signer) parse(tokenStr string, claims jwt.Claims, opts VerifyOptions) error {
	if tokenStr == "" {
		return fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.config.Now),
	}
	if opts.AllowExpired {
		// exp is the only claim the parser would reject on; the rest is checked below.
		options = append(options, jwt.WithoutClaimsValidation())
	} else {
		options = append(options, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
		if s.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(s.config.Leeway))
		}
		if s.config.Issuer != "" {
			options = append(options, jwt.WithIssuer(s.config.Issuer))
		}
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if typ, _ := t.Header["typ"].(string); typ != string(s.kind)+typHeaderSuffix {
			return nil, fmt.Errorf("unexpected token type %q", typ)
		}
		return s.verify, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}

	registered, err := claims.GetIssuedAt()
	if err == nil && registered != nil && s.config.MaxFutureIAT > 0 {
		if registered.Time.After(s.config.Now().Add(s.config.MaxFutureIAT)) {
			return fmt.Errorf("%w: token iat too far in the future", ErrTokenInvalid)
		}
	}
	if opts.AllowExpired {
		return s.validateIgnoringExpiry(claims)
	}

	return nil
}

// validateIgnoringExpiry applies every registered-claim rule of the strict path
// except the exp deadline.
func (s *Signer) validateIgnoringExpiry(claims jwt.Claims) error {
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}

	horizon := s.config.Now().Add(s.config.Leeway)
	if nbf, err := claims.GetNotBefore(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	} else if nbf != nil && nbf.After(horizon) {
		return fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
	}
	if iat, err := claims.GetIssuedAt(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	} else if iat != nil && iat.After(horizon) {
		return fmt.Errorf("%w: token used before issued", ErrTokenInvalid)
	}

	if s.config.Issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != s.config.Issuer {
			return fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
		}
	}
	return nil
}

func hmacMethod(m SigningMethod) jwt.SigningMethod {
	switch m {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
