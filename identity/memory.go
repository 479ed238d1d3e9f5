// Package identity provides an in-memory IdentityProvider for demos and tests.
package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/google/uuid"
)

// ProviderName is stamped on every identity issued by Memory.
const ProviderName = "local"

var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrEmailTaken    = errors.New("email already registered")
	ErrWrongPassword = errors.New("wrong password")
)

type account struct {
	id   string
	hash string
}

// Memory stores accounts in a map keyed by normalized email.
type Memory struct {
	hasher password.Hasher

	mu       sync.RWMutex
	accounts map[string]account
}

var _ tokenauth.IdentityProvider = (*Memory)(nil)

// NewMemory returns an empty provider. A nil hasher selects bcrypt at its default cost.
func NewMemory(hasher password.Hasher) (*Memory, error) {
	if hasher == nil {
		b, err := password.NewBcrypt(0)
		if err != nil {
			return nil, err
		}
		hasher = b
	}
	return &Memory{hasher: hasher, accounts: make(map[string]account)}, nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// SignUp registers creds and returns a new identity with a random UUID.
func (m *Memory) SignUp(_ context.Context, creds tokenauth.Credentials) (tokenauth.Identity, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return tokenauth.Identity{}, err
	}

	hash, err := m.hasher.Hash(creds.Password)
	if err != nil {
		return tokenauth.Identity{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[email]; exists {
		return tokenauth.Identity{}, ErrEmailTaken
	}
	acct := account{id: uuid.NewString(), hash: hash}
	m.accounts[email] = acct

	return tokenauth.Identity{ID: acct.id, Provider: ProviderName}, nil
}

// Login returns nil, nil for an unknown email and ErrWrongPassword for a bad password.
func (m *Memory) Login(_ context.Context, creds tokenauth.Credentials) (*tokenauth.Identity, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	acct, ok := m.accounts[email]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	match, err := m.hasher.Verify(creds.Password, acct.hash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrWrongPassword
	}
	m.rehash(email, acct, creds.Password)

	return &tokenauth.Identity{ID: acct.id, Provider: ProviderName}, nil
}

// rehash replaces a hash made with weaker parameters than the current hasher's.
// A failure keeps the old hash; the login itself already succeeded.
func (m *Memory) rehash(email string, acct account, plain string) {
	upgrade, err := m.hasher.NeedsUpgrade(acct.hash)
	if err != nil || !upgrade {
		return
	}
	hash, err := m.hasher.Hash(plain)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.accounts[email]; ok && cur.hash == acct.hash {
		m.accounts[email] = account{id: acct.id, hash: hash}
	}
}
