package password

import (
	"errors"
	"fmt"
)

// MinPasswordBytes is the shortest password accepted by Hash.
const MinPasswordBytes = 10

// DefaultMaxPasswordBytes caps password length when a config leaves it zero.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrPasswordLength is returned for passwords outside the accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher hashes passwords and verifies them against stored hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Password processing uses raw string bytes exactly as provided, without Unicode normalization.
func checkLength(password string, max int) error {
	if max <= 0 {
		max = DefaultMaxPasswordBytes
	}
	if len(password) < MinPasswordBytes || len(password) > max {
		return fmt.Errorf("%w: must be %d-%d bytes", ErrPasswordLength, MinPasswordBytes, max)
	}
	return nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}
