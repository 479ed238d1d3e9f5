package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently truncates input after 72 bytes.
const bcryptMaxPasswordBytes = 72

// Bcrypt is a bcrypt Hasher.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a Hasher with the given cost. Zero selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password, bcryptMaxPasswordBytes); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if err := checkLength(password, bcryptMaxPasswordBytes); err != nil {
		return false, err
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, malformed(err.Error())
	}
}

func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, malformed(err.Error())
	}
	return cost < b.cost, nil
}
