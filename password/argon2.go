package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2ID              = "argon2id"
)

// Argon2Config tunes Argon2id. Memory is in KiB.
type Argon2Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultArgon2Config returns 64 MiB, three passes, two lanes.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 is an Argon2id Hasher. It is safe for concurrent use.
type Argon2 struct {
	config Argon2Config
}

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewArgon2 validates cfg and returns a Hasher.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password, a.config.MaxPasswordBytes); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares in constant time. Overlong passwords are refused before any key derivation.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if err := checkLength(password, a.config.MaxPasswordBytes); err != nil {
		return false, err
	}

	p, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}

	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		int(a.config.KeyLength) != len(p.hash), nil
}

func parseArgon2(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, malformed("expected 5 PHC fields")
	}
	if parts[1] != argon2ID {
		return nil, malformed("unsupported algorithm " + strconv.Quote(parts[1]))
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, malformed("bad version field")
	}
	if version != argon2.Version {
		return nil, malformed("unsupported argon2 version")
	}

	var p argon2Params
	if err := parseArgon2Params(parts[3], &p); err != nil {
		return nil, err
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, malformed("bad salt")
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, malformed("bad key")
	}

	return &p, nil
}

func parseArgon2Params(field string, p *argon2Params) error {
	seen := 0
	for _, pair := range strings.Split(field, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return malformed("bad parameter " + strconv.Quote(pair))
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKB {
				return malformed("bad memory parameter")
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTimeCost {
				return malformed("bad time parameter")
			}
			p.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return malformed("bad parallelism parameter")
			}
			p.parallelism = uint8(n)
		default:
			return malformed("unknown parameter " + strconv.Quote(k))
		}
		seen++
	}
	if seen != 3 {
		return malformed("expected m, t and p")
	}
	return nil
}
