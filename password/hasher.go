package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPolicy is returned by Hash when the plaintext violates the length policy.
var ErrPolicy = errors.New("password policy violation")

const (
	defaultMinLength = 6
	maxLength        = 128
)

// Config tunes argon2id cost and the accepted plaintext length.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// DefaultConfig returns the argon2id parameters used for new hashes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   defaultMinLength,
	}
}

// Hasher produces argon2id hashes and verifies argon2id or legacy bcrypt ones.
//
// Hasher is immutable and safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a [Hasher].
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinLength
	}
	if cfg.MinLength > maxLength {
		return nil, fmt.Errorf("password MinLength must be <= %d", maxLength)
	}
	if err := validateArgon2Config(cfg); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns an argon2id PHC string for plaintext.
// Raw bytes are hashed as given; no Unicode normalization is applied.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < h.config.MinLength || len(plaintext) > maxLength {
		return "", fmt.Errorf("%w: length must be between %d and %d bytes", ErrPolicy, h.config.MinLength, maxLength)
	}
	return hashArgon2(plaintext, h.config)
}

// Verify reports whether plaintext matches encoded. A mismatch is
// (false, nil); an unparseable hash is an error.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(plaintext, encoded)
	}
	return verifyArgon2(plaintext, encoded)
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Hash:
// always for bcrypt, and for argon2id when it is weaker than the current config.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != parsed.keyLength, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
