package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// LegacyCost is the bcrypt cost the previous service hashed with.
const LegacyCost = 10

func verifyBcrypt(plaintext, encoded string) (bool, error) {
	if len(plaintext) > maxLength {
		return false, ErrPolicy
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// HashLegacy produces a bcrypt hash at [LegacyCost]. It exists for seeding
// fixtures and migration tooling; new accounts use [Hasher.Hash].
func HashLegacy(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), LegacyCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
