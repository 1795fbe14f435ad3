package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// MinOTPDigits and MaxOTPDigits bound activation code length.
const (
	MinOTPDigits = 4
	MaxOTPDigits = 10
)

// NewOTP returns a uniformly random decimal code of the given length drawn
// from crypto/rand. Leading zeros are kept.
func NewOTP(digits int) (string, error) {
	if digits < MinOTPDigits || digits > MaxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
