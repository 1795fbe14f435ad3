package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Purpose names the single use a token was minted for.
type Purpose string

const (
	PurposeAccess     Purpose = "access"
	PurposeRefresh    Purpose = "refresh"
	PurposeActivation Purpose = "activation"
	PurposeReset      Purpose = "reset"
)

func (p Purpose) valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeActivation, PurposeReset:
		return true
	default:
		return false
	}
}

// Registration is the pending-account payload carried by an activation token.
// The password is already hashed when it is embedded.
type Registration struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Mobile       string `json:"mobile,omitempty"`
	Address      string `json:"address,omitempty"`
	Sex          string `json:"sex,omitempty"`
}

// Claims is the claim set shared by every token purpose. Fields that do not
// apply to a purpose are left empty and omitted from the encoded token.
type Claims struct {
	Name        string        `json:"name,omitempty"`
	Purpose     Purpose       `json:"pur"`
	Pending     *Registration `json:"usr,omitempty"`
	Code        string        `json:"code,omitempty"`
	Fingerprint string        `json:"fpr,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the "sub" claim.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
