package session

import "crypto/sha256"

// Profile is the identity snapshot cached alongside the current token.
type Profile struct {
	UserID    string
	Email     string
	Name      string
	Role      string
	Mobile    string
	Address   string
	Sex       string
	AvatarURL string
}

// Record is the registry entry for one user.
//
// RefreshHash is the SHA-256 of the refresh token paired with AccessToken.
// A refresh is accepted only when the presented token hashes to it.
type Record struct {
	Profile     Profile
	AccessToken string
	RefreshHash [32]byte
	IssuedAt    int64
}

// HashToken returns the digest stored in [Record.RefreshHash].
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
