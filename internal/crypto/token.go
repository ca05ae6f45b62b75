// Package crypto provides the access-token primitives used when a switch triggers.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// TokenBytes is the amount of entropy in an access token (256 bits).
const TokenBytes = 32

// digestDomain separates access-token digests from any other blake2b use.
var digestDomain = []byte("legacyvault/access-token/v1")

// AccessToken is a freshly issued token. Secret is handed to the nominee and
// never persisted; Digest is what the store indexes.
type AccessToken struct {
	Secret string
	Digest string
}

// NewAccessToken generates a cryptographically random token and its digest.
func NewAccessToken() (AccessToken, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return AccessToken{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	return AccessToken{Secret: secret, Digest: TokenDigest(secret)}, nil
}

// TokenDigest returns the hex blake2b-256 digest of a presented token.
func TokenDigest(secret string) string {
	h, _ := blake2b.New256(digestDomain)
	h.Write([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(h.Sum(nil))
}

// DigestsEqual compares two digests in constant time.
func DigestsEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
