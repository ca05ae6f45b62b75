package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok.Secret)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)
	assert.Len(t, tok.Secret, 43)
	assert.Len(t, tok.Digest, 64)
	assert.Equal(t, TokenDigest(tok.Secret), tok.Digest)
	assert.NotEqual(t, tok.Secret, tok.Digest)
}

func TestAccessTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := NewAccessToken()
		require.NoError(t, err)
		require.False(t, seen[tok.Secret], "duplicate token after %d draws", i)
		seen[tok.Secret] = true
	}
}

func TestTokenDigestIgnoresSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, TokenDigest("abc"), TokenDigest("  abc\n"))
	assert.NotEqual(t, TokenDigest("abc"), TokenDigest("abd"))
}

func TestDigestsEqual(t *testing.T) {
	d := TokenDigest("secret")
	assert.True(t, DigestsEqual(d, TokenDigest("secret")))
	assert.False(t, DigestsEqual(d, TokenDigest("secreT")))
	assert.False(t, DigestsEqual(d, d[:10]))
}
