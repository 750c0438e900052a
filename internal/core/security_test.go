// AngelaMos | 2026
// security_test.go

package core

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := VerifyPassword("Secret123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("secret123", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain-text",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=4$c2FsdA$a2V5",
	} {
		_, err := VerifyPassword("anything", encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, "hash %q", encoded)
	}
}

func TestVerifyPasswordWithRehash(t *testing.T) {
	weak := argonParams{memory: 8 * 1024, time: 1, threads: 1, keyLen: 32}
	salt := []byte("0123456789abcdef")
	legacy := passwordHash{
		params: weak,
		salt:   salt,
		key:    derive("Secret123", salt, weak),
	}.String()

	ok, upgraded, err := VerifyPasswordWithRehash("Secret123", legacy)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotEmpty(t, upgraded)
	assert.Contains(t, upgraded, "m=65536,t=1,p=4")

	ok, err = VerifyPassword("Secret123", upgraded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, upgraded, err = VerifyPasswordWithRehash("wrong", legacy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, upgraded)

	current, err := HashPassword("Secret123")
	require.NoError(t, err)
	ok, upgraded, err = VerifyPasswordWithRehash("Secret123", current)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, upgraded)
}

func TestSpendPasswordCheck(t *testing.T) {
	SpendPasswordCheck("anything")
	assert.NotEmpty(t, decoyHash)
}

func TestGenerateRefreshToken(t *testing.T) {
	a, err := GenerateRefreshToken()
	require.NoError(t, err)
	b, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	raw, err := base64.URLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, RefreshTokenBytes)
}

func TestTokensEqual(t *testing.T) {
	assert.True(t, TokensEqual("abc", "abc"))
	assert.False(t, TokensEqual("abc", "abd"))
	assert.False(t, TokensEqual("abc", "abcd"))
	assert.False(t, TokensEqual("", ""))
	assert.False(t, TokensEqual("abc", ""))
}
