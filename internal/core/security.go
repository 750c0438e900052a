// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16

	RefreshTokenBytes = 32
)

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// currentParams is what new hashes use. Stored hashes with other
// parameters still verify and are upgraded on the next successful login.
var currentParams = argonParams{
	memory:  64 * 1024,
	time:    1,
	threads: 4,
	keyLen:  32,
}

var ErrMalformedHash = errors.New("malformed password hash")

// passwordHash is a decoded PHC string:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
type passwordHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h passwordHash) String() string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory,
		h.params.time,
		h.params.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func derive(password string, salt []byte, p argonParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
}

func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	return passwordHash{
		params: currentParams,
		salt:   salt,
		key:    derive(password, salt, currentParams),
	}.String(), nil
}

func VerifyPassword(password, encodedHash string) (bool, error) {
	h, err := parsePasswordHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := derive(password, h.salt, h.params)
	return subtle.ConstantTimeCompare(h.key, candidate) == 1, nil
}

// VerifyPasswordWithRehash also returns a fresh encoding when the stored
// one was produced with outdated parameters. The new hash is empty when no
// upgrade is needed or the password did not match.
func VerifyPasswordWithRehash(
	password, encodedHash string,
) (bool, string, error) {
	h, err := parsePasswordHash(encodedHash)
	if err != nil {
		return false, "", err
	}

	candidate := derive(password, h.salt, h.params)
	if subtle.ConstantTimeCompare(h.key, candidate) != 1 {
		return false, "", nil
	}

	if h.params == currentParams {
		return true, "", nil
	}

	newHash, err := HashPassword(password)
	if err != nil {
		//nolint:nilerr // the password matched; the upgrade can wait
		return true, "", nil
	}
	return true, newHash, nil
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// SpendPasswordCheck does the work of one verification against a decoy
// hash. Login paths that reject before checking a password call it.
func SpendPasswordCheck(password string) {
	decoyOnce.Do(func() {
		//nolint:errcheck // an empty decoy fails to parse and returns early
		decoyHash, _ = HashPassword("decoy-password-never-matches")
	})
	//nolint:errcheck // only the elapsed time matters
	_, _ = VerifyPassword(password, decoyHash)
}

func parsePasswordHash(encoded string) (passwordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return passwordHash{}, ErrMalformedHash
	}

	if parts[1] != "argon2id" {
		return passwordHash{}, fmt.Errorf("unsupported algorithm %q: %w", parts[1], ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return passwordHash{}, fmt.Errorf("version: %w", ErrMalformedHash)
	}
	if version != argon2.Version {
		return passwordHash{}, fmt.Errorf("incompatible version %d: %w", version, ErrMalformedHash)
	}

	var h passwordHash
	if _, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&h.params.memory,
		&h.params.time,
		&h.params.threads,
	); err != nil {
		return passwordHash{}, fmt.Errorf("params: %w", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return passwordHash{}, fmt.Errorf("salt: %w", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return passwordHash{}, fmt.Errorf("key: %w", ErrMalformedHash)
	}

	//nolint:gosec // G115: argon2 keys are a few dozen bytes
	h.params.keyLen = uint32(len(h.key))

	return h, nil
}

// GenerateSecureToken returns length random bytes, URL-safe base64 encoded.
func GenerateSecureToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(RefreshTokenBytes)
}

// TokensEqual compares two opaque tokens without leaking timing.
// Empty values never match.
func TokensEqual(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
