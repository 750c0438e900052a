// AngelaMos | 2026
// refresh.go

package auth

import (
	"github.com/flightscheduly/backend/internal/core"
)

type RefreshTokenGenerator interface {
	Generate() (string, error)
}

// RandomRefreshTokens draws core.RefreshTokenBytes from crypto/rand per
// call and keeps no state between calls.
type RandomRefreshTokens struct{}

func (RandomRefreshTokens) Generate() (string, error) {
	return core.GenerateRefreshToken()
}
