// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/middleware"
)

const (
	ClaimEmail    = "email"
	ClaimName     = "name"
	ClaimUserType = "user_type"
	ClaimRole     = "role"
)

// JWTManager signs access tokens with HMAC-SHA-256 over the configured
// secret and decodes them back into claims.
type JWTManager struct {
	key    jwk.Key
	config config.JWTConfig
	now    func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	key, err := jwk.Import([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	if cfg.ExpirationMinutes <= 0 {
		cfg.ExpirationMinutes = 60
	}

	return &JWTManager{
		key:    key,
		config: cfg,
		now:    time.Now,
	}, nil
}

// Issue builds and signs an access token for user carrying one role claim
// entry per role, valid from issuedAt for the configured lifetime.
func (m *JWTManager) Issue(
	user *UserInfo,
	roles []string,
	issuedAt time.Time,
) (string, error) {
	if roles == nil {
		roles = []string{}
	}

	builder := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(user.ID).
		IssuedAt(issuedAt).
		NotBefore(issuedAt).
		Expiration(issuedAt.Add(m.config.AccessTokenTTL())).
		Claim(ClaimEmail, user.Email).
		Claim(ClaimName, user.FullName()).
		Claim(ClaimUserType, user.UserType.String()).
		Claim(ClaimRole, roles)

	if m.config.Issuer != "" {
		builder = builder.Issuer(m.config.Issuer)
	}
	if m.config.Audience != "" {
		builder = builder.Audience([]string{m.config.Audience})
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

// DecodeIgnoringExpiry checks the signature, algorithm and the configured
// issuer/audience but not the lifetime, so an expired access token can
// still be exchanged during refresh.
func (m *JWTManager) DecodeIgnoringExpiry(
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	return claimsFromToken(token)
}

// VerifyAccessToken fully validates a bearer token, lifetime included.
func (m *JWTManager) VerifyAccessToken(
	_ context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	now := m.now()

	exp, ok := token.Expiration()
	if !ok {
		return nil, fmt.Errorf("verify token: missing exp: %w", core.ErrTokenInvalid)
	}
	if !now.Before(exp) {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
	}

	if nbf, ok := token.NotBefore(); ok && now.Before(nbf) {
		return nil, fmt.Errorf("verify token: not yet valid: %w", core.ErrTokenInvalid)
	}

	return claimsFromToken(token)
}

func (m *JWTManager) parse(tokenString string) (jwt.Token, error) {
	if err := checkAlgorithm(tokenString); err != nil {
		return nil, err
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", core.ErrTokenInvalid)
	}

	if m.config.Issuer != "" {
		iss, ok := token.Issuer()
		if !ok || iss != m.config.Issuer {
			return nil, fmt.Errorf("parse token: issuer mismatch: %w", core.ErrTokenInvalid)
		}
	}

	if m.config.Audience != "" {
		aud, ok := token.Audience()
		if !ok || !slices.Contains(aud, m.config.Audience) {
			return nil, fmt.Errorf("parse token: audience mismatch: %w", core.ErrTokenInvalid)
		}
	}

	return token, nil
}

// checkAlgorithm rejects any token whose protected header does not name
// exactly HS256, whatever the key would accept. Case variants are refused.
func checkAlgorithm(tokenString string) error {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil {
		return fmt.Errorf("parse header: %w", core.ErrTokenInvalid)
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return fmt.Errorf("parse header: expected one signature: %w", core.ErrTokenInvalid)
	}

	alg, ok := sigs[0].ProtectedHeaders().Algorithm()
	if !ok || alg.String() != jwa.HS256().String() {
		return fmt.Errorf("parse header: unexpected algorithm: %w", core.ErrTokenInvalid)
	}

	return nil
}

func claimsFromToken(token jwt.Token) (*middleware.AccessTokenClaims, error) {
	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("read claims: missing subject: %w", core.ErrTokenInvalid)
	}

	claims := &middleware.AccessTokenClaims{UserID: subject}

	//nolint:errcheck // optional claims default to zero values
	_ = token.Get(ClaimEmail, &claims.Email)
	//nolint:errcheck // optional claims default to zero values
	_ = token.Get(ClaimName, &claims.Name)
	//nolint:errcheck // optional claims default to zero values
	_ = token.Get(ClaimUserType, &claims.UserType)

	var rawRoles any
	if err := token.Get(ClaimRole, &rawRoles); err == nil {
		claims.Roles = rolesFromClaim(rawRoles)
	}

	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	return claims, nil
}

func rolesFromClaim(v any) []string {
	switch roles := v.(type) {
	case string:
		return []string{roles}
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
