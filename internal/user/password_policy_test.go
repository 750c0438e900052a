// AngelaMos | 2026
// password_policy_test.go

package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flightscheduly/backend/internal/config"
)

func defaultPolicy() config.PasswordConfig {
	return config.PasswordConfig{
		RequiredLength:   6,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
	}
}

func TestPasswordPolicyValidate(t *testing.T) {
	policy := NewPasswordPolicy(defaultPolicy())

	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{
			name:     "satisfies every rule",
			password: "Secret123",
		},
		{
			name:     "too short",
			password: "Ab1",
			want:     []string{"Passwords must be at least 6 characters."},
		},
		{
			name:     "missing digit and uppercase",
			password: "secretpass",
			want: []string{
				"Passwords must have at least one digit ('0'-'9').",
				"Passwords must have at least one uppercase ('A'-'Z').",
			},
		},
		{
			name:     "reports everything at once",
			password: "!!",
			want: []string{
				"Passwords must be at least 6 characters.",
				"Passwords must have at least one digit ('0'-'9').",
				"Passwords must have at least one lowercase ('a'-'z').",
				"Passwords must have at least one uppercase ('A'-'Z').",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Validate(tt.password))
		})
	}
}

func TestPasswordPolicyNonAlphanumeric(t *testing.T) {
	cfg := defaultPolicy()
	cfg.RequireNonAlphanumeric = true
	policy := NewPasswordPolicy(cfg)

	assert.Equal(t,
		[]string{"Passwords must have at least one non alphanumeric character."},
		policy.Validate("Secret123"),
	)
	assert.Empty(t, policy.Validate("Secret123!"))
}

func TestPasswordPolicyStrength(t *testing.T) {
	cfg := defaultPolicy()
	cfg.MinStrengthScore = 3
	policy := NewPasswordPolicy(cfg)

	assert.Equal(t,
		[]string{"Password is too easy to guess."},
		policy.Validate("Password1", "pilot@example.com"),
	)
	assert.Empty(t, policy.Validate("kX9#mQ2$vL7@pR4!wZ"))

	assert.NotContains(t,
		policy.Validate("short"),
		"Password is too easy to guess.",
	)
}
