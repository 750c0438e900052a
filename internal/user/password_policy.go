// AngelaMos | 2026
// password_policy.go

package user

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/flightscheduly/backend/internal/config"
)

// PasswordPolicy checks a candidate password against every configured rule
// and reports all violations, not just the first.
type PasswordPolicy struct {
	cfg config.PasswordConfig
}

func NewPasswordPolicy(cfg config.PasswordConfig) *PasswordPolicy {
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns one description per failed rule. userInputs (email,
// names) are penalised by the strength estimator.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) []string {
	var problems []string

	if utf8.RuneCountInString(password) < p.cfg.RequiredLength {
		problems = append(problems, fmt.Sprintf(
			"Passwords must be at least %d characters.", p.cfg.RequiredLength))
	}

	var hasDigit, hasLower, hasUpper, hasOther bool
	for _, c := range password {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case !unicode.IsLetter(c) && !unicode.IsDigit(c):
			hasOther = true
		}
	}

	if p.cfg.RequireNonAlphanumeric && !hasOther {
		problems = append(problems,
			"Passwords must have at least one non alphanumeric character.")
	}
	if p.cfg.RequireDigit && !hasDigit {
		problems = append(problems,
			"Passwords must have at least one digit ('0'-'9').")
	}
	if p.cfg.RequireLowercase && !hasLower {
		problems = append(problems,
			"Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.cfg.RequireUppercase && !hasUpper {
		problems = append(problems,
			"Passwords must have at least one uppercase ('A'-'Z').")
	}

	if p.cfg.MinStrengthScore > 0 && len(problems) == 0 {
		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score < p.cfg.MinStrengthScore {
			problems = append(problems,
				"Password is too easy to guess.")
		}
	}

	return problems
}
