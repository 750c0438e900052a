// AngelaMos | 2026
// errors.go

package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account locked")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrRoleNotFound        = errors.New("role does not exist")
	ErrRegistrationFailed  = errors.New("registration failed")
	ErrOperationFailed     = errors.New("operation failed")
)

// OperationError carries the store's descriptions for a rejected mutation.
// Its message is the descriptions joined with ", "; it unwraps to Kind.
type OperationError struct {
	Kind         error
	Descriptions []string
}

func (e *OperationError) Error() string {
	if len(e.Descriptions) == 0 {
		return e.Kind.Error()
	}
	return strings.Join(e.Descriptions, ", ")
}

func (e *OperationError) Unwrap() error {
	return e.Kind
}

// rejected converts a store rejection into an OperationError of the given
// kind. Errors that are not IdentityErrors are wrapped with op instead.
func rejected(op string, kind, err error) error {
	var identityErrs IdentityErrors
	if errors.As(err, &identityErrs) {
		return &OperationError{Kind: kind, Descriptions: identityErrs}
	}
	return fmt.Errorf("%s: %w", op, err)
}
