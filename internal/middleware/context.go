// AngelaMos | 2026
// context.go

package middleware

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserTypeKey  contextKey = "user_type"
	ClaimsKey    contextKey = "jwt_claims"
	RequestIDKey contextKey = "request_id"
)
