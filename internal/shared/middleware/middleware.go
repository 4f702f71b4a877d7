package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/utils/response"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

// Context keys under which the filter installs the authenticated identity.
const (
	ContextSubjectKey = "auth_subject"
	ContextRolesKey   = "auth_roles"
)

// TokenValidator is the slice of the token codec the filter needs. Defined
// here so the auth package can depend on this one without a cycle.
type TokenValidator interface {
	ExtractSubject(token string) (string, error)
	ExtractRoles(token string) ([]string, error)
	Validate(token, subject string) bool
}

// publicPath reports whether the request targets an endpoint the bearer
// filter never examines: registration, login, forgot-password and the POST
// variant of reset-password.
func publicPath(c *gin.Context) bool {
	path := c.Request.URL.Path
	switch {
	case strings.HasSuffix(path, "/auth/register"),
		strings.HasSuffix(path, "/auth/login"),
		strings.HasSuffix(path, "/auth/forgot-password"):
		return true
	case strings.HasSuffix(path, "/auth/reset-password"):
		return c.Request.Method == http.MethodPost
	default:
		return false
	}
}

// Authenticate is the per-request bearer filter. It fails open: a missing,
// malformed or expired token leaves the request anonymous and the request
// proceeds; the authorization guards below are what actually deny access.
// It never aborts and never writes a response.
func Authenticate(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if publicPath(c) {
			c.Next()
			return
		}

		// an identity established earlier in the chain wins
		if _, exists := c.Get(ContextSubjectKey); exists {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}
		tokenString := parts[1]

		subject, err := tokens.ExtractSubject(tokenString)
		if err != nil {
			// anonymous; never reject at this stage
			c.Next()
			return
		}

		roles, err := tokens.ExtractRoles(tokenString)
		if err != nil {
			c.Next()
			return
		}

		if tokens.Validate(tokenString, subject) {
			c.Set(ContextSubjectKey, subject)
			c.Set(ContextRolesKey, roles)
		}

		c.Next()
	}
}

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextSubjectKey); !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authentication required", nil, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose token does not carry the
// required role. Role claims outside the known set are ignored.
func RequireRole(requiredRole users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		rolesValue, exists := c.Get(ContextRolesKey)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authentication required", nil, nil)
			c.Abort()
			return
		}

		roles, ok := rolesValue.([]string)
		if !ok {
			response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
			c.Abort()
			return
		}

		for _, claim := range roles {
			if role, ok := users.ParseRole(claim); ok && role == requiredRole {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireAdmin is a guard that requires the admin role.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(users.RoleAdmin)
}

// Subject returns the authenticated subject for the request, if any.
func Subject(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextSubjectKey)
	if !exists {
		return "", false
	}
	subject, ok := value.(string)
	return subject, ok
}
