package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/models"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader carries the operational bypass key.
const AdminKeyHeader = "X-Admin-Key"

const principalKey = "principal"

// Guard authenticates callers and enforces role requirements.
type Guard struct {
	issuer      *auth.Issuer
	adminKey    [sha256.Size]byte
	hasAdminKey bool
}

// NewGuard builds a guard. An empty adminKey disables the bypass header.
func NewGuard(issuer *auth.Issuer, adminKey string) *Guard {
	g := &Guard{issuer: issuer}
	if adminKey != "" {
		g.adminKey = sha256.Sum256([]byte(adminKey))
		g.hasAdminKey = true
	}
	return g
}

// RequireRole admits callers holding one of roles. The bypass key counts as admin.
func (g *Guard) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := g.authenticate(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !hasRole(p.Role, roles) {
			abortWithError(c, apperror.Forbidden("Insufficient role permissions"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func (g *Guard) RequireAdmin() gin.HandlerFunc {
	return g.RequireRole(models.RoleAdmin)
}

// RequireAuth admits any signed-in caller.
func (g *Guard) RequireAuth() gin.HandlerFunc {
	return g.RequireRole(models.RoleAdmin, models.RoleCustomer)
}

// OptionalAuth attaches a principal when a valid bearer token is present and
// otherwise lets the request through untouched.
func (g *Guard) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := g.issuer.Verify(token); err == nil {
				c.Set(principalKey, auth.PrincipalFromClaims(claims))
			}
		}
		c.Next()
	}
}

// AdmitObserver applies the admin rule to realtime connections, which carry
// credentials as query parameters.
func (g *Guard) AdmitObserver(adminKey, token string) error {
	if g.adminKeyMatches(adminKey) {
		return nil
	}
	if token == "" {
		return apperror.Unauthorized("Missing auth token")
	}
	claims, err := g.issuer.Verify(token)
	if err != nil {
		return apperror.Unauthorized("Invalid or expired token")
	}
	if claims.Role != models.RoleAdmin {
		return apperror.Forbidden("Insufficient role permissions")
	}
	return nil
}

func (g *Guard) authenticate(c *gin.Context) (*auth.Principal, error) {
	if g.adminKeyMatches(c.GetHeader(AdminKeyHeader)) {
		return auth.AdminKeyPrincipal(), nil
	}
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil, apperror.Unauthorized("Missing auth token")
	}
	claims, err := g.issuer.Verify(token)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid or expired token")
	}
	return auth.PrincipalFromClaims(claims), nil
}

func (g *Guard) adminKeyMatches(key string) bool {
	if !g.hasAdminKey || key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(sum[:], g.adminKey[:]) == 1
}

// CurrentPrincipal returns the caller attached by the guard, if any.
func CurrentPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func hasRole(role models.UserRole, allowed []models.UserRole) bool {
	for _, r := range allowed {
		if strings.EqualFold(string(role), string(r)) {
			return true
		}
	}
	return false
}
