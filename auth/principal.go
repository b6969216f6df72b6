package auth

import "papichulo-api/models"

const (
	MethodToken    = "token"
	MethodAdminKey = "admin_key"
)

// Principal is the authenticated caller of a request.
// UserID is empty for the operational admin key.
type Principal struct {
	UserID string
	Role   models.UserRole
	Email  string
	Name   string
	Method string
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdmin
}

// AdminKeyPrincipal is the identity granted by the operational bypass.
func AdminKeyPrincipal() *Principal {
	return &Principal{Role: models.RoleAdmin, Method: MethodAdminKey}
}

// PrincipalFromClaims builds a principal from verified claims.
func PrincipalFromClaims(c *Claims) *Principal {
	return &Principal{
		UserID: c.Subject,
		Role:   c.Role,
		Email:  c.Email,
		Name:   c.Name,
		Method: MethodToken,
	}
}
