// Package auth mints and verifies signed session tokens.
package auth

import (
	"errors"
	"time"

	"papichulo-api/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure so callers cannot
// tell a bad signature from an expired or malformed token.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carried inside a session token. Subject holds the user id.
type Claims struct {
	Role  models.UserRole `json:"role"`
	Email string          `json:"email,omitempty"`
	Name  string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a fixed validity window.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the validity window of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed token for user.
func (i *Issuer) Issue(user *models.User) (string, error) {
	now := i.now()
	claims := Claims{
		Role:  user.Role,
		Email: user.EmailValue(),
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks signature, expiry and claim shape. The returned role is
// normalized to lower case.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok {
		return nil, ErrInvalidToken
	}
	claims.Role = role
	return claims, nil
}
