package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents custom JWT claims
type JWTClaims struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// UserContext is the caller identity taken from a verified token.
type UserContext struct {
	UserID      string
	Role        string
	Permissions []string
}

// HasPermission reports whether the caller was granted p.
func (u UserContext) HasPermission(p string) bool {
	for _, granted := range u.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}
