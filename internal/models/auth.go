package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are carried by a session token. Subject holds the identity id.
type SessionClaims struct {
	Roles     []string `json:"roles"`
	Subdomain string   `json:"subdomain"`
	jwt.RegisteredClaims
}
