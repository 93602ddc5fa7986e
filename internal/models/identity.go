package models

import (
	"time"
)

const (
	RoleUser       = "user"
	RoleSuperadmin = "superadmin"
)

// Identity is an account that owns a subdomain
type Identity struct {
	ID                string
	Subdomain         string
	Email             *string
	Mobile            *string
	Name              string
	PasswordHash      string
	Roles             []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time
}

// HasRole reports whether the identity carries role
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
