package auth

import (
	"time"

	"github.com/sentinel-ops/sentinel/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         rbac.Role `json:"role"`
	BaseID       string    `json:"baseId,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	IsSeed       bool      `json:"isSeed"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Principal converts the account into the request-scoped actor.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{ID: u.ID, Username: u.Username, Name: u.Name, Role: u.Role, BaseID: u.BaseID}
}

// SeedUser describes one of the fixed accounts provisioned at install time.
type SeedUser struct {
	Username string
	Name     string
	Email    string
	Role     rbac.Role
	BaseID   string
}

// SeedUsers returns the fixed account list. Seed accounts cannot be modified
// through the API.
func SeedUsers() []SeedUser {
	return []SeedUser{
		{Username: "admin", Name: "System Administrator", Email: "admin@military.gov", Role: rbac.RoleAdmin},
		{Username: "commander1", Name: "Colonel Smith", Email: "smith@military.gov", Role: rbac.RoleBaseCommander, BaseID: "base-alpha"},
		{Username: "logistics1", Name: "Lieutenant Johnson", Email: "johnson@military.gov", Role: rbac.RoleLogisticsOfficer},
	}
}
