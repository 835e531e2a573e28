package models

import "strings"

// Role is the access level of a user
type Role string

// Role constants
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserRecord represents a user as returned by the users API.
// ID and CreatedAt are assigned by the server.
type UserRecord struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Role      Role    `json:"role"`
	CreatedAt *string `json:"createdAt,omitempty"`
}

// DraftUser is the pending form input of a user that was not created yet
type DraftUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// NewDraftUser returns an empty draft with the default role
func NewDraftUser() DraftUser {
	return DraftUser{Role: RoleUser}
}

// WithDefaults returns a copy of the draft with an empty role replaced by RoleUser
func (d DraftUser) WithDefaults() DraftUser {
	if d.Role == "" {
		d.Role = RoleUser
	}
	return d
}

// HasRequiredFields reports whether both name and email are filled in
func (d DraftUser) HasRequiredFields() bool {
	return strings.TrimSpace(d.Name) != "" && strings.TrimSpace(d.Email) != ""
}
