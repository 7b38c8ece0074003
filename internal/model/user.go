// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the application-level permission tier stored on a UserProfile.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Identity is the principal issued by the credential gateway after a code is
// verified, or when an administrator creates an account.
//
// WHY SO SMALL?
// Everything else about a person (their name, their role) lives in
// UserProfile. An Identity can exist without a profile; that person is
// signed in but has no role, which we call the anonymous tier.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserProfile is the application record attached to an Identity.
// ID is the Identity's ID, so the relationship is one-to-one.
type UserProfile struct {
	ID        string    `json:"id"        db:"id"`
	FullName  string    `json:"fullName"  db:"full_name"`
	Role      Role      `json:"role"      db:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserWithProfile is the admin listing view: an Identity joined with its profile.
type UserWithProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
