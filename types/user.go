package types

import "time"

// Role is the closed set of principal roles.
type Role string

// Supported roles. A principal's role is fixed at creation.
const (
	// RoleConsultant may view decrypted responses and act on behalf
	// of other principals.
	RoleConsultant Role = "consultant"

	// RoleStandardUser is the default role assigned at registration.
	RoleStandardUser Role = "standard-user"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleConsultant, RoleStandardUser:
		return true
	default:
		return false
	}
}

// User represents a principal in the system.
// It contains identity, organization, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. It is stored lower-cased and
	// is unique across all users.
	Email string `json:"email" db:"email"`

	// Organization is the company the user belongs to.
	Organization string `json:"organization" db:"organization"`

	// Role indicates the user's authorization level. It never changes
	// after the account is created.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the one-way hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastLoginAt is the timestamp of the most recent successful login.
	// It is nil until the first login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}
