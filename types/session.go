package types

import "time"

// Session is the server-side view of a successful authentication.
// Sessions are never mutated; they expire naturally or are discarded
// by the client on logout.
type Session struct {
	// SessionID is the opaque identifier carried in the token's jti claim.
	SessionID string `json:"session_id"`

	// UserID identifies the authenticated principal.
	UserID string `json:"user_id"`

	// Name, Email and Organization are denormalized display fields.
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`

	// Role is the principal's role at the time the session was created.
	Role Role `json:"role"`

	// CanImpersonate is true only for consultants.
	CanImpersonate bool `json:"can_impersonate"`

	// CreatedAt is when the session was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is strictly after CreatedAt.
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session is still usable at now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// IsConsultant reports whether the session belongs to a consultant.
func (s Session) IsConsultant() bool {
	return s.Role == RoleConsultant
}
