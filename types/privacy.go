package types

import "time"

// AIRecordRetention is the hard ceiling for anonymized AI records,
// independent of the owner's consent retention.
const AIRecordRetention = 90 * 24 * time.Hour

// AnonymizedRecord is the stored result of preparing principal data for
// AI processing.
type AnonymizedRecord struct {
	// ID is an anonymous identifier, unlinkable to the principal.
	ID string `json:"id" db:"id"`

	// OwnerDigest is a keyed hash of the owner's user id. It lets the
	// server purge records on revocation without storing the user id.
	OwnerDigest string `json:"-" db:"owner_digest"`

	// Payload is the anonymized data. It is only populated on reads
	// after decryption.
	Payload any `json:"payload" db:"-"`

	// EncryptedPayload is the encrypted JSON encoding of Payload.
	EncryptedPayload string `json:"-" db:"payload"`

	// DataType is the category of data that was processed.
	DataType DataType `json:"data_type" db:"data_type"`

	// Purpose is the processing purpose the owner consented to.
	Purpose Purpose `json:"purpose" db:"purpose"`

	// CreatedAt is when the record was produced.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// OriginalHash is the SHA-256 of the original payload's JSON encoding,
	// kept only for integrity verification.
	OriginalHash string `json:"original_hash" db:"original_hash"`
}

// AuditEntry is an immutable record of a privacy-relevant action.
type AuditEntry struct {
	// ID is the unique identifier of the entry.
	ID string `json:"id" db:"id"`

	// UserID identifies the principal; empty when Anonymized is true.
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// Action is a short label such as "consent_granted".
	Action string `json:"action" db:"action"`

	// DataType and Purpose describe what the action touched, if applicable.
	DataType DataType `json:"data_type,omitempty" db:"data_type"`
	Purpose  Purpose  `json:"purpose,omitempty" db:"purpose"`

	// Timestamp is when the action happened.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	Anonymized      bool `json:"anonymized" db:"anonymized"`
	ConsentVerified bool `json:"consent_verified" db:"consent_verified"`
	ResultStored    bool `json:"result_stored" db:"result_stored"`
}

// AuditFilter narrows audit log listings. Zero values mean "any".
type AuditFilter struct {
	UserID string
	Since  time.Time
	Limit  int
}

// ConsentStatus summarizes a principal's consent for reports.
type ConsentStatus struct {
	Granted   bool       `json:"granted"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
	Purposes  []Purpose  `json:"purposes,omitempty"`
	DataTypes []DataType `json:"data_types,omitempty"`
}

// PrivacyReport describes what the system holds and has done with a
// principal's data.
type PrivacyReport struct {
	UserID          string         `json:"user_id"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Consent         ConsentStatus  `json:"consent"`
	AIRecordCount   int            `json:"ai_record_count"`
	AuditEntryCount int            `json:"audit_entry_count"`
	ActionCounts    map[string]int `json:"action_counts"`
	LastActivityAt  *time.Time     `json:"last_activity_at,omitempty"`
}
