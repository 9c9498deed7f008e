package types

import (
	"slices"
	"time"
)

// Purpose is a processing purpose a principal can authorize.
type Purpose string

// Supported processing purposes.
const (
	PurposeOptimization         Purpose = "optimization"
	PurposeTrendAnalysis        Purpose = "trend-analysis"
	PurposeContentGeneration    Purpose = "content-generation"
	PurposeUserInsights         Purpose = "user-insights"
	PurposePerformanceAnalytics Purpose = "performance-analytics"
	PurposePersonalization      Purpose = "personalization"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeOptimization, PurposeTrendAnalysis, PurposeContentGeneration,
		PurposeUserInsights, PurposePerformanceAnalytics, PurposePersonalization:
		return true
	default:
		return false
	}
}

// DataType is a category of principal data covered by consent.
type DataType string

// Supported data types.
const (
	DataTypeSurveyResponses DataType = "survey-responses"
	DataTypeUserPreferences DataType = "user-preferences"
	DataTypeInteractionData DataType = "interaction-data"
	DataTypeDemographicData DataType = "demographic-data"
	DataTypeBehavioralData  DataType = "behavioral-data"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeSurveyResponses, DataTypeUserPreferences, DataTypeInteractionData,
		DataTypeDemographicData, DataTypeBehavioralData:
		return true
	default:
		return false
	}
}

// Consent retention bounds, in days.
const (
	DefaultConsentRetentionDays = 90
	MaxConsentRetentionDays     = 365
)

// ConsentRecord describes what a principal has authorized for automated
// processing of their data. There is at most one record per user; a new
// grant replaces the previous record and a revocation flips Granted.
type ConsentRecord struct {
	// ID is the unique identifier of this grant.
	ID string `json:"id" db:"id"`

	// UserID identifies the principal who granted consent.
	UserID string `json:"user_id" db:"user_id"`

	// Granted is false once the consent has been revoked.
	Granted bool `json:"granted" db:"granted"`

	// GrantedAt is when the consent was granted. Expiry is computed from it.
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`

	// UpdatedAt is the timestamp of the last grant or revocation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Purposes lists the authorized processing purposes.
	Purposes []Purpose `json:"purposes" db:"purposes"`

	// DataTypes lists the authorized data types.
	DataTypes []DataType `json:"data_types" db:"data_types"`

	// RetentionDays bounds the validity of the grant (at most 365).
	RetentionDays int `json:"retention_days" db:"retention_days"`

	// Revocable reports whether the principal may revoke this consent.
	Revocable bool `json:"revocable" db:"revocable"`
}

// ExpiresAt returns the instant after which the consent is no longer valid.
func (c ConsentRecord) ExpiresAt() time.Time {
	return c.GrantedAt.AddDate(0, 0, c.RetentionDays)
}

// Expired reports whether now is past the retention window.
func (c ConsentRecord) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt())
}

// Covers reports whether both purpose and dataType were authorized.
func (c ConsentRecord) Covers(purpose Purpose, dataType DataType) bool {
	return slices.Contains(c.Purposes, purpose) && slices.Contains(c.DataTypes, dataType)
}
