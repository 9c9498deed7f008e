package types

import "time"

// AnswerKind identifies how a survey answer is shaped and sanitized.
type AnswerKind string

// Supported answer kinds.
const (
	AnswerText           AnswerKind = "text"
	AnswerMultipleChoice AnswerKind = "multiple-choice"
	AnswerRating         AnswerKind = "rating"
	AnswerRanking        AnswerKind = "ranking"
	AnswerYesNo          AnswerKind = "yes-no"
	AnswerLikert         AnswerKind = "likert"
)

// Valid reports whether k is a known answer kind.
func (k AnswerKind) Valid() bool {
	switch k {
	case AnswerText, AnswerMultipleChoice, AnswerRating, AnswerRanking, AnswerYesNo, AnswerLikert:
		return true
	default:
		return false
	}
}

// DecryptionErrorMarker replaces an answer whose ciphertext could not be
// decrypted during bulk retrieval.
const DecryptionErrorMarker = "[DECRYPTION_ERROR]"

// ConsentPayload is the consent a respondent supplies alongside a submission.
// Only DataProcessing is enforced; the rest are forwarded into stored flags.
type ConsentPayload struct {
	DataProcessing          bool `json:"data_processing"`
	AIAnalysis              bool `json:"ai_analysis"`
	PublicInsights          bool `json:"public_insights"`
	MarketingCommunications bool `json:"marketing_communications"`
	DataRetention           bool `json:"data_retention"`
}

// PrivacySettings is the survey-level privacy configuration.
type PrivacySettings struct {
	// AllowAIProcessing permits responses to be prepared for AI analysis.
	AllowAIProcessing bool `json:"allow_ai_processing" yaml:"allow_ai_processing"`

	// AllowPublicInsights permits answers to be flagged public.
	AllowPublicInsights bool `json:"allow_public_insights" yaml:"allow_public_insights"`

	// AllowDataRetention permits responses whose respondent consented to
	// data retention to outlive a shorter sweep window.
	AllowDataRetention bool `json:"allow_data_retention" yaml:"allow_data_retention"`

	// RetentionPeriodDays is how long responses to the survey are kept.
	RetentionPeriodDays int `json:"retention_period_days" yaml:"retention_period_days"`

	// AnonymizeResponses strips PII from text answers and drops the
	// respondent's user id.
	AnonymizeResponses bool `json:"anonymize_responses" yaml:"anonymize_responses"`
}

// RawAnswer is a single answer as submitted by a client, before
// sanitization and encryption.
type RawAnswer struct {
	QuestionID string     `json:"question_id"`
	Value      any        `json:"value"`
	Kind       AnswerKind `json:"kind"`
	IsPublic   bool       `json:"is_public"`
}

// EncryptedAnswer is a single answer stored only in encrypted form.
// It has no existence outside its owning SurveyResponse.
type EncryptedAnswer struct {
	// QuestionID identifies the question that was answered.
	QuestionID string `json:"question_id"`

	// Ciphertext is the encrypted JSON encoding of the answer value.
	Ciphertext string `json:"ciphertext"`

	// Kind is the answer kind used during sanitization.
	Kind AnswerKind `json:"kind"`

	// IsPublic is true only when both the respondent and the survey's
	// privacy settings allowed public insights.
	IsPublic bool `json:"is_public"`
}

// SurveyResponse is one respondent's stored submission to a survey.
// Answer content is immutable after creation.
type SurveyResponse struct {
	// ID is the unique identifier of the response.
	ID string `json:"id" db:"id"`

	// SurveyID identifies the survey this response belongs to.
	SurveyID string `json:"survey_id" db:"survey_id"`

	// UserID identifies the respondent. It is empty when IsAnonymized is true.
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// Answers holds the encrypted answers in submission order.
	Answers []EncryptedAnswer `json:"answers" db:"answers"`

	// SubmittedAt is when the response was accepted.
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`

	// IPHash is a keyed hash of the source IP. The raw IP is never stored.
	IPHash string `json:"ip_hash" db:"ip_hash"`

	// UserAgent is the client's user-agent string.
	UserAgent string `json:"user_agent" db:"user_agent"`

	// IsAnonymized reports whether anonymization was applied.
	IsAnonymized bool `json:"is_anonymized" db:"is_anonymized"`

	// DataProcessingConsent mirrors the respondent's data processing consent.
	DataProcessingConsent bool `json:"data_processing_consent" db:"data_processing_consent"`

	// AIProcessingConsent mirrors the respondent's AI analysis consent.
	AIProcessingConsent bool `json:"ai_processing_consent" db:"ai_processing_consent"`

	// RetentionDays is the survey's retention period at submission time.
	// Zero defers to the sweep window.
	RetentionDays int `json:"retention_days" db:"retention_days"`

	// DataRetentionConsent is set when both the respondent and the survey
	// allowed retention, letting RetentionDays exceed the sweep window.
	DataRetentionConsent bool `json:"data_retention_consent" db:"data_retention_consent"`
}

// ExpiresAt returns when the response falls out of retention, given the
// sweep's own window in days. Without retention consent the shorter of
// the two windows applies.
func (r SurveyResponse) ExpiresAt(sweepDays int) time.Time {
	days := sweepDays
	switch {
	case r.RetentionDays <= 0:
	case r.DataRetentionConsent, r.RetentionDays < sweepDays:
		days = r.RetentionDays
	}
	return r.SubmittedAt.AddDate(0, 0, days)
}

// DecryptedAnswer is an answer returned from retrieval.
type DecryptedAnswer struct {
	QuestionID string     `json:"question_id"`
	Value      any        `json:"value"`
	Kind       AnswerKind `json:"kind"`
	IsPublic   bool       `json:"is_public"`
}

// DecryptedResponse is the administrative view of a stored response.
// Personal fields are only populated when explicitly requested.
type DecryptedResponse struct {
	ID                    string            `json:"id"`
	SurveyID              string            `json:"survey_id"`
	UserID                string            `json:"user_id,omitempty"`
	IPHash                string            `json:"ip_hash,omitempty"`
	UserAgent             string            `json:"user_agent,omitempty"`
	Answers               []DecryptedAnswer `json:"answers"`
	SubmittedAt           time.Time         `json:"submitted_at"`
	IsAnonymized          bool              `json:"is_anonymized"`
	DataProcessingConsent bool              `json:"data_processing_consent"`
	AIProcessingConsent   bool              `json:"ai_processing_consent"`
}

// PreparedAnswer is an anonymized, public answer ready for AI analysis.
type PreparedAnswer struct {
	QuestionID string     `json:"question_id"`
	Value      any        `json:"value"`
	Kind       AnswerKind `json:"kind"`
}

// PreparedResponse is an AI-ready response. ID is a fresh anonymous id,
// unrelated to the stored response id.
type PreparedResponse struct {
	ID          string           `json:"id"`
	SurveyID    string           `json:"survey_id"`
	Answers     []PreparedAnswer `json:"answers"`
	SubmittedAt time.Time        `json:"submitted_at"`
}
