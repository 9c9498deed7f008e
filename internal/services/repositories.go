package services

import (
	"context"
	"io"
	"time"

	"github.com/messagestack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// ConsentRepository defines persistence operations for consent records.
type ConsentRepository interface {
	GetByUser(ctx context.Context, userID string) (types.ConsentRecord, error)
	Replace(ctx context.Context, record types.ConsentRecord) (types.ConsentRecord, error)
	SetGranted(ctx context.Context, userID string, granted bool, at time.Time) error
}

// ResponseRepository defines persistence operations for survey responses.
type ResponseRepository interface {
	Create(ctx context.Context, response types.SurveyResponse) (types.SurveyResponse, error)
	ListBySurvey(ctx context.Context, surveyID string) ([]types.SurveyResponse, error)
	DeleteExpired(ctx context.Context, now time.Time, sweepDays int) (int, error)
}

// AIRecordRepository defines persistence operations for anonymized AI records.
type AIRecordRepository interface {
	Create(ctx context.Context, record types.AnonymizedRecord) error
	Get(ctx context.Context, id string) (types.AnonymizedRecord, error)
	CountByOwner(ctx context.Context, ownerDigest string) (int, error)
	DeleteByOwner(ctx context.Context, ownerDigest string) (int, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditRepository defines the append-only audit log operations.
type AuditRepository interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// EventPublisher sends events to a broker channel. *mq.MQ satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ObjectStore is the subset of object storage used for report exports.
// *storage.Storage satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ValueCipher encrypts JSON-encodable values. *cryptoutil.Cipher satisfies it.
type ValueCipher interface {
	EncryptJSON(v any) (string, error)
	DecryptJSON(ciphertext string) (any, error)
}

// Digester computes keyed one-way digests. *cryptoutil.Digester satisfies it.
type Digester interface {
	Digest(value string) string
}

// Broker channels.
const (
	ChannelAudit          = "privacy.audit"
	ChannelConsentRevoked = "consent.revoked"
	ChannelAIProcessing   = "ai.processing"
)
