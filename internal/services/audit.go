package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// DefaultAuditRetentionDays bounds how long audit entries are kept.
const DefaultAuditRetentionDays = 365

// Audit actions.
const (
	ActionUserRegistered     = "user_registered"
	ActionUserLogin          = "user_login"
	ActionPasswordChanged    = "password_changed"
	ActionConsentGranted     = "consent_granted"
	ActionConsentRevoked     = "consent_revoked"
	ActionSurveySubmitted    = "survey_submitted"
	ActionResponsesRetrieved = "responses_retrieved"
	ActionAIDatasetPrepared  = "ai_dataset_prepared"
	ActionAIProcessing       = "ai_processing"
	ActionAIProcessingDenied = "ai_processing_denied"
	ActionReportExported     = "privacy_report_exported"
)

// AuditEvent describes an action to record. It never carries data content.
type AuditEvent struct {
	UserID          string
	Action          string
	DataType        types.DataType
	Purpose         types.Purpose
	Anonymized      bool
	ConsentVerified bool
	ResultStored    bool
}

// AuditLog is the append-only record of privacy-relevant actions.
type AuditLog struct {
	repo      AuditRepository
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
}

func NewAuditLog(repo AuditRepository, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  uuid.NewString,
	}
}

// WithPublisher mirrors every recorded entry to the privacy.audit channel.
func (a *AuditLog) WithPublisher(p EventPublisher) *AuditLog {
	a.publisher = p
	return a
}

// Record appends an entry. The user id is dropped when the event is
// anonymized. Persistence failures are logged and do not fail the caller.
func (a *AuditLog) Record(ctx context.Context, ev AuditEvent) {
	if a == nil {
		return
	}
	entry := types.AuditEntry{
		ID:              a.idGen(),
		UserID:          ev.UserID,
		Action:          ev.Action,
		DataType:        ev.DataType,
		Purpose:         ev.Purpose,
		Timestamp:       a.now(),
		Anonymized:      ev.Anonymized,
		ConsentVerified: ev.ConsentVerified,
		ResultStored:    ev.ResultStored,
	}
	if entry.Anonymized {
		entry.UserID = ""
	}

	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Error("failed to append audit entry",
			zap.String("audit_id", entry.ID),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return
	}

	if a.publisher == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("failed to encode audit event", zap.String("audit_id", entry.ID), zap.Error(err))
		return
	}
	if _, err := a.publisher.Publish(ctx, ChannelAudit, data, map[string]string{"action": entry.Action}); err != nil {
		a.logger.Warn("failed to publish audit event", zap.String("audit_id", entry.ID), zap.Error(err))
	}
}

// List returns entries newest first.
func (a *AuditLog) List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	return a.repo.List(ctx, filter)
}

// Prune deletes entries older than retentionDays (default 365).
func (a *AuditLog) Prune(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultAuditRetentionDays
	}
	cutoff := a.now().AddDate(0, 0, -retentionDays)
	deleted, err := a.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.logger.Info("pruned audit log", zap.Int("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
