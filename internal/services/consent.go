package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/messagestack/apiserver/internal/metrics"
	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// Consent check denial reasons, in evaluation order.
const (
	ReasonNoConsent  = "no valid consent found"
	ReasonExpired    = "consent expired"
	ReasonNotCovered = "consent does not cover requested purpose or data type"
)

// ConsentCheck is the result of a consent lookup. Denials are values.
type ConsentCheck struct {
	HasConsent bool                 `json:"has_consent"`
	Record     *types.ConsentRecord `json:"consent_record,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

type GrantRequest struct {
	UserID        string           `json:"-"`
	Purposes      []types.Purpose  `json:"purposes"`
	DataTypes     []types.DataType `json:"data_types"`
	RetentionDays int              `json:"retention_days"`
}

// RevocationEvent is published on consent.revoked.
type RevocationEvent struct {
	UserID    string    `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// ConsentLedger stores one consent record per principal and answers
// whether a purpose and data type are currently authorized.
type ConsentLedger struct {
	repo      ConsentRepository
	aiRecords AIRecordRepository
	digester  Digester
	audit     *AuditLog
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
}

func NewConsentLedger(repo ConsentRepository, aiRecords AIRecordRepository, digester Digester, audit *AuditLog, logger *zap.Logger) *ConsentLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsentLedger{
		repo:      repo,
		aiRecords: aiRecords,
		digester:  digester,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     uuid.NewString,
	}
}

func (l *ConsentLedger) WithPublisher(p EventPublisher) *ConsentLedger {
	l.publisher = p
	return l
}

func (l *ConsentLedger) WithMetrics(m *metrics.Metrics) *ConsentLedger {
	l.metrics = m
	return l
}

// Grant replaces the principal's consent record and returns the new id.
func (l *ConsentLedger) Grant(ctx context.Context, req GrantRequest) (string, error) {
	if req.RetentionDays == 0 {
		req.RetentionDays = types.DefaultConsentRetentionDays
	}

	var reasons []string
	if req.UserID == "" {
		reasons = append(reasons, "user id is required")
	}
	purposes, bad := dedupePurposes(req.Purposes)
	reasons = append(reasons, bad...)
	if len(req.Purposes) == 0 {
		reasons = append(reasons, "at least one purpose is required")
	}
	dataTypes, bad := dedupeDataTypes(req.DataTypes)
	reasons = append(reasons, bad...)
	if len(req.DataTypes) == 0 {
		reasons = append(reasons, "at least one data type is required")
	}
	if req.RetentionDays < 1 || req.RetentionDays > types.MaxConsentRetentionDays {
		reasons = append(reasons, fmt.Sprintf("retention days must be between 1 and %d", types.MaxConsentRetentionDays))
	}
	if len(reasons) > 0 {
		return "", newValidationError(reasons...)
	}

	now := l.now()
	record, err := l.repo.Replace(ctx, types.ConsentRecord{
		ID:            l.idGen(),
		UserID:        req.UserID,
		Granted:       true,
		GrantedAt:     now,
		UpdatedAt:     now,
		Purposes:      purposes,
		DataTypes:     dataTypes,
		RetentionDays: req.RetentionDays,
		Revocable:     true,
	})
	if err != nil {
		return "", fmt.Errorf("store consent: %w", err)
	}

	l.audit.Record(ctx, AuditEvent{UserID: req.UserID, Action: ActionConsentGranted, ConsentVerified: true, ResultStored: true})
	l.logger.Info("consent granted",
		zap.String("user_id", req.UserID),
		zap.String("consent_id", record.ID),
		zap.Int("purposes", len(purposes)),
		zap.Int("data_types", len(dataTypes)),
		zap.Int("retention_days", req.RetentionDays),
	)
	return record.ID, nil
}

// Revoke withdraws the principal's consent and deletes every anonymized
// AI record derived from their data.
func (l *ConsentLedger) Revoke(ctx context.Context, userID string) error {
	record, err := l.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoConsent
		}
		return fmt.Errorf("load consent: %w", err)
	}
	if !record.Revocable {
		return ErrForbidden
	}

	now := l.now()
	if err := l.repo.SetGranted(ctx, userID, false, now); err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}

	purged := 0
	if l.aiRecords != nil && l.digester != nil {
		purged, err = l.aiRecords.DeleteByOwner(ctx, l.digester.Digest(userID))
		if err != nil {
			return fmt.Errorf("purge ai records: %w", err)
		}
	}

	l.audit.Record(ctx, AuditEvent{UserID: userID, Action: ActionConsentRevoked, ResultStored: true})
	l.logger.Info("consent revoked", zap.String("user_id", userID), zap.Int("ai_records_purged", purged))

	if l.publisher != nil {
		data, err := json.Marshal(RevocationEvent{UserID: userID, RevokedAt: now})
		if err == nil {
			_, err = l.publisher.Publish(ctx, ChannelConsentRevoked, data, nil)
		}
		if err != nil {
			l.logger.Warn("failed to publish revocation", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Check evaluates existence, then expiry, then coverage.
func (l *ConsentLedger) Check(ctx context.Context, userID string, purpose types.Purpose, dataType types.DataType) (ConsentCheck, error) {
	result, err := l.check(ctx, userID, purpose, dataType)
	if err != nil {
		return ConsentCheck{}, err
	}
	outcome := "allowed"
	if !result.HasConsent {
		outcome = result.Reason
	}
	l.metrics.ConsentChecked(outcome)
	return result, nil
}

func (l *ConsentLedger) check(ctx context.Context, userID string, purpose types.Purpose, dataType types.DataType) (ConsentCheck, error) {
	if userID == "" {
		return ConsentCheck{Reason: ReasonNoConsent}, nil
	}
	record, err := l.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ConsentCheck{Reason: ReasonNoConsent}, nil
		}
		return ConsentCheck{}, fmt.Errorf("load consent: %w", err)
	}
	if !record.Granted {
		return ConsentCheck{Reason: ReasonNoConsent}, nil
	}
	if record.Expired(l.now()) {
		return ConsentCheck{Record: &record, Reason: ReasonExpired}, nil
	}
	if !record.Covers(purpose, dataType) {
		return ConsentCheck{Record: &record, Reason: ReasonNotCovered}, nil
	}
	return ConsentCheck{HasConsent: true, Record: &record}, nil
}

// Get returns the principal's current consent record, granted or not.
func (l *ConsentLedger) Get(ctx context.Context, userID string) (types.ConsentRecord, error) {
	record, err := l.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ConsentRecord{}, ErrNoConsent
		}
		return types.ConsentRecord{}, fmt.Errorf("load consent: %w", err)
	}
	return record, nil
}

func dedupePurposes(in []types.Purpose) ([]types.Purpose, []string) {
	seen := make(map[types.Purpose]bool, len(in))
	out := make([]types.Purpose, 0, len(in))
	var reasons []string
	for _, p := range in {
		if !p.Valid() {
			reasons = append(reasons, fmt.Sprintf("unknown purpose %q", p))
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, reasons
}

func dedupeDataTypes(in []types.DataType) ([]types.DataType, []string) {
	seen := make(map[types.DataType]bool, len(in))
	out := make([]types.DataType, 0, len(in))
	var reasons []string
	for _, d := range in {
		if !d.Valid() {
			reasons = append(reasons, fmt.Sprintf("unknown data type %q", d))
			continue
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, reasons
}
