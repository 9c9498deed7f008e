package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/messagestack/apiserver/internal/cryptoutil"
	"github.com/messagestack/apiserver/internal/metrics"
	"github.com/messagestack/apiserver/internal/privacy"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

type AIRequest struct {
	UserID   string         `json:"-"`
	Purpose  types.Purpose  `json:"purpose"`
	DataType types.DataType `json:"data_type"`
	Payload  any            `json:"payload"`
}

// AIJob is published on ai.processing for downstream model workers.
type AIJob struct {
	RecordID string         `json:"record_id"`
	Purpose  types.Purpose  `json:"purpose"`
	DataType types.DataType `json:"data_type"`
	Payload  any            `json:"payload"`
}

// AIProcessor turns consented principal data into anonymized records
// that cannot be linked back to the principal.
type AIProcessor struct {
	records   AIRecordRepository
	ledger    *ConsentLedger
	cipher    ValueCipher
	digester  Digester
	audit     *AuditLog
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
}

func NewAIProcessor(records AIRecordRepository, ledger *ConsentLedger, cipher ValueCipher, digester Digester, audit *AuditLog, logger *zap.Logger) *AIProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIProcessor{
		records:  records,
		ledger:   ledger,
		cipher:   cipher,
		digester: digester,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
	}
}

func (a *AIProcessor) WithPublisher(p EventPublisher) *AIProcessor {
	a.publisher = p
	return a
}

func (a *AIProcessor) WithMetrics(m *metrics.Metrics) *AIProcessor {
	a.metrics = m
	return a
}

// Process checks consent, anonymizes the payload and stores the result.
// A denial is returned as *ConsentDeniedError.
func (a *AIProcessor) Process(ctx context.Context, req AIRequest) (*types.AnonymizedRecord, error) {
	var reasons []string
	if req.UserID == "" {
		reasons = append(reasons, "user id is required")
	}
	if !req.Purpose.Valid() {
		reasons = append(reasons, fmt.Sprintf("unknown purpose %q", req.Purpose))
	}
	if !req.DataType.Valid() {
		reasons = append(reasons, fmt.Sprintf("unknown data type %q", req.DataType))
	}
	if req.Payload == nil {
		reasons = append(reasons, "payload is required")
	}
	if len(reasons) > 0 {
		return nil, newValidationError(reasons...)
	}

	check, err := a.ledger.Check(ctx, req.UserID, req.Purpose, req.DataType)
	if err != nil {
		return nil, err
	}
	if !check.HasConsent {
		a.audit.Record(ctx, AuditEvent{
			UserID:   req.UserID,
			Action:   ActionAIProcessingDenied,
			DataType: req.DataType,
			Purpose:  req.Purpose,
		})
		return nil, &ConsentDeniedError{Reason: check.Reason}
	}

	original, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, newValidationError("payload must be JSON-encodable")
	}
	var normalized any
	if err := json.Unmarshal(original, &normalized); err != nil {
		return nil, newValidationError("payload must be JSON-encodable")
	}
	anonymized := privacy.AnonymizeValue(normalized)

	encrypted, err := a.cipher.EncryptJSON(anonymized)
	if err != nil {
		a.logger.Error("failed to encrypt ai record", zap.Error(err))
		return nil, ErrProcessing
	}

	record := types.AnonymizedRecord{
		ID:               a.idGen(),
		OwnerDigest:      a.digester.Digest(req.UserID),
		EncryptedPayload: encrypted,
		DataType:         req.DataType,
		Purpose:          req.Purpose,
		CreatedAt:        a.now(),
		OriginalHash:     cryptoutil.SHA256Hex(original),
	}
	if err := a.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store ai record: %w", err)
	}
	record.Payload = anonymized
	a.metrics.AIRecordCreated()

	a.audit.Record(ctx, AuditEvent{
		UserID:          req.UserID,
		Action:          ActionAIProcessing,
		DataType:        req.DataType,
		Purpose:         req.Purpose,
		Anonymized:      true,
		ConsentVerified: true,
		ResultStored:    true,
	})
	a.logger.Info("ai record stored",
		zap.String("record_id", record.ID),
		zap.String("purpose", string(record.Purpose)),
		zap.String("data_type", string(record.DataType)),
	)

	if a.publisher != nil {
		data, err := json.Marshal(AIJob{RecordID: record.ID, Purpose: record.Purpose, DataType: record.DataType, Payload: anonymized})
		if err == nil {
			_, err = a.publisher.Publish(ctx, ChannelAIProcessing, data, map[string]string{"purpose": string(record.Purpose)})
		}
		if err != nil {
			a.logger.Warn("failed to publish ai job", zap.String("record_id", record.ID), zap.Error(err))
		}
	}
	return &record, nil
}

// Get loads a record and decrypts its payload.
func (a *AIProcessor) Get(ctx context.Context, id string) (*types.AnonymizedRecord, error) {
	record, err := a.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, err := a.cipher.DecryptJSON(record.EncryptedPayload)
	if err != nil {
		a.logger.Warn("failed to decrypt ai record", zap.String("record_id", id), zap.Error(err))
		return nil, ErrProcessing
	}
	record.Payload = payload
	return &record, nil
}

// VerifyIntegrity reports whether original hashes to the record's OriginalHash.
func (a *AIProcessor) VerifyIntegrity(record types.AnonymizedRecord, original any) bool {
	data, err := json.Marshal(original)
	if err != nil {
		return false
	}
	return cryptoutil.SHA256Hex(data) == record.OriginalHash
}

// CleanupExpired purges records older than types.AIRecordRetention,
// regardless of the owner's consent retention.
func (a *AIProcessor) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-types.AIRecordRetention)
	deleted, err := a.records.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired ai records: %w", err)
	}
	a.metrics.Swept("ai_records", deleted)
	a.logger.Info("expired ai records deleted", zap.Int("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
