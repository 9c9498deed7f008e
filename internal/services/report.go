package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/messagestack/apiserver/internal/storage"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// ReportService builds privacy reports describing what is held about a
// principal and what has been done with it.
type ReportService struct {
	ledger    *ConsentLedger
	audit     *AuditLog
	aiRecords AIRecordRepository
	digester  Digester
	storage   ObjectStore
	logger    *zap.Logger
	now       func() time.Time
}

func NewReportService(ledger *ConsentLedger, audit *AuditLog, aiRecords AIRecordRepository, digester Digester, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		ledger:    ledger,
		audit:     audit,
		aiRecords: aiRecords,
		digester:  digester,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithStorage enables Export and DeleteExport.
func (r *ReportService) WithStorage(s ObjectStore) *ReportService {
	r.storage = s
	return r
}

// ReportKey is the object key of a principal's exported report.
func ReportKey(userID string) string {
	return "privacy-reports/" + userID + ".json"
}

func (r *ReportService) Generate(ctx context.Context, userID string) (*types.PrivacyReport, error) {
	now := r.now()
	report := &types.PrivacyReport{
		UserID:       userID,
		GeneratedAt:  now,
		ActionCounts: map[string]int{},
	}

	record, err := r.ledger.Get(ctx, userID)
	switch {
	case err == nil:
		grantedAt := record.GrantedAt
		expiresAt := record.ExpiresAt()
		report.Consent = types.ConsentStatus{
			Granted:   record.Granted,
			GrantedAt: &grantedAt,
			ExpiresAt: &expiresAt,
			Expired:   record.Expired(now),
			Purposes:  record.Purposes,
			DataTypes: record.DataTypes,
		}
	case errors.Is(err, ErrNoConsent):
	default:
		return nil, err
	}

	count, err := r.aiRecords.CountByOwner(ctx, r.digester.Digest(userID))
	if err != nil {
		return nil, fmt.Errorf("count ai records: %w", err)
	}
	report.AIRecordCount = count

	entries, err := r.audit.List(ctx, types.AuditFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	report.AuditEntryCount = len(entries)
	for _, entry := range entries {
		report.ActionCounts[entry.Action]++
		if report.LastActivityAt == nil || entry.Timestamp.After(*report.LastActivityAt) {
			ts := entry.Timestamp
			report.LastActivityAt = &ts
		}
	}
	return report, nil
}

// Export uploads the principal's report and returns its object key.
func (r *ReportService) Export(ctx context.Context, userID string) (string, error) {
	if r.storage == nil {
		return "", ErrStorageDisabled
	}
	report, err := r.Generate(ctx, userID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	key := ReportKey(userID)
	if err := r.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	r.audit.Record(ctx, AuditEvent{UserID: userID, Action: ActionReportExported, ResultStored: true})
	r.logger.Info("privacy report exported", zap.String("user_id", userID), zap.String("key", key))
	return key, nil
}

// OpenExport returns the principal's last exported report. The caller
// closes the reader. ErrNoExport is returned when nothing was exported.
func (r *ReportService) OpenExport(ctx context.Context, userID string) (io.ReadCloser, error) {
	if r.storage == nil {
		return nil, ErrStorageDisabled
	}
	reader, err := r.storage.Get(ctx, ReportKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNoExport
		}
		return nil, fmt.Errorf("open report: %w", err)
	}
	return reader, nil
}

// DeleteExport removes the principal's exported report, if any.
func (r *ReportService) DeleteExport(ctx context.Context, userID string) error {
	if r.storage == nil {
		return ErrStorageDisabled
	}
	if err := r.storage.Delete(ctx, ReportKey(userID)); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	r.logger.Info("privacy report export deleted", zap.String("user_id", userID))
	return nil
}
