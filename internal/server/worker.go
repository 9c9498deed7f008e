package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/messagestack/apiserver/internal/mq"
	"github.com/messagestack/apiserver/internal/services"
	"go.uber.org/zap"
)

// RunRevocationWorker consumes consent.revoked events and removes the
// principal's exported privacy report. It blocks until ctx is done.
func (d *Dependencies) RunRevocationWorker(ctx context.Context) error {
	logger := d.Logger.Named("worker")
	logger.Info("revocation worker started", zap.String("channel", services.ChannelConsentRevoked))
	err := d.Events.Subscribe(ctx, services.ChannelConsentRevoked, func(ctx context.Context, msg mq.Message) error {
		return d.handleRevocation(ctx, logger, msg)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dependencies) handleRevocation(ctx context.Context, logger *zap.Logger, msg mq.Message) error {
	var event services.RevocationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.UserID == "" {
		// Malformed events are acknowledged; redelivery cannot fix them.
		logger.Warn("dropping malformed revocation event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	err := d.Reports.DeleteExport(ctx, event.UserID)
	switch {
	case err == nil:
		logger.Info("revocation processed", zap.String("user_id", event.UserID), zap.String("message_id", msg.ID))
		return nil
	case errors.Is(err, services.ErrStorageDisabled):
		return nil
	default:
		logger.Error("revocation cleanup failed", zap.String("user_id", event.UserID), zap.Error(err))
		return err
	}
}

// SweepOptions overrides the configured retention windows. Zero values
// fall back to the configuration.
type SweepOptions struct {
	ResponseDays int
	AuditDays    int
}

// SweepResult counts the rows each retention pass deleted.
type SweepResult struct {
	Responses int
	AIRecords int
	Audit     int
}

// Sweep runs every retention pass once. It stops at the first failure.
func (d *Dependencies) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	if opts.ResponseDays <= 0 {
		opts.ResponseDays = d.Config.Retention.ResponseDays
	}
	if opts.AuditDays <= 0 {
		opts.AuditDays = d.Config.Retention.AuditDays
	}

	var (
		result SweepResult
		err    error
	)
	if result.Responses, err = d.Pipeline.CleanupExpired(ctx, opts.ResponseDays); err != nil {
		return result, fmt.Errorf("sweep responses: %w", err)
	}
	if result.AIRecords, err = d.AI.CleanupExpired(ctx); err != nil {
		return result, fmt.Errorf("sweep ai records: %w", err)
	}
	if result.Audit, err = d.Audit.Prune(ctx, opts.AuditDays); err != nil {
		return result, fmt.Errorf("sweep audit log: %w", err)
	}
	d.Metrics.Swept("audit", result.Audit)
	return result, nil
}
