package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/messagestack/apiserver/types"
)

// ConsentRepository handles persistence for consent records.
// There is at most one row per user.
type ConsentRepository struct {
	db *sql.DB
}

func NewConsentRepository(db *sql.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) GetByUser(ctx context.Context, userID string) (types.ConsentRecord, error) {
	const query = `
		SELECT id, user_id, granted, granted_at, updated_at, purposes, data_types, retention_days, revocable
		FROM consent_records
		WHERE user_id = $1`
	var record types.ConsentRecord
	var purposesJSON, dataTypesJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&record.ID,
		&record.UserID,
		&record.Granted,
		&record.GrantedAt,
		&record.UpdatedAt,
		&purposesJSON,
		&dataTypesJSON,
		&record.RetentionDays,
		&record.Revocable,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ConsentRecord{}, ErrNotFound
		}
		return types.ConsentRecord{}, err
	}

	if err := decodeConsentScope(&record, purposesJSON, dataTypesJSON); err != nil {
		return types.ConsentRecord{}, err
	}
	return record, nil
}

// decodeConsentScope fills the purpose and data type sets from their JSONB
// columns. A corrupt column is an error, never an empty scope.
func decodeConsentScope(record *types.ConsentRecord, purposesJSON, dataTypesJSON []byte) error {
	if err := json.Unmarshal(purposesJSON, &record.Purposes); err != nil {
		return fmt.Errorf("decode purposes of consent %s: %w", record.ID, err)
	}
	if err := json.Unmarshal(dataTypesJSON, &record.DataTypes); err != nil {
		return fmt.Errorf("decode data types of consent %s: %w", record.ID, err)
	}
	return nil
}

// Replace stores record as the user's only consent record, overwriting
// any previous one wholesale.
func (r *ConsentRepository) Replace(ctx context.Context, record types.ConsentRecord) (types.ConsentRecord, error) {
	purposesJSON, err := json.Marshal(record.Purposes)
	if err != nil {
		return types.ConsentRecord{}, err
	}
	dataTypesJSON, err := json.Marshal(record.DataTypes)
	if err != nil {
		return types.ConsentRecord{}, err
	}

	const query = `
		INSERT INTO consent_records (id, user_id, granted, granted_at, updated_at, purposes, data_types, retention_days, revocable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id,
			granted = EXCLUDED.granted,
			granted_at = EXCLUDED.granted_at,
			updated_at = EXCLUDED.updated_at,
			purposes = EXCLUDED.purposes,
			data_types = EXCLUDED.data_types,
			retention_days = EXCLUDED.retention_days,
			revocable = EXCLUDED.revocable`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.Granted,
		record.GrantedAt,
		record.UpdatedAt,
		purposesJSON,
		dataTypesJSON,
		record.RetentionDays,
		record.Revocable,
	); err != nil {
		return types.ConsentRecord{}, err
	}
	return record, nil
}

// SetGranted flips the granted flag of the user's record without
// deleting it.
func (r *ConsentRepository) SetGranted(ctx context.Context, userID string, granted bool, at time.Time) error {
	const query = `UPDATE consent_records SET granted = $1, updated_at = $2 WHERE user_id = $3`
	result, err := r.db.ExecContext(ctx, query, granted, at, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
