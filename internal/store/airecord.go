package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/messagestack/apiserver/types"
)

// AIRecordRepository handles persistence for anonymized AI records.
type AIRecordRepository struct {
	db *sql.DB
}

func NewAIRecordRepository(db *sql.DB) *AIRecordRepository {
	return &AIRecordRepository{db: db}
}

func (r *AIRecordRepository) Create(ctx context.Context, record types.AnonymizedRecord) error {
	const query = `
		INSERT INTO ai_records (id, owner_digest, payload, data_type, purpose, created_at, original_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.OwnerDigest,
		record.EncryptedPayload,
		string(record.DataType),
		string(record.Purpose),
		record.CreatedAt,
		record.OriginalHash,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *AIRecordRepository) Get(ctx context.Context, id string) (types.AnonymizedRecord, error) {
	const query = `
		SELECT id, owner_digest, payload, data_type, purpose, created_at, original_hash
		FROM ai_records
		WHERE id = $1`
	var record types.AnonymizedRecord
	var dataType, purpose string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.OwnerDigest,
		&record.EncryptedPayload,
		&dataType,
		&purpose,
		&record.CreatedAt,
		&record.OriginalHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AnonymizedRecord{}, ErrNotFound
		}
		return types.AnonymizedRecord{}, err
	}
	record.DataType = types.DataType(dataType)
	record.Purpose = types.Purpose(purpose)
	return record, nil
}

func (r *AIRecordRepository) CountByOwner(ctx context.Context, ownerDigest string) (int, error) {
	const query = `SELECT COUNT(1) FROM ai_records WHERE owner_digest = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, query, ownerDigest).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *AIRecordRepository) DeleteByOwner(ctx context.Context, ownerDigest string) (int, error) {
	const query = `DELETE FROM ai_records WHERE owner_digest = $1`
	return execCount(ctx, r.db, query, ownerDigest)
}

func (r *AIRecordRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `DELETE FROM ai_records WHERE created_at < $1`
	return execCount(ctx, r.db, query, cutoff)
}
