package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/messagestack/apiserver/types"
)

const defaultAuditListLimit = 500

// AuditRepository handles persistence for the append-only audit log.
// It exposes no update path.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry types.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (id, user_id, action, data_type, purpose, timestamp, anonymized, consent_verified, result_stored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		nullableString(entry.UserID),
		entry.Action,
		string(entry.DataType),
		string(entry.Purpose),
		entry.Timestamp,
		entry.Anonymized,
		entry.ConsentVerified,
		entry.ResultStored,
	)
	return err
}

// List returns audit entries matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultAuditListLimit
	}
	args = append(args, limit)

	query := `
		SELECT id, user_id, action, data_type, purpose, timestamp, anonymized, consent_verified, result_stored
		FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0)
	for rows.Next() {
		var entry types.AuditEntry
		var userID sql.NullString
		var dataType, purpose string
		if err := rows.Scan(
			&entry.ID,
			&userID,
			&entry.Action,
			&dataType,
			&purpose,
			&entry.Timestamp,
			&entry.Anonymized,
			&entry.ConsentVerified,
			&entry.ResultStored,
		); err != nil {
			return nil, err
		}
		entry.UserID = userID.String
		entry.DataType = types.DataType(dataType)
		entry.Purpose = types.Purpose(purpose)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *AuditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `DELETE FROM audit_log WHERE timestamp < $1`
	return execCount(ctx, r.db, query, cutoff)
}
