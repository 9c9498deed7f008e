package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/messagestack/apiserver/types"
)

// ResponseRepository handles persistence for survey responses.
type ResponseRepository struct {
	db *sql.DB
}

func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

func (r *ResponseRepository) Create(ctx context.Context, response types.SurveyResponse) (types.SurveyResponse, error) {
	answersJSON, err := json.Marshal(response.Answers)
	if err != nil {
		return types.SurveyResponse{}, err
	}

	const query = `
		INSERT INTO survey_responses (
			id, survey_id, user_id, answers, submitted_at, ip_hash, user_agent,
			is_anonymized, data_processing_consent, ai_processing_consent,
			retention_days, data_retention_consent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		response.ID,
		response.SurveyID,
		nullableString(response.UserID),
		answersJSON,
		response.SubmittedAt,
		response.IPHash,
		response.UserAgent,
		response.IsAnonymized,
		response.DataProcessingConsent,
		response.AIProcessingConsent,
		response.RetentionDays,
		response.DataRetentionConsent,
	); err != nil {
		if isUniqueViolation(err) {
			return types.SurveyResponse{}, ErrConflict
		}
		return types.SurveyResponse{}, err
	}
	return response, nil
}

// ListBySurvey returns the responses of a survey in submission order.
// An empty surveyID lists every response.
func (r *ResponseRepository) ListBySurvey(ctx context.Context, surveyID string) ([]types.SurveyResponse, error) {
	const query = `
		SELECT id, survey_id, user_id, answers, submitted_at, ip_hash, user_agent,
		       is_anonymized, data_processing_consent, ai_processing_consent,
		       retention_days, data_retention_consent
		FROM survey_responses
		WHERE ($1 = '' OR survey_id = $1)
		ORDER BY submitted_at, id`
	rows, err := r.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make([]types.SurveyResponse, 0)
	for rows.Next() {
		var response types.SurveyResponse
		var userID sql.NullString
		var answersJSON []byte
		if err := rows.Scan(
			&response.ID,
			&response.SurveyID,
			&userID,
			&answersJSON,
			&response.SubmittedAt,
			&response.IPHash,
			&response.UserAgent,
			&response.IsAnonymized,
			&response.DataProcessingConsent,
			&response.AIProcessingConsent,
			&response.RetentionDays,
			&response.DataRetentionConsent,
		); err != nil {
			return nil, err
		}
		response.UserID = userID.String
		if err := json.Unmarshal(answersJSON, &response.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of response %s: %w", response.ID, err)
		}
		responses = append(responses, response)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}

// DeleteExpired removes every response whose retention window ended
// before now. The window rule matches types.SurveyResponse.ExpiresAt.
func (r *ResponseRepository) DeleteExpired(ctx context.Context, now time.Time, sweepDays int) (int, error) {
	const query = `
		DELETE FROM survey_responses
		WHERE submitted_at + make_interval(days => CASE
			WHEN retention_days <= 0 THEN $2::int
			WHEN data_retention_consent THEN retention_days
			ELSE LEAST(retention_days, $2::int)
		END) < $1`
	return execCount(ctx, r.db, query, now, sweepDays)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func execCount(ctx context.Context, db *sql.DB, query string, args ...any) (int, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
