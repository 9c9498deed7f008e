package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/messagestack/apiserver/internal/metrics"
	"github.com/messagestack/apiserver/internal/privacy"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// DefaultResponseRetentionDays is used by CleanupExpired when no
// retention is given.
const DefaultResponseRetentionDays = 365

// SubmissionRequest is one survey submission as received from a client.
type SubmissionRequest struct {
	SurveyID  string
	UserID    string
	Answers   []types.RawAnswer
	Consent   types.ConsentPayload
	Privacy   types.PrivacySettings
	IPAddress string
	UserAgent string
}

type RetrieveOptions struct {
	SurveyID        string
	IncludePersonal bool
}

// SurveyPipeline validates, sanitizes, anonymizes and encrypts survey
// responses before they are stored, and controls every read path.
type SurveyPipeline struct {
	responses ResponseRepository
	ledger    *ConsentLedger
	cipher    ValueCipher
	digester  Digester
	audit     *AuditLog
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
}

func NewSurveyPipeline(responses ResponseRepository, ledger *ConsentLedger, cipher ValueCipher, digester Digester, audit *AuditLog, logger *zap.Logger) *SurveyPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurveyPipeline{
		responses: responses,
		ledger:    ledger,
		cipher:    cipher,
		digester:  digester,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     uuid.NewString,
	}
}

func (p *SurveyPipeline) WithMetrics(m *metrics.Metrics) *SurveyPipeline {
	p.metrics = m
	return p
}

// Submit stores a response and returns its id. Nothing is persisted
// unless every answer validates and encrypts.
func (p *SurveyPipeline) Submit(ctx context.Context, req SubmissionRequest) (string, error) {
	id, err := p.submit(ctx, req)
	if err != nil {
		p.metrics.Submission("rejected")
		return "", err
	}
	p.metrics.Submission("accepted")
	return id, nil
}

func (p *SurveyPipeline) submit(ctx context.Context, req SubmissionRequest) (string, error) {
	if !req.Consent.DataProcessing {
		return "", newValidationError("data processing consent is required")
	}

	var reasons []string
	if req.SurveyID == "" {
		reasons = append(reasons, "survey id is required")
	}
	if len(req.Answers) == 0 {
		reasons = append(reasons, "at least one answer is required")
	}
	values := make([]any, len(req.Answers))
	for i, answer := range req.Answers {
		if answer.QuestionID == "" {
			reasons = append(reasons, fmt.Sprintf("answer %d: question id is required", i))
			continue
		}
		value, err := sanitizeAnswer(answer)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("answer %d (%s): %v", i, answer.QuestionID, err))
			continue
		}
		values[i] = value
	}
	if len(reasons) > 0 {
		return "", newValidationError(reasons...)
	}

	anonymize := req.Privacy.AnonymizeResponses
	allowPublic := req.Privacy.AllowPublicInsights && req.Consent.PublicInsights
	encrypted := make([]types.EncryptedAnswer, len(req.Answers))
	for i, answer := range req.Answers {
		value := values[i]
		if anonymize && answer.Kind == types.AnswerText {
			value = privacy.AnonymizeValue(value)
		}
		ciphertext, err := p.cipher.EncryptJSON(value)
		if err != nil {
			p.logger.Error("failed to encrypt answer",
				zap.String("survey_id", req.SurveyID),
				zap.String("question_id", answer.QuestionID),
				zap.Error(err),
			)
			return "", ErrProcessing
		}
		encrypted[i] = types.EncryptedAnswer{
			QuestionID: answer.QuestionID,
			Ciphertext: ciphertext,
			Kind:       answer.Kind,
			IsPublic:   answer.IsPublic && allowPublic,
		}
	}

	response := types.SurveyResponse{
		ID:                    p.idGen(),
		SurveyID:              req.SurveyID,
		Answers:               encrypted,
		SubmittedAt:           p.now(),
		IPHash:                p.digester.Digest(req.IPAddress),
		UserAgent:             req.UserAgent,
		IsAnonymized:          anonymize,
		DataProcessingConsent: true,
		AIProcessingConsent:   req.Consent.AIAnalysis && req.Privacy.AllowAIProcessing,
		RetentionDays:         req.Privacy.RetentionPeriodDays,
		DataRetentionConsent:  req.Consent.DataRetention && req.Privacy.AllowDataRetention,
	}
	if !anonymize {
		response.UserID = req.UserID
	}

	stored, err := p.responses.Create(ctx, response)
	if err != nil {
		return "", fmt.Errorf("store response: %w", err)
	}

	p.audit.Record(ctx, AuditEvent{
		UserID:          stored.UserID,
		Action:          ActionSurveySubmitted,
		DataType:        types.DataTypeSurveyResponses,
		Anonymized:      stored.IsAnonymized,
		ConsentVerified: true,
		ResultStored:    true,
	})
	p.logger.Info("survey response stored",
		zap.String("response_id", stored.ID),
		zap.String("survey_id", stored.SurveyID),
		zap.Int("answers", len(stored.Answers)),
		zap.Bool("anonymized", stored.IsAnonymized),
		zap.Bool("ai_consent", stored.AIProcessingConsent),
	)
	return stored.ID, nil
}

// Retrieve decrypts responses for a consultant. Answers that fail to
// decrypt are replaced by types.DecryptionErrorMarker.
func (p *SurveyPipeline) Retrieve(ctx context.Context, caller types.Session, opts RetrieveOptions) ([]types.DecryptedResponse, error) {
	if !caller.IsConsultant() {
		return nil, ErrForbidden
	}

	responses, err := p.responses.ListBySurvey(ctx, opts.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	out := make([]types.DecryptedResponse, 0, len(responses))
	failures := 0
	for _, response := range responses {
		decrypted := types.DecryptedResponse{
			ID:                    response.ID,
			SurveyID:              response.SurveyID,
			Answers:               make([]types.DecryptedAnswer, 0, len(response.Answers)),
			SubmittedAt:           response.SubmittedAt,
			IsAnonymized:          response.IsAnonymized,
			DataProcessingConsent: response.DataProcessingConsent,
			AIProcessingConsent:   response.AIProcessingConsent,
		}
		if opts.IncludePersonal {
			decrypted.UserID = response.UserID
			decrypted.IPHash = response.IPHash
			decrypted.UserAgent = response.UserAgent
		}
		for _, answer := range response.Answers {
			value, err := p.cipher.DecryptJSON(answer.Ciphertext)
			if err != nil {
				failures++
				p.logger.Warn("failed to decrypt answer",
					zap.String("response_id", response.ID),
					zap.String("question_id", answer.QuestionID),
					zap.Error(err),
				)
				value = types.DecryptionErrorMarker
			}
			decrypted.Answers = append(decrypted.Answers, types.DecryptedAnswer{
				QuestionID: answer.QuestionID,
				Value:      value,
				Kind:       answer.Kind,
				IsPublic:   answer.IsPublic,
			})
		}
		out = append(out, decrypted)
	}

	p.audit.Record(ctx, AuditEvent{
		UserID:       caller.UserID,
		Action:       ActionResponsesRetrieved,
		DataType:     types.DataTypeSurveyResponses,
		ResultStored: false,
	})
	p.logger.Info("survey responses retrieved",
		zap.String("survey_id", opts.SurveyID),
		zap.String("caller_id", caller.UserID),
		zap.Int("responses", len(out)),
		zap.Int("decrypt_failures", failures),
		zap.Bool("include_personal", opts.IncludePersonal),
	)
	return out, nil
}

// PrepareForAI returns the AI-eligible view of a survey: only responses
// whose submitter allowed AI analysis, only public answers, re-anonymized
// and re-keyed under fresh ids. Responses linked to a principal are also
// dropped unless the principal's ledger consent covers survey insights.
func (p *SurveyPipeline) PrepareForAI(ctx context.Context, surveyID string) ([]types.PreparedResponse, error) {
	responses, err := p.responses.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	out := make([]types.PreparedResponse, 0)
	for _, response := range responses {
		if !response.AIProcessingConsent {
			continue
		}
		if response.UserID != "" && p.ledger != nil {
			check, err := p.ledger.Check(ctx, response.UserID, types.PurposeUserInsights, types.DataTypeSurveyResponses)
			if err != nil {
				return nil, err
			}
			if !check.HasConsent {
				p.logger.Debug("skipping response without ledger consent",
					zap.String("response_id", response.ID),
					zap.String("reason", check.Reason),
				)
				continue
			}
		}

		prepared := types.PreparedResponse{
			ID:          p.idGen(),
			SurveyID:    response.SurveyID,
			SubmittedAt: response.SubmittedAt,
		}
		for _, answer := range response.Answers {
			if !answer.IsPublic {
				continue
			}
			value, err := p.cipher.DecryptJSON(answer.Ciphertext)
			if err != nil {
				p.logger.Warn("failed to decrypt answer",
					zap.String("response_id", response.ID),
					zap.String("question_id", answer.QuestionID),
					zap.Error(err),
				)
				continue
			}
			prepared.Answers = append(prepared.Answers, types.PreparedAnswer{
				QuestionID: answer.QuestionID,
				Value:      privacy.AnonymizeValue(value),
				Kind:       answer.Kind,
			})
		}
		if len(prepared.Answers) == 0 {
			continue
		}
		out = append(out, prepared)
	}

	p.audit.Record(ctx, AuditEvent{
		Action:          ActionAIDatasetPrepared,
		DataType:        types.DataTypeSurveyResponses,
		Purpose:         types.PurposeUserInsights,
		Anonymized:      true,
		ConsentVerified: true,
	})
	p.logger.Info("ai dataset prepared",
		zap.String("survey_id", surveyID),
		zap.Int("eligible", len(out)),
		zap.Int("total", len(responses)),
	)
	return out, nil
}

// CleanupExpired deletes responses past their retention window. Each
// response carries its survey's window; retentionDays (default 365) is the
// sweep window, see types.SurveyResponse.ExpiresAt. Running it twice
// deletes nothing the second time.
func (p *SurveyPipeline) CleanupExpired(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultResponseRetentionDays
	}
	now := p.now()
	deleted, err := p.responses.DeleteExpired(ctx, now, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("delete expired responses: %w", err)
	}
	p.metrics.Swept("responses", deleted)
	p.logger.Info("expired survey responses deleted",
		zap.Int("deleted", deleted),
		zap.Int("sweep_days", retentionDays),
		zap.Time("now", now),
	)
	return deleted, nil
}

// sanitizeAnswer normalizes an answer value for its kind.
func sanitizeAnswer(answer types.RawAnswer) (any, error) {
	switch answer.Kind {
	case types.AnswerText:
		s, ok := answer.Value.(string)
		if !ok {
			return nil, fmt.Errorf("text answer must be a string")
		}
		return privacy.SanitizeText(s), nil
	case types.AnswerYesNo, types.AnswerLikert:
		switch v := answer.Value.(type) {
		case string:
			return privacy.SanitizeText(v), nil
		case bool:
			return v, nil
		default:
			if isNumber(v) {
				return v, nil
			}
			return nil, fmt.Errorf("%s answer must be a string, boolean or number", answer.Kind)
		}
	case types.AnswerMultipleChoice:
		switch v := answer.Value.(type) {
		case string:
			return privacy.SanitizeText(v), nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = privacy.SanitizeText(s)
			}
			return out, nil
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("multiple-choice options must be strings")
				}
				out[i] = privacy.SanitizeText(s)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("multiple-choice answer must be a string or list of strings")
		}
	case types.AnswerRating:
		if !isNumber(answer.Value) {
			return nil, fmt.Errorf("rating answer must be a number")
		}
		return answer.Value, nil
	case types.AnswerRanking:
		switch v := answer.Value.(type) {
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				switch typed := item.(type) {
				case string:
					out[i] = privacy.SanitizeText(typed)
				default:
					if !isNumber(typed) {
						return nil, fmt.Errorf("ranking entries must be numbers or strings")
					}
					out[i] = typed
				}
			}
			return out, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = privacy.SanitizeText(s)
			}
			return out, nil
		default:
			if isNumber(v) {
				return v, nil
			}
			return nil, fmt.Errorf("ranking answer must be a number or a list")
		}
	default:
		return nil, fmt.Errorf("unsupported answer kind %q", answer.Kind)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}
