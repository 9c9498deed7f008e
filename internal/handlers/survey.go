package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// PrivacySettingsProvider resolves the privacy settings for a survey.
// *config.PrivacySettingsSource satisfies it.
type PrivacySettingsProvider interface {
	For(surveyID string) types.PrivacySettings
}

// SurveyHandler provides HTTP handlers for survey responses.
type SurveyHandler struct {
	pipeline *services.SurveyPipeline
	settings PrivacySettingsProvider
	logger   *zap.Logger
}

func NewSurveyHandler(pipeline *services.SurveyPipeline, settings PrivacySettingsProvider, logger *zap.Logger) *SurveyHandler {
	return &SurveyHandler{pipeline: pipeline, settings: settings, logger: logger}
}

// SurveyRouter registers survey routes. Submissions are public; reads are
// restricted to consultants.
func SurveyRouter(
	r chi.Router,
	pipeline *services.SurveyPipeline,
	settings PrivacySettingsProvider,
	identity *services.IdentityService,
	logger *zap.Logger,
) {
	handler := NewSurveyHandler(pipeline, settings, logger)
	requireAuth := RequireAuth(identity)

	r.Route("/{surveyID}", func(r chi.Router) {
		r.With(OptionalAuth(identity)).Post("/responses", handler.Submit)
		r.With(requireAuth, RequireConsultant).Get("/responses", handler.ListResponses)
		r.With(requireAuth, RequireConsultant).Get("/ai-dataset", handler.AIDataset)
	})
}

type SubmitRequest struct {
	Answers []types.RawAnswer    `json:"answers"`
	Consent types.ConsentPayload `json:"consent"`
}

type SubmitResponse struct {
	ResponseID string `json:"response_id"`
}

func (h *SurveyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	surveyID := strings.TrimSpace(chi.URLParam(r, "surveyID"))
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	submission := services.SubmissionRequest{
		SurveyID:  surveyID,
		Answers:   req.Answers,
		Consent:   req.Consent,
		Privacy:   h.settings.For(surveyID),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if claims, ok := claimsFromContext(r.Context()); ok {
		submission.UserID = claims.Subject
	}

	id, err := h.pipeline.Submit(r.Context(), submission)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to store response")
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{ResponseID: id})
}

type ResponseListResponse struct {
	Items []types.DecryptedResponse `json:"items"`
	Total int                       `json:"total"`
}

func (h *SurveyHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	includePersonal, err := parseBool(r, "include_personal")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid include_personal")
		return
	}

	items, err := h.pipeline.Retrieve(r.Context(), sessionFromClaims(claims), services.RetrieveOptions{
		SurveyID:        chi.URLParam(r, "surveyID"),
		IncludePersonal: includePersonal,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list responses")
		return
	}
	writeJSON(w, http.StatusOK, ResponseListResponse{Items: items, Total: len(items)})
}

type AIDatasetResponse struct {
	Items []types.PreparedResponse `json:"items"`
	Total int                      `json:"total"`
}

func (h *SurveyHandler) AIDataset(w http.ResponseWriter, r *http.Request) {
	items, err := h.pipeline.PrepareForAI(r.Context(), chi.URLParam(r, "surveyID"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to prepare dataset")
		return
	}
	writeJSON(w, http.StatusOK, AIDatasetResponse{Items: items, Total: len(items)})
}
