package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// PrivacyHandler serves AI processing requests and privacy reports.
type PrivacyHandler struct {
	processor *services.AIProcessor
	reports   *services.ReportService
	audit     *services.AuditLog
	logger    *zap.Logger
}

func NewPrivacyHandler(processor *services.AIProcessor, reports *services.ReportService, audit *services.AuditLog, logger *zap.Logger) *PrivacyHandler {
	return &PrivacyHandler{processor: processor, reports: reports, audit: audit, logger: logger}
}

// AIRouter registers AI processing routes.
func AIRouter(r chi.Router, handler *PrivacyHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/process", handler.Process)
	r.With(RequireConsultant).Get("/records/{recordID}", handler.GetRecord)
}

// PrivacyRouter registers report and audit routes for the caller.
func PrivacyRouter(r chi.Router, handler *PrivacyHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Get("/report", handler.Report)
	r.Post("/report/export", handler.ExportReport)
	r.Get("/report/export", handler.DownloadReport)
	r.Get("/audit", handler.AuditTrail)
}

func (h *PrivacyHandler) Process(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.AIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.UserID = claims.Subject

	record, err := h.processor.Process(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to process data")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *PrivacyHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.processor.Get(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *PrivacyHandler) Report(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	report, err := h.reports.Generate(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to generate report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type ExportResponse struct {
	Key string `json:"key"`
}

func (h *PrivacyHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	key, err := h.reports.Export(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to export report")
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Key: key})
}

func (h *PrivacyHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reader, err := h.reports.OpenExport(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to open report")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("failed to stream report", zap.String("user_id", claims.Subject), zap.Error(err))
	}
}

type AuditListResponse struct {
	Items []types.AuditEntry `json:"items"`
	Limit int                `json:"limit"`
}

func (h *PrivacyHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.audit.List(r.Context(), types.AuditFilter{UserID: claims.Subject, Limit: limit})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, AuditListResponse{Items: items, Limit: limit})
}
