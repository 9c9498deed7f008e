package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// ConsentHandler exposes the caller's own consent record.
type ConsentHandler struct {
	ledger *services.ConsentLedger
	logger *zap.Logger
}

func NewConsentHandler(ledger *services.ConsentLedger, logger *zap.Logger) *ConsentHandler {
	return &ConsentHandler{ledger: ledger, logger: logger}
}

// ConsentRouter registers consent routes. Every route requires auth.
func ConsentRouter(r chi.Router, ledger *services.ConsentLedger, authMiddleware func(http.Handler) http.Handler, logger *zap.Logger) {
	handler := NewConsentHandler(ledger, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.Get)
	r.Post("/", handler.Grant)
	r.Delete("/", handler.Revoke)
	r.Get("/check", handler.Check)
}

func (h *ConsentHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	record, err := h.ledger.Get(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load consent")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type GrantResponse struct {
	ConsentID string `json:"consent_id"`
}

func (h *ConsentHandler) Grant(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.GrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.UserID = claims.Subject

	id, err := h.ledger.Grant(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to grant consent")
		return
	}
	writeJSON(w, http.StatusCreated, GrantResponse{ConsentID: id})
}

func (h *ConsentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.ledger.Revoke(r.Context(), claims.Subject); err != nil {
		writeServiceError(w, h.logger, err, "failed to revoke consent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsentHandler) Check(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	purpose := types.Purpose(strings.TrimSpace(r.URL.Query().Get("purpose")))
	dataType := types.DataType(strings.TrimSpace(r.URL.Query().Get("data_type")))
	if !purpose.Valid() {
		writeError(w, http.StatusBadRequest, "invalid purpose")
		return
	}
	if !dataType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid data type")
		return
	}

	check, err := h.ledger.Check(r.Context(), claims.Subject, purpose, dataType)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to check consent")
		return
	}
	writeJSON(w, http.StatusOK, check)
}
