package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

const (
	defaultLimit    = 50
	maxLimit        = 500
	maxRequestBytes = 1 << 20
)

type contextKey string

const contextClaimsKey contextKey = "claims"

// ErrorResponse is the error payload. Reasons lists validation failures.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

func withClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

func claimsFromContext(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(*services.Claims)
	if !ok || claims == nil || strings.TrimSpace(claims.Subject) == "" {
		return nil, false
	}
	return claims, true
}

// sessionFromClaims is the request-scoped view of the caller. Display
// fields are not loaded.
func sessionFromClaims(claims *services.Claims) types.Session {
	session := types.Session{
		SessionID:      claims.ID,
		UserID:         claims.Subject,
		Email:          claims.Email,
		Role:           claims.Role,
		CanImpersonate: claims.Role == types.RoleConsultant,
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors to status codes. Anything
// unrecognized is logged and reported as fallback with status 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var denied *services.ConsentDeniedError
	if ve, ok := services.AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Reasons: ve.Reasons})
		return
	}
	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "consent denied", Reasons: []string{denied.Reason}})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrEmailExists):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, services.ErrNoConsent):
		writeError(w, http.StatusNotFound, "no consent found")
	case errors.Is(err, services.ErrNoExport):
		writeError(w, http.StatusNotFound, "no exported report")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, "report export is not available")
	default:
		logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func parseBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// clientIP returns the request's remote host. middleware.RealIP has
// already replaced RemoteAddr with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
