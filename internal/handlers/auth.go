package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	identity *services.IdentityService
	logger   *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, identity *services.IdentityService, logger *zap.Logger) {
	handler := NewAuthHandler(identity, logger)
	requireAuth := RequireAuth(identity)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(requireAuth).Post("/logout", handler.Logout)
	r.With(requireAuth).Get("/me", handler.Me)
	r.With(requireAuth).Post("/password", handler.ChangePassword)
}

// RequireAuth enforces bearer authentication and injects the token claims
// into the request context.
func RequireAuth(identity *services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims := identity.ValidateToken(tokenString)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when a bearer token is sent. Requests
// without an Authorization header pass through anonymously; a header
// carrying an invalid token is rejected.
func OptionalAuth(identity *services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			RequireAuth(identity)(next).ServeHTTP(w, r)
		})
	}
}

// RequireConsultant rejects callers whose token does not carry the
// consultant role. It must run after RequireAuth.
func RequireConsultant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if claims.Role != types.RoleConsultant {
			writeError(w, http.StatusForbidden, "consultant access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register creates a new user account and returns a session and token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.SignupData
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.identity.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Login verifies credentials and returns a session and token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.Credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.identity.Authenticate(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to authenticate")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Logout is acknowledged only; tokens expire on their own and the client
// discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.identity.SessionFromClaims(r.Context(), claims)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeServiceError(w, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.identity.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err, "failed to change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
