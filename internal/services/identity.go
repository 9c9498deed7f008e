package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/messagestack/apiserver/internal/cryptoutil"
	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
	"go.uber.org/zap"
)

const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultExtendedTTL = 30 * 24 * time.Hour
	MinPasswordLength  = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Claims is the JWT payload. Subject is the user id and ID the session id.
type Claims struct {
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
	jwt.RegisteredClaims
}

type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type SignupData struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Organization string     `json:"organization"`
	Password     string     `json:"password"`
	Role         types.Role `json:"role"`
	RememberMe   bool       `json:"remember_me"`
}

// AuthResult is returned by a successful login or registration.
type AuthResult struct {
	Session types.Session `json:"session"`
	Token   string        `json:"token"`
}

type IdentityConfig struct {
	SigningKey  []byte
	BcryptCost  int
	SessionTTL  time.Duration
	ExtendedTTL time.Duration
}

// IdentityService handles credentials, sessions and bearer tokens.
type IdentityService struct {
	users  UserRepository
	audit  *AuditLog
	cfg    IdentityConfig
	logger *zap.Logger
	now    func() time.Time
	idGen  func() string

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash string
}

func NewIdentityService(users UserRepository, cfg IdentityConfig, audit *AuditLog, logger *zap.Logger) (*IdentityService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ExtendedTTL <= 0 {
		cfg.ExtendedTTL = DefaultExtendedTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := cryptoutil.HashPassword(uuid.NewString(), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare credential hashing: %w", err)
	}
	return &IdentityService{
		users:     users,
		audit:     audit,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     uuid.NewString,
		dummyHash: dummy,
	}, nil
}

func (s *IdentityService) HashCredential(secret string) (string, error) {
	return cryptoutil.HashPassword(secret, s.cfg.BcryptCost)
}

func (s *IdentityService) VerifyCredential(secret, hash string) bool {
	return cryptoutil.VerifyPassword(secret, hash)
}

// CreateSession builds a new session for user with a fresh session id.
func (s *IdentityService) CreateSession(user types.User, extended bool) types.Session {
	ttl := s.cfg.SessionTTL
	if extended {
		ttl = s.cfg.ExtendedTTL
	}
	now := s.now()
	return types.Session{
		SessionID:      s.idGen(),
		UserID:         user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Organization:   user.Organization,
		Role:           user.Role,
		CanImpersonate: user.Role == types.RoleConsultant,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

// IssueToken signs a token for a new session of user.
func (s *IdentityService) IssueToken(user types.User, extended bool) (string, error) {
	return s.signSession(s.CreateSession(user, extended))
}

func (s *IdentityService) signSession(session types.Session) (string, error) {
	claims := Claims{
		Email: session.Email,
		Role:  session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.SessionID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

// ValidateToken returns the token's claims, or nil if the token is
// malformed, tampered, expired or missing its subject or session id.
func (s *IdentityService) ValidateToken(tokenString string) *Claims {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil
	}
	return claims
}

// SessionFromClaims rebuilds the session a token was issued for, with
// the display fields reloaded from the user record.
func (s *IdentityService) SessionFromClaims(ctx context.Context, claims *Claims) (types.Session, error) {
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return types.Session{}, err
	}
	session := types.Session{
		SessionID:      claims.ID,
		UserID:         user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Organization:   user.Organization,
		Role:           user.Role,
		CanImpersonate: user.Role == types.RoleConsultant,
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

// Authenticate checks credentials and issues a session. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, newValidationError("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.VerifyCredential(creds.Password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.VerifyCredential(creds.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &now

	session := s.CreateSession(user, creds.RememberMe)
	token, err := s.signSession(session)
	if err != nil {
		s.logger.Error("failed to sign token", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrProcessing
	}

	s.audit.Record(ctx, AuditEvent{UserID: user.ID, Action: ActionUserLogin})
	s.logger.Info("user authenticated",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.SessionID),
		zap.Bool("extended", creds.RememberMe),
	)
	return &AuthResult{Session: session, Token: token}, nil
}

// Register validates and stores a new user, then authenticates it.
func (s *IdentityService) Register(ctx context.Context, data SignupData) (*AuthResult, error) {
	data.Name = strings.TrimSpace(data.Name)
	data.Organization = strings.TrimSpace(data.Organization)
	email := normalizeEmail(data.Email)
	if data.Role == "" {
		data.Role = types.RoleStandardUser
	}

	var reasons []string
	if data.Name == "" {
		reasons = append(reasons, "name is required")
	}
	if !emailPattern.MatchString(email) {
		reasons = append(reasons, "email address is invalid")
	}
	reasons = append(reasons, passwordPolicyViolations(data.Password)...)
	if !data.Role.Valid() {
		reasons = append(reasons, fmt.Sprintf("unknown role %q", data.Role))
	}
	if len(reasons) > 0 {
		return nil, newValidationError(reasons...)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.HashCredential(data.Password)
	if err != nil {
		s.logger.Error("failed to hash credential", zap.Error(err))
		return nil, ErrProcessing
	}

	user, err := s.users.Create(ctx, types.User{
		ID:           s.idGen(),
		Name:         data.Name,
		Email:        email,
		Organization: data.Organization,
		Role:         data.Role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.audit.Record(ctx, AuditEvent{UserID: user.ID, Action: ActionUserRegistered})

	return s.Authenticate(ctx, Credentials{
		Email:      email,
		Password:   data.Password,
		RememberMe: data.RememberMe,
	})
}

// ChangePassword replaces the user's password after verifying the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if reasons := passwordPolicyViolations(next); len(reasons) > 0 {
		return newValidationError(reasons...)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.VerifyCredential(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := s.HashCredential(next)
	if err != nil {
		s.logger.Error("failed to hash credential", zap.Error(err))
		return ErrProcessing
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.audit.Record(ctx, AuditEvent{UserID: userID, Action: ActionPasswordChanged})
	return nil
}

func passwordPolicyViolations(password string) []string {
	var reasons []string
	if len([]rune(password)) < MinPasswordLength {
		reasons = append(reasons, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		reasons = append(reasons, fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		reasons = append(reasons, "password must contain an uppercase letter")
	}
	if !lower {
		reasons = append(reasons, "password must contain a lowercase letter")
	}
	if !digit {
		reasons = append(reasons, "password must contain a digit")
	}
	return reasons
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
