package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/messagestack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signup(email string) SignupData {
	return SignupData{
		Name:         "Jane Doe",
		Email:        email,
		Organization: "Acme",
		Password:     "Sup3rSecret",
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	registered, err := f.identity.Register(ctx, signup("Jane@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", registered.Session.Email)
	assert.Equal(t, types.RoleStandardUser, registered.Session.Role)
	assert.False(t, registered.Session.CanImpersonate)
	assert.True(t, registered.Session.ExpiresAt.After(registered.Session.CreatedAt))

	claims := f.identity.ValidateToken(registered.Token)
	require.NotNil(t, claims)
	assert.Equal(t, registered.Session.UserID, claims.Subject)
	assert.Equal(t, registered.Session.SessionID, claims.ID)
	assert.Equal(t, types.RoleStandardUser, claims.Role)

	result, err := f.identity.Authenticate(ctx, Credentials{Email: " JANE@example.com", Password: "Sup3rSecret"})
	require.NoError(t, err)
	assert.Equal(t, registered.Session.UserID, result.Session.UserID)
	assert.NotEqual(t, registered.Session.SessionID, result.Session.SessionID)
	assert.Equal(t, baseTime.Add(DefaultSessionTTL), result.Session.ExpiresAt)

	user, err := f.store.Users.GetByID(ctx, result.Session.UserID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	assert.NotEqual(t, "Sup3rSecret", user.PasswordHash)

	assert.Contains(t, f.auditActions(t), ActionUserRegistered)
	assert.Contains(t, f.auditActions(t), ActionUserLogin)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.identity.Register(ctx, signup("jane@example.com"))
	require.NoError(t, err)

	_, wrongPassword := f.identity.Authenticate(ctx, Credentials{Email: "jane@example.com", Password: "Wr0ngPassword"})
	_, unknownEmail := f.identity.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "Sup3rSecret"})

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRememberMeExtendsSession(t *testing.T) {
	f := newFixture(t)
	data := signup("jane@example.com")
	data.RememberMe = true

	result, err := f.identity.Register(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(DefaultExtendedTTL), result.Session.ExpiresAt)

	f.clock.Advance(25 * time.Hour)
	assert.NotNil(t, f.identity.ValidateToken(result.Token))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.identity.Register(ctx, SignupData{Email: "not-an-email", Password: "short", Role: "admin"})
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	joined := strings.Join(ve.Reasons, "\n")
	assert.Contains(t, joined, "name is required")
	assert.Contains(t, joined, "email address is invalid")
	assert.Contains(t, joined, "at least 8 characters")
	assert.Contains(t, joined, "uppercase")
	assert.Contains(t, joined, "digit")
	assert.Contains(t, joined, `unknown role "admin"`)

	long := signup("long@example.com")
	long.Password = "Aa1" + strings.Repeat("x", 80)
	_, err = f.identity.Register(ctx, long)
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"password must be at most 72 bytes"}, ve.Reasons)

	// Multi-byte runes count toward the byte limit.
	long.Password = "Aa1" + strings.Repeat("é", 35)
	_, err = f.identity.Register(ctx, long)
	_, ok = AsValidationError(err)
	assert.True(t, ok)

	long.Password = "Aa1" + strings.Repeat("x", 69)
	_, err = f.identity.Register(ctx, long)
	require.NoError(t, err)

	_, err = f.identity.Register(ctx, signup("jane@example.com"))
	require.NoError(t, err)
	_, err = f.identity.Register(ctx, signup("JANE@example.com"))
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestConsultantSessionCanImpersonate(t *testing.T) {
	f := newFixture(t)
	data := signup("consultant@example.com")
	data.Role = types.RoleConsultant

	result, err := f.identity.Register(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, result.Session.CanImpersonate)
	assert.True(t, result.Session.IsConsultant())
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	result, err := f.identity.Register(context.Background(), signup("jane@example.com"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", result.Token[:len(result.Token)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, f.identity.ValidateToken(tt.token))
		})
	}

	other, err := NewIdentityService(f.store.Users, IdentityConfig{SigningKey: []byte("another-key"), BcryptCost: 4}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, other.ValidateToken(result.Token))

	f.clock.Advance(DefaultSessionTTL + time.Minute)
	assert.Nil(t, f.identity.ValidateToken(result.Token))
}

func TestSessionFromClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.identity.Register(ctx, signup("jane@example.com"))
	require.NoError(t, err)

	claims := f.identity.ValidateToken(result.Token)
	require.NotNil(t, claims)

	session, err := f.identity.SessionFromClaims(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, result.Session.SessionID, session.SessionID)
	assert.Equal(t, "Jane Doe", session.Name)
	assert.Equal(t, "Acme", session.Organization)
	assert.Equal(t, result.Session.ExpiresAt, session.ExpiresAt)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.identity.Register(ctx, signup("jane@example.com"))
	require.NoError(t, err)
	userID := result.Session.UserID

	assert.ErrorIs(t, f.identity.ChangePassword(ctx, userID, "Wr0ngPassword", "N3wPassword"), ErrInvalidCredentials)

	_, ok := AsValidationError(f.identity.ChangePassword(ctx, userID, "Sup3rSecret", "weak"))
	assert.True(t, ok)
	_, ok = AsValidationError(f.identity.ChangePassword(ctx, userID, "Sup3rSecret", "Aa1"+strings.Repeat("x", 80)))
	assert.True(t, ok)

	require.NoError(t, f.identity.ChangePassword(ctx, userID, "Sup3rSecret", "N3wPassword"))

	_, err = f.identity.Authenticate(ctx, Credentials{Email: "jane@example.com", Password: "Sup3rSecret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.identity.Authenticate(ctx, Credentials{Email: "jane@example.com", Password: "N3wPassword"})
	assert.NoError(t, err)
}
