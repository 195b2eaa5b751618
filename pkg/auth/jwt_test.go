package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	svc, err := newJWTService(Config{Secret: secret, Issuer: "bloodbank", AccessTTL: time.Hour}, func() time.Time { return now })
	require.NoError(t, err)

	user := &model.User{Base: model.Base{ID: uuid.New()}, Email: "staff@bank.example", Role: model.UserRoleStaff}
	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.UserRoleStaff, claims.Role)
	assert.Equal(t, "staff@bank.example", claims.Email)
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	svc, err := newJWTService(Config{Secret: secret, AccessTTL: time.Minute}, func() time.Time { return now })
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(&model.User{Base: model.Base{ID: uuid.New()}})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestForeignSignatureRejected(t *testing.T) {
	a, err := NewJWTService(Config{Secret: secret})
	require.NoError(t, err)
	b, err := NewJWTService(Config{Secret: "another-secret-of-enough-length"})
	require.NoError(t, err)

	token, err := a.GenerateAccessToken(&model.User{Base: model.Base{ID: uuid.New()}})
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestShortSecretRejected(t *testing.T) {
	_, err := NewJWTService(Config{Secret: "short"})
	assert.Error(t, err)
}
