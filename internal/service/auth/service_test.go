package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/auth"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/security"
)

type fixture struct {
	repos *repository.Repositories
	svc   *Service
	clock time.Time
	staff *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
	f.repos = memory.NewStore().Repositories()

	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "0123456789abcdef0123456789abcdef", AccessTTL: time.Hour})
	require.NoError(t, err)
	auditor := audit.NewAuditLogger(audit.NewService(f.repos.Audits), logger.Nop())
	f.svc = NewService(f.repos.Users, jwtSvc, hasher, auditor)
	f.svc.SetClock(func() time.Time { return f.clock })

	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	f.staff = &model.User{Email: "staff@bank.example", Name: "Staff", PasswordHash: hash, Role: model.UserRoleStaff, Status: model.UserStatusActive}
	require.NoError(t, f.repos.Users.Create(context.Background(), f.staff))
	return f
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Login(context.Background(), "staff@bank.example", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := f.svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.staff.ID, claims.UserID)
	assert.Equal(t, model.UserRoleStaff, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "staff@bank.example", "wrong-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), "nobody@bank.example", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	user, err := f.repos.Users.Get(context.Background(), f.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.LoginAttempts)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < maxLoginAttempts; i++ {
		_, err := f.svc.Login(context.Background(), "staff@bank.example", "wrong-pass")
		require.Error(t, err)
	}

	_, err := f.svc.Login(context.Background(), "staff@bank.example", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	f.clock = f.clock.Add(lockoutDuration + time.Minute)
	_, err = f.svc.Login(context.Background(), "staff@bank.example", "s3cret-pass")
	require.NoError(t, err)

	user, err := f.repos.Users.Get(context.Background(), f.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, user.Status)
	assert.Zero(t, user.LoginAttempts)
}

func TestDonorWithoutPasswordCannotLogin(t *testing.T) {
	f := newFixture(t)
	nid := "NID-1"
	bt := model.BloodType("A+")
	donor := &model.User{Email: "donor@donors.example", Role: model.UserRoleDonor, Status: model.UserStatusActive, NationalID: &nid, BloodType: &bt}
	require.NoError(t, f.repos.Users.Create(context.Background(), donor))

	_, err := f.svc.Login(context.Background(), "donor@donors.example", "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}
