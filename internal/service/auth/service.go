package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/auth"
	"github.com/jwalitptl/bloodbank/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	auditor  *audit.AuditLogger
	now      func() time.Time
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher, auditor *audit.AuditLogger) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		auditor:  auditor,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Login checks the password and issues an access token. Five failures in a
// row lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, err
	}
	if user.PasswordHash == "" || user.Status == model.UserStatusInactive {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	now := s.now()
	if user.Status == model.UserStatusLocked {
		if user.LastLoginAttempt != nil && now.Sub(*user.LastLoginAttempt) < lockoutDuration {
			return nil, apperrors.Forbidden(errors.New("account is locked, please try again later"))
		}
		user.Status = model.UserStatusActive
		user.LoginAttempts = 0
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		user.LoginAttempts++
		user.LastLoginAttempt = &now
		if user.LoginAttempts >= maxLoginAttempts {
			user.Status = model.UserStatusLocked
		}
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	user.LoginAttempts = 0
	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.auditor.Log(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil)
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtSvc.AccessTTL().Seconds()),
	}, nil
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
