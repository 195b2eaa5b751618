package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/security"
)

type UserServicer interface {
	CreateStaff(ctx context.Context, actorID uuid.UUID, req *model.CreateStaffRequest) (*model.User, error)
	CreateDonor(ctx context.Context, actorID uuid.UUID, req *model.CreateDonorRequest) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListDonors(ctx context.Context, filters *model.DonorFilters) ([]*model.User, error)
}

type Service struct {
	repo    repository.UserRepository
	matrix  *compatibility.Matrix
	hasher  security.PasswordHasher
	auditor *audit.AuditLogger
}

func NewService(repo repository.UserRepository, matrix *compatibility.Matrix, hasher security.PasswordHasher, auditor *audit.AuditLogger) *Service {
	return &Service{
		repo:    repo,
		matrix:  matrix,
		hasher:  hasher,
		auditor: auditor,
	}
}

func (s *Service) CreateStaff(ctx context.Context, actorID uuid.UUID, req *model.CreateStaffRequest) (*model.User, error) {
	if req.Role != model.UserRoleAdmin && req.Role != model.UserRoleStaff {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("role %q cannot log in as staff", req.Role), nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.NewBadRequest("password too short", err)
		}
		return nil, apperrors.Internal(err)
	}

	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       model.UserStatusActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Metadata: map[string]string{"role": user.Role},
	})
	return user, nil
}

// CreateDonor enrols a donor. New donors start available with no waiting
// period.
func (s *Service) CreateDonor(ctx context.Context, actorID uuid.UUID, req *model.CreateDonorRequest) (*model.User, error) {
	bt := compatibility.Normalize(string(req.BloodType))
	if !s.matrix.Known(bt) {
		return nil, apperrors.NewConfigurationGap(fmt.Sprintf("unknown blood type %q", bt), nil)
	}
	nationalID := strings.TrimSpace(req.NationalID)
	if nationalID == "" {
		return nil, apperrors.NewBadRequest("national_id is required", nil)
	}

	user := &model.User{
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Name:               req.Name,
		Phone:              req.Phone,
		Role:               model.UserRoleDonor,
		Status:             model.UserStatusActive,
		NationalID:         &nationalID,
		BloodType:          &bt,
		AvailabilityStatus: model.AvailabilityAvailable,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"role": user.Role, "donor_number": user.DonorNumber},
	})
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListDonors(ctx context.Context, filters *model.DonorFilters) ([]*model.User, error) {
	if filters != nil {
		for i, t := range filters.BloodTypes {
			filters.BloodTypes[i] = compatibility.Normalize(string(t))
		}
	}
	return s.repo.ListDonors(ctx, filters)
}
