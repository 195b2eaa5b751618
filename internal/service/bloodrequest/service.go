package bloodrequest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/allocation"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/keylock"
	"github.com/jwalitptl/bloodbank/pkg/logger"
)

type BloodRequestServicer interface {
	Create(ctx context.Context, staffID uuid.UUID, req *model.CreateBloodRequestRequest) (*model.BloodRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
	List(ctx context.Context, filters *model.BloodRequestFilters) ([]*model.BloodRequest, error)
	Approve(ctx context.Context, id, approverID uuid.UUID) (*ApprovalResult, error)
	Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*model.BloodRequest, error)
	Allocate(ctx context.Context, id uuid.UUID) (*model.AllocationResult, error)
	UpdateStatus(ctx context.Context, id, actorID uuid.UUID, status model.BloodRequestStatus) (*model.BloodRequest, error)
}

// ApprovalResult is the approved request and the allocation it triggered.
type ApprovalResult struct {
	Request    *model.BloodRequest     `json:"request"`
	Allocation *model.AllocationResult `json:"allocation,omitempty"`
}

// Service runs the request workflow. Every read-check-write on a request
// holds that request's lock, so status checks cannot interleave.
type Service struct {
	repo      repository.BloodRequestRepository
	tx        repository.Transactor
	matrix    *compatibility.Matrix
	allocator allocation.AllocatorServicer
	events    event.Emitter
	auditor   *audit.AuditLogger
	locks     *keylock.Locker
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	repos *repository.Repositories,
	matrix *compatibility.Matrix,
	allocator allocation.AllocatorServicer,
	events event.Emitter,
	auditor *audit.AuditLogger,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repos.BloodRequests,
		tx:        repos.Tx,
		matrix:    matrix,
		allocator: allocator,
		events:    events,
		auditor:   auditor,
		locks:     keylock.New(),
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) Create(ctx context.Context, staffID uuid.UUID, in *model.CreateBloodRequestRequest) (*model.BloodRequest, error) {
	if in.VolumeRequestedMl <= 0 {
		return nil, apperrors.NewBadRequest("volume_requested_ml must be positive", nil)
	}
	if !in.Component.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown component %q", in.Component), nil)
	}
	bloodType := compatibility.Normalize(string(in.BloodType))
	if _, err := s.matrix.CompatibleDonorTypes(bloodType); err != nil {
		return nil, err
	}

	urgency := in.Urgency
	if urgency == "" {
		urgency = model.UrgencyRoutine
	}

	req := &model.BloodRequest{
		RequestingStaffID: staffID,
		BloodType:         bloodType,
		Component:         in.Component,
		VolumeRequestedMl: in.VolumeRequestedMl,
		VolumeRemainingMl: in.VolumeRequestedMl,
		Urgency:           urgency,
		Status:            model.BloodRequestStatusPending,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, req); err != nil {
			return fmt.Errorf("failed to create blood request: %w", err)
		}
		return s.events.Emit(ctx, model.EventBloodRequestCreated, req)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, staffID, model.AuditActionCreate, model.AuditEntityBloodRequest, req.ID, &audit.LogOptions{
		Changes: req,
	})
	return req, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.BloodRequestFilters) ([]*model.BloodRequest, error) {
	return s.repo.List(ctx, filters)
}

// Approve moves a pending request to approved and runs one allocation. The
// approval stands even when that allocation fails.
func (s *Service) Approve(ctx context.Context, id, approverID uuid.UUID) (*ApprovalResult, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var req *model.BloodRequest
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.BloodRequestStatusPending {
			return apperrors.NewInvalidTransition("blood request", string(req.Status), "approve")
		}

		now := s.now()
		req.Status = model.BloodRequestStatusApproved
		req.ApproverID = &approverID
		req.ApprovedAt = &now
		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("failed to approve blood request: %w", err)
		}
		return s.events.Emit(ctx, model.EventBloodRequestApproved, req)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, approverID, model.AuditActionApprove, model.AuditEntityBloodRequest, req.ID, nil)

	allocated, err := s.allocator.Allocate(ctx, req.ID)
	if err != nil {
		s.log.Error(err, "allocation after approval failed", "request_id", req.ID.String())
		return &ApprovalResult{Request: req}, err
	}

	req.VolumeRemainingMl = allocated.RemainingMl
	req.Status = allocated.Status
	return &ApprovalResult{Request: req, Allocation: allocated}, nil
}

func (s *Service) Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*model.BloodRequest, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var req *model.BloodRequest
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.BloodRequestStatusPending {
			return apperrors.NewInvalidTransition("blood request", string(req.Status), "reject")
		}

		now := s.now()
		req.Status = model.BloodRequestStatusRejected
		req.RejecterID = &rejecterID
		req.RejectedAt = &now
		req.AppendRejectionNote(reason)
		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("failed to reject blood request: %w", err)
		}
		return s.events.Emit(ctx, model.EventBloodRequestRejected, req)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, rejecterID, model.AuditActionReject, model.AuditEntityBloodRequest, req.ID, &audit.LogOptions{
		Metadata: map[string]string{"reason": reason},
	})
	return req, nil
}

// Allocate re-runs allocation, typically after new inventory arrived.
func (s *Service) Allocate(ctx context.Context, id uuid.UUID) (*model.AllocationResult, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.allocator.Allocate(ctx, id)
}

// UpdateStatus sets the status directly without transition checks. It is an
// administrative override.
func (s *Service) UpdateStatus(ctx context.Context, id, actorID uuid.UUID, status model.BloodRequestStatus) (*model.BloodRequest, error) {
	if !status.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown blood request status %q", status), nil)
	}

	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		req      *model.BloodRequest
		previous model.BloodRequestStatus
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = req.Status
		req.Status = status
		return s.repo.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn("blood request status overridden",
		"request_id", req.ID.String(),
		"from", string(previous),
		"to", string(status),
		"actor_id", actorID.String(),
	)
	s.auditor.Log(ctx, actorID, model.AuditActionStatusOverride, model.AuditEntityBloodRequest, req.ID, &audit.LogOptions{
		Changes: map[string]string{"from": string(previous), "to": string(status)},
	})
	return req, nil
}
