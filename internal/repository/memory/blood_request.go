package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type bloodRequestRepository struct {
	s *Store
}

func (r *bloodRequestRepository) Create(ctx context.Context, req *model.BloodRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.stamp(&req.Base)
	r.s.requests[req.ID] = *req
	return nil
}

func (r *bloodRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, apperrors.NotFound("blood request", nil)
	}
	return &req, nil
}

// GetForUpdate is Get. The store has no row locks, so the workflow service
// holds a per-request lock around each read-check-write.
func (r *bloodRequestRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	return r.Get(ctx, id)
}

func (r *bloodRequestRepository) Update(ctx context.Context, req *model.BloodRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.requests[req.ID]; !ok {
		return apperrors.NotFound("blood request", nil)
	}
	req.UpdatedAt = r.s.now()
	r.s.requests[req.ID] = *req
	return nil
}

func (r *bloodRequestRepository) List(ctx context.Context, filters *model.BloodRequestFilters) ([]*model.BloodRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.BloodRequest
	for _, req := range r.s.requests {
		if filters != nil {
			if filters.Status != "" && req.Status != filters.Status {
				continue
			}
			if filters.BloodType != "" && req.BloodType != filters.BloodType {
				continue
			}
			if filters.StaffID != uuid.Nil && req.RequestingStaffID != filters.StaffID {
				continue
			}
		}
		rq := req
		out = append(out, &rq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
