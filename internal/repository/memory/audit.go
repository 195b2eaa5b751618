package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
)

type auditRepository struct {
	s *Store
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.s.now()
	}
	r.s.audits = append(r.s.audits, *log)
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.AuditLog
	for _, log := range r.s.audits {
		if log.EntityType == entityType && log.EntityID == entityID {
			found := log
			out = append(out, &found)
		}
	}
	return out, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.audits[:0]
	var deleted int64
	for _, log := range r.s.audits {
		if log.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, log)
	}
	r.s.audits = kept
	return deleted, nil
}
