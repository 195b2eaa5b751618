package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type outboxRepository struct {
	s *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	event.CreatedAt = now
	event.UpdatedAt = now
	r.s.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var out []*model.OutboxEvent
	for _, event := range r.s.outbox {
		switch event.Status {
		case model.OutboxStatusPending:
		case model.OutboxStatusRetry:
			if event.RetryAt != nil && event.RetryAt.After(now) {
				continue
			}
		default:
			continue
		}
		found := event
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", nil)
	}
	now := r.s.now()
	event.Status = status
	event.ErrorMessage = errorMessage
	event.RetryAt = retryAt
	event.UpdatedAt = now
	switch status {
	case model.OutboxStatusProcessed:
		event.ProcessedAt = &now
	case model.OutboxStatusRetry:
		event.RetryCount++
	}
	r.s.outbox[id] = event
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	for id, event := range r.s.outbox {
		if event.Status == model.OutboxStatusProcessed && event.ProcessedAt != nil && event.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			deleted++
		}
	}
	return deleted, nil
}
