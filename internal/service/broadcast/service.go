// Package broadcast alerts eligible compatible donors about an open blood
// request.
package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	"github.com/jwalitptl/bloodbank/internal/service/eligibility"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	"github.com/jwalitptl/bloodbank/internal/service/notification"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/keylock"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

const (
	outcomeSent         = "sent"
	outcomeDeduplicated = "deduplicated"
	outcomeNoDonors     = "no_donors"
)

type BroadcastServicer interface {
	EmergencyBroadcast(ctx context.Context, requestID, actorID uuid.UUID) (*model.BroadcastResult, bool, error)
}

type Options struct {
	// DedupeWindow suppresses repeat broadcasts for the same request.
	DedupeWindow time.Duration
	// Concurrency bounds parallel deliveries.
	Concurrency int
}

type Service struct {
	requests   repository.BloodRequestRepository
	finder     eligibility.Finder
	dispatcher notification.Dispatcher
	events     event.Emitter
	auditor    *audit.AuditLogger
	metrics    *metrics.Metrics
	log        *logger.Logger

	sent        *cache.Cache
	locks       *keylock.Locker
	concurrency int
	now         func() time.Time
}

func NewService(
	requests repository.BloodRequestRepository,
	finder eligibility.Finder,
	dispatcher notification.Dispatcher,
	events event.Emitter,
	auditor *audit.AuditLogger,
	m *metrics.Metrics,
	log *logger.Logger,
	opts Options,
) *Service {
	window := opts.DedupeWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		requests:    requests,
		finder:      finder,
		dispatcher:  dispatcher,
		events:      events,
		auditor:     auditor,
		metrics:     m,
		log:         log,
		sent:        cache.New(window, 2*window),
		locks:       keylock.New(),
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EmergencyBroadcast notifies every eligible compatible donor about the
// request. A repeat inside the dedupe window returns the earlier result and
// reports true without contacting anyone.
func (s *Service) EmergencyBroadcast(ctx context.Context, requestID, actorID uuid.UUID) (*model.BroadcastResult, bool, error) {
	key := requestID.String()
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if cached, ok := s.sent.Get(key); ok {
		s.metrics.Broadcasts.WithLabelValues(outcomeDeduplicated).Inc()
		return cached.(*model.BroadcastResult), true, nil
	}

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if req.Status.Terminal() || req.VolumeRemainingMl <= 0 {
		return nil, false, apperrors.NewInvalidTransition("blood request", string(req.Status), "broadcast")
	}

	donors, err := s.finder.FindEligibleCompatibleDonors(ctx, req.BloodType, req.Component)
	if err != nil {
		return nil, false, err
	}

	broadcast := &model.EmergencyBroadcast{
		ID:                uuid.New(),
		RequestID:         req.ID,
		BloodType:         req.BloodType,
		Component:         req.Component,
		VolumeRemainingMl: req.VolumeRemainingMl,
		Urgency:           req.Urgency,
		DonorIDs:          make([]uuid.UUID, 0, len(donors)),
		RequestedBy:       actorID,
		CreatedAt:         s.now(),
	}
	for _, d := range donors {
		broadcast.DonorIDs = append(broadcast.DonorIDs, d.ID)
	}

	if err := s.events.Emit(ctx, model.EventEmergencyBroadcast, broadcast); err != nil {
		return nil, false, err
	}

	result := &model.BroadcastResult{Broadcast: broadcast}
	if len(donors) == 0 {
		s.metrics.Broadcasts.WithLabelValues(outcomeNoDonors).Inc()
	} else {
		result.Delivered, result.Failed = s.deliver(ctx, req, donors)
		s.metrics.Broadcasts.WithLabelValues(outcomeSent).Inc()
	}
	s.sent.SetDefault(key, result)

	s.auditor.Log(ctx, actorID, model.AuditActionBroadcast, model.AuditEntityBloodRequest, req.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"donors":    len(donors),
			"delivered": result.Delivered,
			"failed":    result.Failed,
		},
	})
	s.log.Info("emergency broadcast sent",
		"request_id", req.ID.String(),
		"donors", len(donors),
		"delivered", result.Delivered,
		"failed", result.Failed,
	)
	return result, false, nil
}

func (s *Service) deliver(ctx context.Context, req *model.BloodRequest, donors []*model.User) (int, int) {
	var delivered, failed int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, donor := range donors {
		donor := donor
		g.Go(func() error {
			n := &model.Notification{
				UserID:    donor.ID,
				Channel:   notification.ChannelEmail,
				Recipient: donor.Email,
				Subject:   fmt.Sprintf("Urgent: %s %s needed", req.BloodType, req.Component),
				Content:   message(donor, req),
			}
			if donor.Email == "" {
				n.Channel = notification.ChannelInApp
			}
			if err := s.dispatcher.Dispatch(ctx, n); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered), int(failed)
}

func message(donor *model.User, req *model.BloodRequest) string {
	return fmt.Sprintf(
		"Dear %s,\n\nWe urgently need %s %s donors. %d ml is still required (urgency: %s).\n"+
			"You are eligible to donate. Please visit your nearest donation centre.\n",
		donor.Name, req.BloodType, req.Component, req.VolumeRemainingMl, req.Urgency,
	)
}
