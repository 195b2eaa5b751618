// Package memory keeps every repository in process memory. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
)

// Store holds all entities behind one lock. Each operation is atomic; the
// conditional operations (TryReserve, Transition, ReserveSlot) are the
// compare-and-swap points concurrent callers race on.
type Store struct {
	mu sync.Mutex

	units         map[uuid.UUID]model.BloodUnit
	requests      map[uuid.UUID]model.BloodRequest
	registrations map[uuid.UUID]model.DonationRegistration
	records       map[uuid.UUID]model.DonationRecord
	schedules     map[uuid.UUID]model.DonationSchedule
	slots         map[uuid.UUID]model.TimeSlot
	users         map[uuid.UUID]model.User
	audits        []model.AuditLog
	outbox        map[uuid.UUID]model.OutboxEvent

	nextDonorNumber int64
	now             func() time.Time
}

func NewStore() *Store {
	return &Store{
		units:         make(map[uuid.UUID]model.BloodUnit),
		requests:      make(map[uuid.UUID]model.BloodRequest),
		registrations: make(map[uuid.UUID]model.DonationRegistration),
		records:       make(map[uuid.UUID]model.DonationRecord),
		schedules:     make(map[uuid.UUID]model.DonationSchedule),
		slots:         make(map[uuid.UUID]model.TimeSlot),
		users:         make(map[uuid.UUID]model.User),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
		now:           time.Now,
	}
}

// SetClock overrides the store's notion of now.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinTx runs fn directly; every store operation is already atomic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Transactor() repository.Transactor { return s }
func (s *Store) BloodUnits() repository.BloodUnitRepository { return &bloodUnitRepository{s} }
func (s *Store) BloodRequests() repository.BloodRequestRepository { return &bloodRequestRepository{s} }
func (s *Store) Registrations() repository.RegistrationRepository { return &registrationRepository{s} }
func (s *Store) Records() repository.DonationRecordRepository { return &recordRepository{s} }
func (s *Store) Schedules() repository.ScheduleRepository { return &scheduleRepository{s} }
func (s *Store) Users() repository.UserRepository { return &userRepository{s} }
func (s *Store) Audits() repository.AuditRepository { return &auditRepository{s} }
func (s *Store) Outbox() repository.OutboxRepository { return &outboxRepository{s} }

func (s *Store) stamp(b *model.Base) {
	now := s.now()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// Repositories returns every repository backed by s.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Tx:            s,
		BloodUnits:    s.BloodUnits(),
		BloodRequests: s.BloodRequests(),
		Registrations: s.Registrations(),
		Records:       s.Records(),
		Schedules:     s.Schedules(),
		Users:         s.Users(),
		Audits:        s.Audits(),
		Outbox:        s.Outbox(),
	}
}
