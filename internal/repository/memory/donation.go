package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type registrationRepository struct {
	s *Store
}

func (r *registrationRepository) Create(ctx context.Context, reg *model.DonationRegistration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.stamp(&reg.Base)
	r.s.registrations[reg.ID] = *reg
	return nil
}

func (r *registrationRepository) Get(ctx context.Context, id uuid.UUID) (*model.DonationRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	reg, ok := r.s.registrations[id]
	if !ok {
		return nil, apperrors.NotFound("donation registration", nil)
	}
	return &reg, nil
}

func (r *registrationRepository) FindActive(ctx context.Context, donorID, scheduleID uuid.UUID) (*model.DonationRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, reg := range r.s.registrations {
		if reg.DonorID == donorID && reg.ScheduleID == scheduleID && reg.Status.Active() {
			found := reg
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("donation registration", nil)
}

func (r *registrationRepository) FindByDonorOnDate(ctx context.Context, donorID uuid.UUID, day time.Time) ([]*model.DonationRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.DonationRegistration
	for _, reg := range r.s.registrations {
		if reg.DonorID != donorID {
			continue
		}
		schedule, ok := r.s.schedules[reg.ScheduleID]
		if !ok || !sameDay(schedule.Date, day) {
			continue
		}
		found := reg
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *registrationRepository) Transition(ctx context.Context, reg *model.DonationRegistration, from model.RegistrationStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.registrations[reg.ID]
	if !ok {
		return false, apperrors.NotFound("donation registration", nil)
	}
	if current.Status != from {
		return false, nil
	}
	reg.UpdatedAt = r.s.now()
	r.s.registrations[reg.ID] = *reg
	return true, nil
}

type recordRepository struct {
	s *Store
}

func (r *recordRepository) Create(ctx context.Context, record *model.DonationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.records {
		if existing.RegistrationID == record.RegistrationID {
			return apperrors.NewConflict("donation record already exists for registration", nil)
		}
	}
	r.s.stamp(&record.Base)
	r.s.records[record.ID] = *record
	return nil
}

func (r *recordRepository) GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.DonationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, record := range r.s.records {
		if record.RegistrationID == registrationID {
			found := record
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("donation record", nil)
}

func (r *recordRepository) Update(ctx context.Context, record *model.DonationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.records[record.ID]; !ok {
		return apperrors.NotFound("donation record", nil)
	}
	record.UpdatedAt = r.s.now()
	r.s.records[record.ID] = *record
	return nil
}

type scheduleRepository struct {
	s *Store
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *model.DonationSchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.stamp(&schedule.Base)
	r.s.schedules[schedule.ID] = *schedule
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, id uuid.UUID) (*model.DonationSchedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	schedule, ok := r.s.schedules[id]
	if !ok {
		return nil, apperrors.NotFound("donation schedule", nil)
	}
	return &schedule, nil
}

func (r *scheduleRepository) GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return nil, apperrors.NotFound("time slot", nil)
	}
	return &slot, nil
}

func (r *scheduleRepository) CreateTimeSlot(ctx context.Context, slot *model.TimeSlot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.schedules[slot.ScheduleID]; !ok {
		return apperrors.NotFound("donation schedule", nil)
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	r.s.slots[slot.ID] = *slot
	return nil
}

func (r *scheduleRepository) ReserveSlot(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	schedule, ok := r.s.schedules[scheduleID]
	if !ok {
		return false, apperrors.NotFound("donation schedule", nil)
	}
	if schedule.MaxSlots > 0 && schedule.RegisteredSlots >= schedule.MaxSlots {
		return false, nil
	}
	schedule.RegisteredSlots++
	r.s.schedules[scheduleID] = schedule
	return true, nil
}

func (r *scheduleRepository) ReleaseSlot(ctx context.Context, scheduleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	schedule, ok := r.s.schedules[scheduleID]
	if !ok {
		return apperrors.NotFound("donation schedule", nil)
	}
	if schedule.RegisteredSlots > 0 {
		schedule.RegisteredSlots--
	}
	r.s.schedules[scheduleID] = schedule
	return nil
}
