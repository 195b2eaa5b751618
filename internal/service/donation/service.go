// Package donation runs a donor's visit from registration to completion and
// keeps the donor's eligibility fields current.
package donation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/keylock"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

const entity = "donation registration"

type DonationServicer interface {
	CreateSchedule(ctx context.Context, in *model.CreateScheduleRequest) (*model.ScheduleWithSlots, error)
	Register(ctx context.Context, in *model.RegisterDonationRequest) (*model.DonationRegistration, error)
	CheckIn(ctx context.Context, nationalID string) (*model.DonationRegistration, error)
	RecordDonation(ctx context.Context, registrationID uuid.UUID, in *model.RecordDonationRequest) (*model.DonationRecord, error)
	Complete(ctx context.Context, registrationID, actorID uuid.UUID) (*model.CompletionResult, error)
	Cancel(ctx context.Context, registrationID, actorID uuid.UUID) (*model.DonationRegistration, error)
	Get(ctx context.Context, registrationID uuid.UUID) (*model.DonationRegistration, error)
	RestoreAvailability(ctx context.Context) (int64, error)
}

type Options struct {
	// ProgramCode prefixes donation certificate ids.
	ProgramCode string
	Types       *TypeTable
}

type Service struct {
	registrations repository.RegistrationRepository
	records       repository.DonationRecordRepository
	schedules     repository.ScheduleRepository
	users         repository.UserRepository
	units         repository.BloodUnitRepository
	tx            repository.Transactor

	types   *TypeTable
	program string

	events  event.Emitter
	auditor *audit.AuditLogger
	metrics *metrics.Metrics
	log     *logger.Logger
	tracer  trace.Tracer

	donorLocks   *keylock.Locker
	checkInLocks *keylock.Locker
	checkIns     singleflight.Group
	now          func() time.Time
}

func NewService(
	repos *repository.Repositories,
	opts Options,
	events event.Emitter,
	auditor *audit.AuditLogger,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		registrations: repos.Registrations,
		records:       repos.Records,
		schedules:     repos.Schedules,
		users:         repos.Users,
		units:         repos.BloodUnits,
		tx:            repos.Tx,
		types:         opts.Types,
		program:       opts.ProgramCode,
		events:        events,
		auditor:       auditor,
		metrics:       m,
		log:           log,
		tracer:        otel.Tracer("github.com/jwalitptl/bloodbank/internal/service/donation"),
		donorLocks:    keylock.New(),
		checkInLocks:  keylock.New(),
		now:           time.Now,
	}
}

// SetClock overrides the service's notion of now.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) CreateSchedule(ctx context.Context, in *model.CreateScheduleRequest) (*model.ScheduleWithSlots, error) {
	day := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, in.Date.Location())
	for _, slot := range in.Slots {
		if !slot.End.After(slot.Start) {
			return nil, apperrors.NewBadRequest("time slot must end after it starts", nil)
		}
	}

	out := &model.ScheduleWithSlots{
		Schedule: &model.DonationSchedule{Location: in.Location, Date: day, MaxSlots: in.MaxSlots},
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.Create(ctx, out.Schedule); err != nil {
			return err
		}
		for _, slot := range in.Slots {
			ts := &model.TimeSlot{ScheduleID: out.Schedule.ID, Start: slot.Start, End: slot.End}
			if err := s.schedules.CreateTimeSlot(ctx, ts); err != nil {
				return err
			}
			out.Slots = append(out.Slots, ts)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create donation schedule: %w", err)
	}
	return out, nil
}

// Register books a slot for an eligible donor. A donor holds at most one
// active registration per schedule.
func (s *Service) Register(ctx context.Context, in *model.RegisterDonationRequest) (*model.DonationRegistration, error) {
	unlock, err := s.donorLocks.Lock(ctx, in.DonorID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	donor, err := s.users.Get(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if donor.Role != model.UserRoleDonor {
		return nil, apperrors.NewBadRequest("user is not a donor", nil)
	}
	if !donor.EligibleAt(s.now()) {
		return nil, apperrors.NewInvalidTransition("donor", string(donor.AvailabilityStatus), "register")
	}

	slot, err := s.schedules.GetTimeSlot(ctx, in.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if slot.ScheduleID != in.ScheduleID {
		return nil, apperrors.NewBadRequest("time slot does not belong to schedule", nil)
	}

	existing, err := s.registrations.FindActive(ctx, in.DonorID, in.ScheduleID)
	if err == nil && existing != nil {
		return nil, apperrors.NewConflict("donor already registered for schedule", nil)
	}
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	reg := &model.DonationRegistration{
		DonorID:    in.DonorID,
		ScheduleID: in.ScheduleID,
		TimeSlotID: in.TimeSlotID,
		Status:     model.RegistrationStatusScheduled,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.schedules.ReserveSlot(ctx, in.ScheduleID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflict("donation schedule is full", nil)
		}
		return s.registrations.Create(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, donor.ID, model.AuditActionCreate, model.AuditEntityRegistration, reg.ID, nil)
	return reg, nil
}

// CheckIn moves the donor's registration for today to checked in. Concurrent
// calls for the same donor and day share one outcome, and a repeat after
// success returns the checked-in registration.
func (s *Service) CheckIn(ctx context.Context, nationalID string) (*model.DonationRegistration, error) {
	ctx, span := s.tracer.Start(ctx, "donation.CheckIn")
	defer span.End()

	today := s.now()
	key := nationalID + "|" + today.Format("2006-01-02")

	// A cancelled caller must not fail the others coalesced on key.
	shared := context.WithoutCancel(ctx)
	ch := s.checkIns.DoChan(key, func() (interface{}, error) {
		unlock, err := s.checkInLocks.Lock(shared, key)
		if err != nil {
			return nil, err
		}
		defer unlock()
		return s.checkIn(shared, nationalID, today)
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("checkin.shared", res.Shared))
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, res.Err
		}
		reg := *res.Val.(*model.DonationRegistration)
		return &reg, nil
	}
}

func (s *Service) checkIn(ctx context.Context, nationalID string, today time.Time) (*model.DonationRegistration, error) {
	donor, err := s.users.GetByNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}

	regs, err := s.registrations.FindByDonorOnDate(ctx, donor.ID, today)
	if err != nil {
		return nil, err
	}

	var scheduled *model.DonationRegistration
	for _, reg := range regs {
		switch reg.Status {
		case model.RegistrationStatusCheckedIn:
			return reg, nil
		case model.RegistrationStatusScheduled:
			if scheduled == nil {
				scheduled = reg
			}
		}
	}
	if scheduled == nil {
		return nil, apperrors.NotFound("registration for today", nil)
	}

	checkedIn := *scheduled
	checkedIn.Status = model.RegistrationStatusCheckedIn
	checkedIn.CheckedInAt = &today
	ok, err := s.registrations.Transition(ctx, &checkedIn, model.RegistrationStatusScheduled)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.registrations.Get(ctx, scheduled.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.RegistrationStatusCheckedIn {
			return current, nil
		}
		return nil, apperrors.NewInvalidTransition(entity, string(current.Status), "check in")
	}

	s.metrics.CheckIns.Inc()
	s.auditor.Log(ctx, donor.ID, model.AuditActionCheckIn, model.AuditEntityRegistration, checkedIn.ID, nil)
	s.log.Info("donor checked in", "registration_id", checkedIn.ID.String())
	return &checkedIn, nil
}

// RecordDonation attaches the collection record to a checked-in
// registration, replacing an earlier one.
func (s *Service) RecordDonation(ctx context.Context, registrationID uuid.UUID, in *model.RecordDonationRequest) (*model.DonationRecord, error) {
	if _, err := s.types.Lookup(in.DonationTypeID); err != nil {
		return nil, err
	}
	if in.VolumeDonatedMl <= 0 {
		return nil, apperrors.NewBadRequest("volume_donated_ml must be positive", nil)
	}

	var record *model.DonationRecord
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.Get(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationStatusCheckedIn {
			return apperrors.NewInvalidTransition(entity, string(reg.Status), "record donation for")
		}

		existing, err := s.records.GetByRegistration(ctx, registrationID)
		if err != nil && !apperrors.IsNotFound(err) {
			return err
		}
		if existing == nil {
			record = &model.DonationRecord{RegistrationID: registrationID}
		} else {
			record = existing
		}
		record.DonationTypeID = in.DonationTypeID
		record.VolumeDonatedMl = in.VolumeDonatedMl
		record.TestResult = in.TestResult
		record.DonationDateTime = in.DonationDateTime
		record.Vitals = model.Vitals{
			WeightKg:     in.WeightKg,
			TemperatureC: in.TemperatureC,
			SystolicBP:   in.SystolicBP,
			DiastolicBP:  in.DiastolicBP,
		}

		if existing == nil {
			return s.records.Create(ctx, record)
		}
		return s.records.Update(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Complete closes a checked-in registration whose record passed testing. It
// issues the certificate, starts the donor's waiting period and puts the
// collected unit into inventory. Completing twice fails with an invalid
// transition and changes nothing.
func (s *Service) Complete(ctx context.Context, registrationID, actorID uuid.UUID) (*model.CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "donation.Complete",
		trace.WithAttributes(attribute.String("registration.id", registrationID.String())))
	defer span.End()

	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.donorLocks.Lock(ctx, reg.DonorID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &model.CompletionResult{}
	var dtype model.DonationType
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.Get(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationStatusCheckedIn {
			return apperrors.NewInvalidTransition(entity, string(reg.Status), "complete")
		}

		record, err := s.records.GetByRegistration(ctx, reg.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewBadRequest("donation record is required before completion", nil)
			}
			return err
		}
		if record.TestResult != model.TestResultPassed {
			return apperrors.NewBadRequest(fmt.Sprintf("donation test result is %q", record.TestResult), nil)
		}

		dtype, err = s.types.Lookup(record.DonationTypeID)
		if err != nil {
			return err
		}

		donor, err := s.users.GetForUpdate(ctx, reg.DonorID)
		if err != nil {
			return err
		}
		if donor.BloodType == nil {
			return apperrors.NewBadRequest("donor blood type is not recorded", nil)
		}

		completed := *reg
		now := s.now()
		completed.Status = model.RegistrationStatusCompleted
		completed.CompletedAt = &now
		ok, err := s.registrations.Transition(ctx, &completed, model.RegistrationStatusCheckedIn)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.registrations.Get(ctx, reg.ID)
			if err != nil {
				return err
			}
			return apperrors.NewInvalidTransition(entity, string(current.Status), "complete")
		}

		if record.CertificateID == nil {
			cert := CertificateID(s.program, donor.DonorNumber, record.DonationDateTime)
			record.CertificateID = &cert
			if err := s.records.Update(ctx, record); err != nil {
				return err
			}
		}

		donated := record.DonationDateTime
		nextEligible := donated.AddDate(0, 0, dtype.WaitDays)
		donor.LastDonationDate = &donated
		donor.NextEligibleDonationDate = &nextEligible
		donor.AvailabilityStatus = model.AvailabilityTemporarilyUnavailable
		if err := s.users.UpdateEligibility(ctx, donor); err != nil {
			return err
		}

		unit := &model.BloodUnit{
			SourceDonationRecordID: &record.ID,
			BloodType:              *donor.BloodType,
			Component:              dtype.Component,
			VolumeMl:               record.VolumeDonatedMl,
			CollectedAt:            donated,
			ExpiresAt:              donated.Add(dtype.Component.ShelfLife()),
			Status:                 model.BloodUnitStatusAvailable,
		}
		if err := s.units.Create(ctx, unit); err != nil {
			return err
		}

		result.Registration = &completed
		result.Record = record
		result.Donor = donor
		result.Unit = unit
		return s.events.Emit(ctx, model.EventDonationCompleted, completedEvent{
			RegistrationID:           completed.ID,
			DonorID:                  donor.ID,
			CertificateID:            *record.CertificateID,
			UnitID:                   unit.ID,
			NextEligibleDonationDate: nextEligible,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.DonationsCompleted.WithLabelValues(dtype.Code).Inc()
	s.auditor.Log(ctx, actorID, model.AuditActionComplete, model.AuditEntityRegistration, registrationID, &audit.LogOptions{
		Metadata: map[string]string{"certificate_id": *result.Record.CertificateID},
	})
	s.log.Info("donation completed",
		"registration_id", registrationID.String(),
		"donor_id", result.Donor.ID.String(),
		"unit_id", result.Unit.ID.String(),
	)
	return result, nil
}

type completedEvent struct {
	RegistrationID           uuid.UUID `json:"registration_id"`
	DonorID                  uuid.UUID `json:"donor_id"`
	CertificateID            string    `json:"certificate_id"`
	UnitID                   uuid.UUID `json:"unit_id"`
	NextEligibleDonationDate time.Time `json:"next_eligible_donation_date"`
}

// Cancel releases the registration's slot. Only scheduled or checked-in
// registrations can be cancelled.
func (s *Service) Cancel(ctx context.Context, registrationID, actorID uuid.UUID) (*model.DonationRegistration, error) {
	var cancelled model.DonationRegistration
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.Get(ctx, registrationID)
		if err != nil {
			return err
		}
		from := reg.Status
		if from != model.RegistrationStatusScheduled && from != model.RegistrationStatusCheckedIn {
			return apperrors.NewInvalidTransition(entity, string(from), "cancel")
		}

		now := s.now()
		cancelled = *reg
		cancelled.Status = model.RegistrationStatusCancelled
		cancelled.CancelledAt = &now
		ok, err := s.registrations.Transition(ctx, &cancelled, from)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflict("registration changed concurrently", nil)
		}
		return s.schedules.ReleaseSlot(ctx, reg.ScheduleID)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, model.AuditActionCancel, model.AuditEntityRegistration, registrationID, nil)
	return &cancelled, nil
}

func (s *Service) Get(ctx context.Context, registrationID uuid.UUID) (*model.DonationRegistration, error) {
	return s.registrations.Get(ctx, registrationID)
}

// RestoreAvailability returns donors whose waiting period has ended to the
// available pool.
func (s *Service) RestoreAvailability(ctx context.Context) (int64, error) {
	restored, err := s.users.RestoreAvailability(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if restored > 0 {
		s.metrics.DonorsRestored.Add(float64(restored))
		s.log.Info("donors available again", "count", restored)
	}
	return restored, nil
}
