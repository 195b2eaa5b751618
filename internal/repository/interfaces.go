package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
)

// All repository interfaces in one file
type (
	// Transactor runs fn inside a unit of work. Repositories called with the
	// ctx handed to fn participate in the same transaction.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	// BloodUnitRepository is the inventory store.
	BloodUnitRepository interface {
		Create(ctx context.Context, unit *model.BloodUnit) error
		// Get degrades an available unit past its expiry to expired before
		// returning it.
		Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error)
		List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error)
		// QueryAvailableUnits returns available, unexpired units of the given
		// types and component ordered by expires_at then collected_at.
		QueryAvailableUnits(ctx context.Context, types []model.BloodType, component model.Component, asOf time.Time) ([]*model.BloodUnit, error)
		// TryReserve assigns the unit to requestID only if it is still
		// available and unexpired. false means another caller won.
		TryReserve(ctx context.Context, unitID, requestID uuid.UUID, asOf time.Time) (bool, error)
		// MarkUnusable discards an available unit.
		MarkUnusable(ctx context.Context, unitID uuid.UUID) (bool, error)
	}

	BloodRequestRepository interface {
		Create(ctx context.Context, req *model.BloodRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
		// GetForUpdate locks the row for the surrounding transaction.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
		Update(ctx context.Context, req *model.BloodRequest) error
		List(ctx context.Context, filters *model.BloodRequestFilters) ([]*model.BloodRequest, error)
	}

	RegistrationRepository interface {
		Create(ctx context.Context, reg *model.DonationRegistration) error
		Get(ctx context.Context, id uuid.UUID) (*model.DonationRegistration, error)
		// FindActive returns the non-cancelled registration of donor on schedule.
		FindActive(ctx context.Context, donorID, scheduleID uuid.UUID) (*model.DonationRegistration, error)
		// FindByDonorOnDate returns the donor's registrations for schedules on day.
		FindByDonorOnDate(ctx context.Context, donorID uuid.UUID, day time.Time) ([]*model.DonationRegistration, error)
		// Transition moves the registration from one status to another only if
		// it is still in from. The registration is updated in place.
		Transition(ctx context.Context, reg *model.DonationRegistration, from model.RegistrationStatus) (bool, error)
	}

	DonationRecordRepository interface {
		Create(ctx context.Context, record *model.DonationRecord) error
		GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.DonationRecord, error)
		Update(ctx context.Context, record *model.DonationRecord) error
	}

	ScheduleRepository interface {
		Create(ctx context.Context, schedule *model.DonationSchedule) error
		Get(ctx context.Context, id uuid.UUID) (*model.DonationSchedule, error)
		GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error)
		CreateTimeSlot(ctx context.Context, slot *model.TimeSlot) error
		// ReserveSlot increments the registered counter unless the schedule is full.
		ReserveSlot(ctx context.Context, scheduleID uuid.UUID) (bool, error)
		ReleaseSlot(ctx context.Context, scheduleID uuid.UUID) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		// GetForUpdate locks the donor row for the surrounding transaction.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		GetByNationalID(ctx context.Context, nationalID string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdateEligibility(ctx context.Context, user *model.User) error
		ListDonors(ctx context.Context, filters *model.DonorFilters) ([]*model.User, error)
		// RestoreAvailability flips temporarily unavailable donors whose next
		// eligible date has passed back to available.
		RestoreAvailability(ctx context.Context, asOf time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEvents claims up to limit events that are pending or due
		// for retry.
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories bundles every store one database driver provides.
type Repositories struct {
	Tx            Transactor
	BloodUnits    BloodUnitRepository
	BloodRequests BloodRequestRepository
	Registrations RegistrationRepository
	Records       DonationRecordRepository
	Schedules     ScheduleRepository
	Users         UserRepository
	Audits        AuditRepository
	Outbox        OutboxRepository
}
