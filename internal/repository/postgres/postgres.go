package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/bloodbank/internal/repository"
)

// NewRepositories wires every postgres repository onto db.
func NewRepositories(db *sqlx.DB) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Tx:            NewTransactor(db),
		BloodUnits:    NewBloodUnitRepository(base),
		BloodRequests: NewBloodRequestRepository(base),
		Registrations: NewRegistrationRepository(base),
		Records:       NewDonationRecordRepository(base),
		Schedules:     NewScheduleRepository(base),
		Users:         NewUserRepository(base),
		Audits:        NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
