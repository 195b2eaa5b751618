package model

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	RegistrationStatusScheduled RegistrationStatus = "scheduled"
	RegistrationStatusCheckedIn RegistrationStatus = "checked_in"
	RegistrationStatusCompleted RegistrationStatus = "completed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

// Active reports whether the registration still holds its schedule slot.
func (s RegistrationStatus) Active() bool {
	return s != RegistrationStatusCancelled
}

type DonationRegistration struct {
	Base
	DonorID     uuid.UUID          `json:"donor_id" db:"donor_id"`
	ScheduleID  uuid.UUID          `json:"schedule_id" db:"schedule_id"`
	TimeSlotID  uuid.UUID          `json:"time_slot_id" db:"time_slot_id"`
	Status      RegistrationStatus `json:"status" db:"status"`
	CheckedInAt *time.Time         `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// DonationSchedule is one blood drive on a given day.
type DonationSchedule struct {
	Base
	Location        string    `json:"location" db:"location"`
	Date            time.Time `json:"date" db:"date"`
	MaxSlots        int       `json:"max_slots" db:"max_slots"`
	RegisteredSlots int       `json:"registered_slots" db:"registered_slots"`
}

type TimeSlot struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ScheduleID uuid.UUID `json:"schedule_id" db:"schedule_id"`
	Start      time.Time `json:"start" db:"start_time"`
	End        time.Time `json:"end" db:"end_time"`
}

type TestResult string

const (
	TestResultPending TestResult = "pending"
	TestResultPassed  TestResult = "passed"
	TestResultFailed  TestResult = "failed"
)

// Vitals are the measurements taken before a donation.
type Vitals struct {
	WeightKg     float64 `json:"weight_kg" db:"weight_kg"`
	TemperatureC float64 `json:"temperature_c" db:"temperature_c"`
	SystolicBP   int     `json:"systolic_bp" db:"systolic_bp"`
	DiastolicBP  int     `json:"diastolic_bp" db:"diastolic_bp"`
}

type DonationRecord struct {
	Base
	RegistrationID   uuid.UUID  `json:"registration_id" db:"registration_id"`
	DonationTypeID   int        `json:"donation_type_id" db:"donation_type_id"`
	VolumeDonatedMl  int        `json:"volume_donated_ml" db:"volume_donated_ml"`
	TestResult       TestResult `json:"test_result" db:"test_result"`
	DonationDateTime time.Time  `json:"donation_date_time" db:"donation_date_time"`
	CertificateID    *string    `json:"certificate_id,omitempty" db:"certificate_id"`
	Vitals
}

// DonationType is one row of the donation-type reference table.
type DonationType struct {
	ID        int       `json:"id" mapstructure:"id" yaml:"id"`
	Code      string    `json:"code" mapstructure:"code" yaml:"code"`
	Component Component `json:"component" mapstructure:"component" yaml:"component"`
	WaitDays  int       `json:"wait_days" mapstructure:"wait_days" yaml:"wait_days"`
}

// Seeded donation type ids.
const (
	DonationTypeWholeBlood     = 1
	DonationTypeDoubleRedCells = 2
	DonationTypePlasma         = 3
	DonationTypePlatelets      = 4
)

type CreateScheduleRequest struct {
	Location string            `json:"location" binding:"required,max=200"`
	Date     time.Time         `json:"date" binding:"required"`
	MaxSlots int               `json:"max_slots" binding:"gte=0"`
	Slots    []TimeSlotRequest `json:"slots" binding:"dive"`
}

type TimeSlotRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

// ScheduleWithSlots is a schedule together with its time slots.
type ScheduleWithSlots struct {
	Schedule *DonationSchedule `json:"schedule"`
	Slots    []*TimeSlot       `json:"slots"`
}

type RegisterDonationRequest struct {
	DonorID    uuid.UUID `json:"donor_id" binding:"required"`
	ScheduleID uuid.UUID `json:"schedule_id" binding:"required"`
	TimeSlotID uuid.UUID `json:"time_slot_id" binding:"required"`
}

type CheckInRequest struct {
	NationalID string `json:"national_id" binding:"required,min=4,max=32"`
}

type RecordDonationRequest struct {
	DonationTypeID   int        `json:"donation_type_id" binding:"required"`
	VolumeDonatedMl  int        `json:"volume_donated_ml" binding:"required,gt=0,lte=1000"`
	TestResult       TestResult `json:"test_result" binding:"required,oneof=pending passed failed"`
	DonationDateTime time.Time  `json:"donation_date_time" binding:"required"`
	WeightKg         float64    `json:"weight_kg" binding:"required,gt=0"`
	TemperatureC     float64    `json:"temperature_c" binding:"required,gt=30,lt=45"`
	SystolicBP       int        `json:"systolic_bp" binding:"required,gt=0"`
	DiastolicBP      int        `json:"diastolic_bp" binding:"required,gt=0"`
}

// CompletionResult is everything Complete changed.
type CompletionResult struct {
	Registration *DonationRegistration `json:"registration"`
	Record       *DonationRecord       `json:"record"`
	Donor        *User                 `json:"donor"`
	Unit         *BloodUnit            `json:"unit,omitempty"`
}
