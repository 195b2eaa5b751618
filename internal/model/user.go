package model

import (
	"time"
)

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
	UserStatusLocked   = "locked"
)

// User role constants
const (
	UserRoleAdmin = "admin"
	UserRoleStaff = "staff"
	UserRoleDonor = "donor"
)

type AvailabilityStatus string

const (
	AvailabilityAvailable              AvailabilityStatus = "available"
	AvailabilityTemporarilyUnavailable AvailabilityStatus = "temporarily_unavailable"
)

// User represents staff and donors alike. Donor eligibility fields are only
// written by the donation lifecycle.
type User struct {
	Base
	Email            string     `json:"email" db:"email"`
	Name             string     `json:"name" db:"name"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	Role             string     `json:"role" db:"role"`
	Status           string     `json:"status" db:"status"`
	Phone            *string    `json:"phone,omitempty" db:"phone"`
	LoginAttempts    int        `json:"-" db:"login_attempts"`
	LastLoginAttempt *time.Time `json:"-" db:"last_login_attempt"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	DonorNumber              int64              `json:"donor_number,omitempty" db:"donor_number"`
	NationalID               *string            `json:"-" db:"national_id"`
	BloodType                *BloodType         `json:"blood_type,omitempty" db:"blood_type"`
	LastDonationDate         *time.Time         `json:"last_donation_date,omitempty" db:"last_donation_date"`
	NextEligibleDonationDate *time.Time         `json:"next_eligible_donation_date,omitempty" db:"next_eligible_donation_date"`
	AvailabilityStatus       AvailabilityStatus `json:"availability_status,omitempty" db:"availability_status"`
}

// EligibleAt reports whether the donor may donate at now.
func (u *User) EligibleAt(now time.Time) bool {
	if u.AvailabilityStatus != AvailabilityAvailable {
		return false
	}
	return u.NextEligibleDonationDate == nil || !u.NextEligibleDonationDate.After(now)
}

// DonorFilters narrows donor listings.
type DonorFilters struct {
	BloodTypes   []BloodType
	Availability AvailabilityStatus
}

type UserFilters struct {
	Role       string
	Status     string
	SearchTerm string
}

type CreateStaffRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,max=200"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin staff"`
}

type CreateDonorRequest struct {
	Email      string    `json:"email" binding:"required,email"`
	Name       string    `json:"name" binding:"required,max=200"`
	Phone      *string   `json:"phone" binding:"omitempty,max=32"`
	NationalID string    `json:"national_id" binding:"required,min=4,max=32"`
	BloodType  BloodType `json:"blood_type" binding:"required,bloodtype"`
}
