package model

import (
	"time"

	"github.com/google/uuid"
)

// BloodType is an ABO/Rh identifier such as "O-" or "AB+".
type BloodType string

// Component is the blood fraction a unit carries.
type Component string

const (
	ComponentWholeBlood Component = "whole_blood"
	ComponentRedCells   Component = "red_cells"
	ComponentPlasma     Component = "plasma"
	ComponentPlatelets  Component = "platelets"
)

// Components lists every known component.
var Components = []Component{
	ComponentWholeBlood,
	ComponentRedCells,
	ComponentPlasma,
	ComponentPlatelets,
}

func (c Component) Valid() bool {
	for _, known := range Components {
		if c == known {
			return true
		}
	}
	return false
}

// ShelfLife is how long a freshly collected unit of the component stays usable.
func (c Component) ShelfLife() time.Duration {
	switch c {
	case ComponentRedCells:
		return 42 * 24 * time.Hour
	case ComponentPlasma:
		return 365 * 24 * time.Hour
	case ComponentPlatelets:
		return 5 * 24 * time.Hour
	default:
		return 35 * 24 * time.Hour
	}
}

type BloodUnitStatus string

const (
	BloodUnitStatusAvailable BloodUnitStatus = "available"
	BloodUnitStatusAssigned  BloodUnitStatus = "assigned"
	BloodUnitStatusExpired   BloodUnitStatus = "expired"
	BloodUnitStatusUnusable  BloodUnitStatus = "unusable"
)

// BloodUnit is one physically collected unit.
type BloodUnit struct {
	Base
	SourceDonationRecordID *uuid.UUID      `json:"source_donation_record_id,omitempty" db:"source_donation_record_id"`
	BloodType              BloodType       `json:"blood_type" db:"blood_type"`
	Component              Component       `json:"component" db:"component"`
	VolumeMl               int             `json:"volume_ml" db:"volume_ml"`
	CollectedAt            time.Time       `json:"collected_at" db:"collected_at"`
	ExpiresAt              time.Time       `json:"expires_at" db:"expires_at"`
	Status                 BloodUnitStatus `json:"status" db:"status"`
	LinkedRequestID        *uuid.UUID      `json:"linked_request_id,omitempty" db:"linked_request_id"`
}

// IsExpired reports whether the unit's shelf life has passed at now.
func (u *BloodUnit) IsExpired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}

// Usable reports whether the unit can be reserved at now.
func (u *BloodUnit) Usable(now time.Time) bool {
	return u.Status == BloodUnitStatusAvailable && !u.IsExpired(now)
}

// DegradeIfExpired moves an available unit past its expiry to Expired and
// reports whether it changed.
func (u *BloodUnit) DegradeIfExpired(now time.Time) bool {
	if u.Status == BloodUnitStatusAvailable && u.IsExpired(now) {
		u.Status = BloodUnitStatusExpired
		return true
	}
	return false
}

type CreateBloodUnitRequest struct {
	BloodType   BloodType  `json:"blood_type" binding:"required,bloodtype"`
	Component   Component  `json:"component" binding:"required,oneof=whole_blood red_cells plasma platelets"`
	VolumeMl    int        `json:"volume_ml" binding:"required,gt=0,lte=1000"`
	CollectedAt time.Time  `json:"collected_at" binding:"required"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type BloodUnitFilters struct {
	BloodType BloodType
	Component Component
	Status    BloodUnitStatus
	RequestID *uuid.UUID
}
