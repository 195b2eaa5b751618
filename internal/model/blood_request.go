package model

import (
	"time"

	"github.com/google/uuid"
)

type BloodRequestStatus string

const (
	BloodRequestStatusPending            BloodRequestStatus = "pending"
	BloodRequestStatusApproved           BloodRequestStatus = "approved"
	BloodRequestStatusRejected           BloodRequestStatus = "rejected"
	BloodRequestStatusFulfilled          BloodRequestStatus = "fulfilled"
	BloodRequestStatusPartiallyFulfilled BloodRequestStatus = "partially_fulfilled"
)

func (s BloodRequestStatus) Valid() bool {
	switch s {
	case BloodRequestStatusPending, BloodRequestStatusApproved, BloodRequestStatusRejected,
		BloodRequestStatusFulfilled, BloodRequestStatusPartiallyFulfilled:
		return true
	}
	return false
}

// Terminal reports whether no further workflow transition leaves s.
func (s BloodRequestStatus) Terminal() bool {
	return s == BloodRequestStatusRejected || s == BloodRequestStatusFulfilled
}

// Allocatable reports whether units may be assigned to a request in s.
func (s BloodRequestStatus) Allocatable() bool {
	return s == BloodRequestStatusApproved || s == BloodRequestStatusPartiallyFulfilled
}

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// RejectionNoteSeparator joins successive rejection reasons.
const RejectionNoteSeparator = " | "

type BloodRequest struct {
	Base
	RequestingStaffID uuid.UUID          `json:"requesting_staff_id" db:"requesting_staff_id"`
	BloodType         BloodType          `json:"blood_type" db:"blood_type"`
	Component         Component          `json:"component" db:"component"`
	VolumeRequestedMl int                `json:"volume_requested_ml" db:"volume_requested_ml"`
	VolumeRemainingMl int                `json:"volume_remaining_ml" db:"volume_remaining_ml"`
	Urgency           Urgency            `json:"urgency" db:"urgency"`
	Status            BloodRequestStatus `json:"status" db:"status"`
	ApproverID        *uuid.UUID         `json:"approver_id,omitempty" db:"approver_id"`
	ApprovedAt        *time.Time         `json:"approved_at,omitempty" db:"approved_at"`
	RejecterID        *uuid.UUID         `json:"rejecter_id,omitempty" db:"rejecter_id"`
	RejectedAt        *time.Time         `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionNote     string             `json:"rejection_note,omitempty" db:"rejection_note"`
}

// AppendRejectionNote adds reason to the note without discarding earlier ones.
func (r *BloodRequest) AppendRejectionNote(reason string) {
	if reason == "" {
		return
	}
	if r.RejectionNote == "" {
		r.RejectionNote = reason
		return
	}
	r.RejectionNote = r.RejectionNote + RejectionNoteSeparator + reason
}

type CreateBloodRequestRequest struct {
	BloodType         BloodType `json:"blood_type" binding:"required,bloodtype"`
	Component         Component `json:"component" binding:"required,oneof=whole_blood red_cells plasma platelets"`
	VolumeRequestedMl int       `json:"volume_requested_ml" binding:"required"`
	Urgency           Urgency   `json:"urgency" binding:"omitempty,oneof=routine urgent emergency"`
}

type RejectBloodRequestRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type UpdateBloodRequestStatusRequest struct {
	Status BloodRequestStatus `json:"status" binding:"required"`
}

type BloodRequestFilters struct {
	Status    BloodRequestStatus
	BloodType BloodType
	StaffID   uuid.UUID
}

// AllocationResult is the outcome of one allocation attempt. Insufficient
// inventory is a normal outcome reported through Insufficient and RemainingMl.
type AllocationResult struct {
	RequestID       uuid.UUID          `json:"request_id"`
	UnitsAssigned   []*BloodUnit       `json:"units_assigned"`
	VolumeCoveredMl int                `json:"volume_covered_ml"`
	RemainingMl     int                `json:"remaining_ml"`
	Status          BloodRequestStatus `json:"status"`
	Insufficient    bool               `json:"insufficient"`
	Skipped         bool               `json:"skipped,omitempty"`
}
