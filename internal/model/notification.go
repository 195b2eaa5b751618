package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is one message handed to a delivery channel.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Channel   string
	Subject   string
	Content   string
	Recipient string
	Status    NotificationStatus
	LastError string
	SentAt    time.Time
	CreatedAt time.Time
}

// EmergencyBroadcast carries the facts of an open request to eligible donors.
type EmergencyBroadcast struct {
	ID                uuid.UUID   `json:"id"`
	RequestID         uuid.UUID   `json:"request_id"`
	BloodType         BloodType   `json:"blood_type"`
	Component         Component   `json:"component"`
	VolumeRemainingMl int         `json:"volume_remaining_ml"`
	Urgency           Urgency     `json:"urgency"`
	DonorIDs          []uuid.UUID `json:"donor_ids"`
	RequestedBy       uuid.UUID   `json:"requested_by"`
	CreatedAt         time.Time   `json:"created_at"`
}

// BroadcastResult reports who was reached by a broadcast.
type BroadcastResult struct {
	Broadcast *EmergencyBroadcast `json:"broadcast"`
	Delivered int                 `json:"delivered"`
	Failed    int                 `json:"failed"`
}
