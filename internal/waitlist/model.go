package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationNotified  NotificationStatus = "notified"
	NotificationDeclined  NotificationStatus = "declined"
	NotificationConfirmed NotificationStatus = "confirmed"
	NotificationExpired   NotificationStatus = "expired"
)

// Offerable reports whether an entry in this status may receive a new
// offer. A notified entry has an offer outstanding and is excluded until
// it declines or the reclaim worker returns it to pending.
func (s NotificationStatus) Offerable() bool {
	return s == NotificationPending || s == NotificationDeclined
}

// Entry is one FIFO queue position: a patient waiting for an earlier or
// different slot. ProfessionalID nil means any professional is acceptable.
// Queue order is creation time, oldest first; no other tie-break applies.
type Entry struct {
	ID             uuid.UUID
	ClinicID       uuid.UUID
	PatientID      uuid.UUID
	PatientName    string
	Phone          *string
	ProfessionalID *uuid.UUID
	IsActive       bool
	Status         NotificationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Denormalized record of the last offer made to this entry. Kept even
	// when the send failed, as an audit trail of what was attempted.
	NotifiedAt              *time.Time
	SlotOfferedAt           *time.Time
	OfferedDate             *time.Time
	OfferedTime             *string
	OfferedProfessionalID   *uuid.UUID
	OfferedProfessionalName *string
}

// Compatible reports whether the entry can take a slot freed on the given
// professional's calendar.
func (e Entry) Compatible(professionalID uuid.UUID) bool {
	return e.ProfessionalID == nil || *e.ProfessionalID == professionalID
}

// FreedSlot describes the opening created by a cancellation or no-show.
type FreedSlot struct {
	Date             time.Time
	StartTime        string
	ProfessionalID   uuid.UUID
	ProfessionalName string
}

// Offer carries the slot fields written back to a claimed entry.
type Offer struct {
	Date             time.Time
	StartTime        string
	ProfessionalID   uuid.UUID
	ProfessionalName string
}
