package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Active reports whether a slot with this status still occupies the
// professional's calendar. Cancelled and no-show slots never block or
// get flagged by conflict checks.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Professional struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one scheduled occupancy of a professional's calendar:
// a civil date plus a [StartTime, EndTime) wall-clock range at minute
// precision.
type Appointment struct {
	ID              uuid.UUID
	ClinicID        uuid.UUID
	PatientID       uuid.UUID
	PatientName     string
	ProfessionalID  uuid.UUID
	Date            time.Time
	StartTime       string
	EndTime         string
	DurationMinutes *int
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Proposal is a candidate placement to be checked against existing
// appointments. ExcludeID carries the id of the appointment being edited
// so it never conflicts with itself; uuid.Nil for a fresh booking.
type Proposal struct {
	Date            time.Time
	StartTime       string
	DurationMinutes int
	ProfessionalID  uuid.UUID
	ExcludeID       uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
