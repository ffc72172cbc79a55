package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicNotFound       = errors.New("clinic not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks
	ListForProfessionalDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error)
	ListForClinicDay(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)

	// Creation and mutation
	CreateAppointment(ctx context.Context, a *Appointment) error
	MoveAppointment(ctx context.Context, id uuid.UUID, date time.Time, startTime, endTime string, durationMinutes int) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev EventLog) error
}
