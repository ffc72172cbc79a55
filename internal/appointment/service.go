package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/agendasaude/clinic-scheduling/internal/redis"
	"github.com/agendasaude/clinic-scheduling/internal/timeutil"
	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

const (
	EventAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	EventAppointmentMoved     = "APPOINTMENT_MOVED"
	EventStatusChanged        = "APPOINTMENT_STATUS_CHANGED"
	EventSlotFreed            = "APPOINTMENT_SLOT_FREED"
)

var (
	ErrAgendaBusy          = errors.New("agenda is being modified, please retry")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidDuration     = errors.New("duration must be a positive number of minutes")
	ErrPatientClinicMisfit = errors.New("patient does not belong to the clinic")
)

// ConflictError reports the active appointments that block a proposal.
type ConflictError struct {
	Conflicts []Appointment
}

func (e *ConflictError) Error() string {
	return ConflictMessage(e.Conflicts)
}

// statusTransitions maps each target status to the source states it may
// be reached from. Transitions run as compare-and-swap updates, so a
// concurrent change surfaces as ErrInvalidTransition rather than a lost
// update.
var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusConfirmed:  {StatusScheduled},
	StatusInProgress: {StatusScheduled, StatusConfirmed},
	StatusCompleted:  {StatusInProgress},
	StatusCancelled:  {StatusScheduled, StatusConfirmed},
	StatusNoShow:     {StatusScheduled, StatusConfirmed},
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	promoter *waitlist.Promoter
	log      *zap.Logger
}

func NewService(repo Repository, locker redisclient.Locker, promoter *waitlist.Promoter, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		promoter: promoter,
		log:      log,
	}
}

type ScheduleRequest struct {
	ClinicID        uuid.UUID
	PatientID       uuid.UUID
	ProfessionalID  uuid.UUID
	Date            time.Time
	StartTime       string
	DurationMinutes int
}

// Schedule books an appointment after a conflict check. The check and the
// insert run inside a per professional-day lock so two concurrent
// requests cannot both pass the overlap scan.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*Appointment, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	endTime, err := timeutil.CalculateEndTime(req.StartTime, req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.ClinicID != req.ClinicID {
		return nil, ErrPatientClinicMisfit
	}

	if _, err := s.repo.GetProfessionalByID(ctx, req.ProfessionalID); err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}

	var created *Appointment

	err = s.locker.WithAgendaLock(ctx, req.ProfessionalID, req.Date, func(lockCtx context.Context) error {
		existing, err := s.repo.ListForProfessionalDay(lockCtx, req.ProfessionalID, req.Date)
		if err != nil {
			return fmt.Errorf("list professional day: %w", err)
		}

		conflicts, err := FindConflictingAppointments(existing, Proposal{
			Date:            req.Date,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
			ProfessionalID:  req.ProfessionalID,
		})
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		duration := req.DurationMinutes
		appt := &Appointment{
			ClinicID:        req.ClinicID,
			PatientID:       req.PatientID,
			PatientName:     patient.Name,
			ProfessionalID:  req.ProfessionalID,
			Date:            req.Date,
			StartTime:       req.StartTime,
			EndTime:         endTime,
			DurationMinutes: &duration,
			Status:          StatusScheduled,
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return err
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentScheduled, map[string]any{
			"professional_id": req.ProfessionalID.String(),
			"date":            req.Date.Format("2006-01-02"),
			"start_time":      req.StartTime,
			"end_time":        endTime,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAgendaBusy
		}
		return nil, err
	}

	return created, nil
}

type RescheduleRequest struct {
	Date            time.Time
	StartTime       string
	DurationMinutes int
}

// Reschedule moves an existing appointment to a new slot. The appointment
// itself is excluded from the conflict scan, so keeping the same time is
// never self-blocking.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	endTime, err := timeutil.CalculateEndTime(req.StartTime, req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.Active() {
		return nil, ErrInvalidTransition
	}

	var moved *Appointment

	err = s.locker.WithAgendaLock(ctx, appt.ProfessionalID, req.Date, func(lockCtx context.Context) error {
		existing, err := s.repo.ListForProfessionalDay(lockCtx, appt.ProfessionalID, req.Date)
		if err != nil {
			return fmt.Errorf("list professional day: %w", err)
		}

		conflicts, err := FindConflictingAppointments(existing, Proposal{
			Date:            req.Date,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
			ProfessionalID:  appt.ProfessionalID,
			ExcludeID:       appt.ID,
		})
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		updated, err := s.repo.MoveAppointment(lockCtx, appt.ID, req.Date, req.StartTime, endTime, req.DurationMinutes)
		if err != nil {
			return err
		}

		moved = updated
		s.logEvent(lockCtx, appt.ID, EventAppointmentMoved, map[string]any{
			"from_date":       appt.Date.Format("2006-01-02"),
			"from_start_time": appt.StartTime,
			"to_date":         req.Date.Format("2006-01-02"),
			"to_start_time":   req.StartTime,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAgendaBusy
		}
		return nil, err
	}

	return moved, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// Cancel frees the slot and triggers at most one waiting list promotion
// attempt. The promotion outcome is reported alongside the cancelled
// appointment; a failed promotion never fails the cancellation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, waitlist.Result, error) {
	return s.freeSlot(ctx, id, StatusCancelled)
}

// MarkNoShow behaves like Cancel for promotion purposes: the slot is gone
// for the original patient either way.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, waitlist.Result, error) {
	return s.freeSlot(ctx, id, StatusNoShow)
}

func (s *Service) freeSlot(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, waitlist.Result, error) {
	appt, err := s.transition(ctx, id, to)
	if err != nil {
		return nil, waitlist.Result{}, err
	}

	s.logEvent(ctx, appt.ID, EventSlotFreed, map[string]any{
		"reason":          string(to),
		"professional_id": appt.ProfessionalID.String(),
		"date":            appt.Date.Format("2006-01-02"),
		"start_time":      appt.StartTime,
	})

	professional, err := s.repo.GetProfessionalByID(ctx, appt.ProfessionalID)
	if err != nil {
		s.log.Error("load professional for promotion", zap.Error(err))
		return appt, waitlist.Result{Kind: waitlist.OutcomeFailed, Err: err}, nil
	}
	clinic, err := s.repo.GetClinicByID(ctx, appt.ClinicID)
	if err != nil {
		s.log.Error("load clinic for promotion", zap.Error(err))
		return appt, waitlist.Result{Kind: waitlist.OutcomeFailed, Err: err}, nil
	}

	result := s.promoter.PromoteFreedSlot(ctx, appt.ClinicID, clinic.Name, waitlist.FreedSlot{
		Date:             appt.Date,
		StartTime:        appt.StartTime,
		ProfessionalID:   appt.ProfessionalID,
		ProfessionalName: professional.Name,
	})
	if result.Kind == waitlist.OutcomeFailed {
		s.log.Error("waiting list promotion failed", zap.Error(result.Err))
	}

	return appt, result, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	from, ok := statusTransitions[to]
	if !ok {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Distinguish a missing row from a disallowed transition.
			if _, getErr := s.repo.GetAppointmentByID(ctx, id); getErr == nil {
				return nil, ErrInvalidTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"to": string(to),
	})

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListForProfessionalDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListForProfessionalDay(ctx, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("list professional day: %w", err)
	}
	return appts, nil
}

// AuditConflicts flags every appointment in the clinic's day that
// overlaps another active appointment for the same professional.
func (s *Service) AuditConflicts(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]uuid.UUID, error) {
	appts, err := s.repo.ListForClinicDay(ctx, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("list clinic day: %w", err)
	}

	flagged, err := FindAllConflictingAppointments(appts)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(flagged))
	for _, a := range appts {
		if _, ok := flagged[a.ID]; ok {
			ids = append(ids, a.ID)
			delete(flagged, a.ID)
		}
	}

	return ids, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
