package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/agendasaude/clinic-scheduling/internal/appointment"
	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

type CreateAppointmentRequest struct {
	ClinicID        string `json:"clinic_id"`
	PatientID       string `json:"patient_id"`
	ProfessionalID  string `json:"professional_id"`
	Date            string `json:"date"`       // YYYY-MM-DD
	StartTime       string `json:"start_time"` // HH:MM
	DurationMinutes int    `json:"duration_minutes"`
}

type RescheduleAppointmentRequest struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PatientName     string    `json:"patient_name,omitempty"`
	ProfessionalID  uuid.UUID `json:"professional_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Status          string    `json:"status"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ClinicID:        a.ClinicID,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		ProfessionalID:  a.ProfessionalID,
		Date:            a.Date.Format("2006-01-02"),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
	}
}

// PromotionResponse flattens the promoter's tagged outcome for JSON
// consumers.
type PromotionResponse struct {
	Notified     bool   `json:"notified"`
	PatientName  string `json:"patient_name,omitempty"`
	WaitingCount int    `json:"waiting_count"`
	SkipReason   string `json:"skip_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

func toPromotionResponse(r waitlist.Result) PromotionResponse {
	resp := PromotionResponse{
		Notified:     r.Notified(),
		PatientName:  r.PatientName,
		WaitingCount: r.WaitingCount,
	}
	if r.Kind == waitlist.OutcomeSkipped {
		resp.SkipReason = string(r.Reason)
		if r.Reason == waitlist.SkipNoPhone {
			resp.Error = "Paciente sem telefone"
		}
	}
	if r.Err != nil && resp.Error == "" {
		resp.Error = r.Err.Error()
	}
	return resp
}

type FreedSlotResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Promotion   PromotionResponse   `json:"promotion"`
}

type JoinWaitlistRequest struct {
	ClinicID       string  `json:"clinic_id"`
	PatientID      string  `json:"patient_id"`
	ProfessionalID *string `json:"professional_id,omitempty"`
}

type WaitlistEntryResponse struct {
	ID             uuid.UUID  `json:"id"`
	ClinicID       uuid.UUID  `json:"clinic_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PatientName    string     `json:"patient_name,omitempty"`
	ProfessionalID *uuid.UUID `json:"professional_id,omitempty"`
	Status         string     `json:"notification_status"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toWaitlistEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:             e.ID,
		ClinicID:       e.ClinicID,
		PatientID:      e.PatientID,
		PatientName:    e.PatientName,
		ProfessionalID: e.ProfessionalID,
		Status:         string(e.Status),
		CreatedAt:      e.CreatedAt,
	}
}

type ConflictAuditResponse struct {
	Date        string      `json:"date"`
	ConflictIDs []uuid.UUID `json:"conflict_ids"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
