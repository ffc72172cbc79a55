package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

func joinWaitlistHandler(repo waitlist.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		var professionalID *uuid.UUID
		if req.ProfessionalID != nil && *req.ProfessionalID != "" {
			id, err := uuid.Parse(*req.ProfessionalID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID or omitted")
				return
			}
			professionalID = &id
		}

		entry := &waitlist.Entry{
			ClinicID:       clinicID,
			PatientID:      patientID,
			ProfessionalID: professionalID,
		}
		if err := repo.CreateEntry(r.Context(), entry); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		created, err := repo.GetEntryByID(r.Context(), entry.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(created))
	}
}

func listWaitlistHandler(repo waitlist.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(r.URL.Query().Get("clinic_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}

		entries, err := repo.ListOfferable(r.Context(), clinicID)
		if err != nil {
			if errors.Is(err, waitlist.ErrEntryNotFound) {
				writeJSON(w, http.StatusOK, []WaitlistEntryResponse{})
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]WaitlistEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toWaitlistEntryResponse(&entries[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
