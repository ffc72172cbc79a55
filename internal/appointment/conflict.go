package appointment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agendasaude/clinic-scheduling/internal/timeutil"
)

// FindConflictingAppointments returns every active appointment that would
// double-book the proposal's professional on the proposal's date. The
// input does not need to be pre-filtered; date, professional and status
// filtering happen here. An empty result means the proposal is placeable.
func FindConflictingAppointments(existing []Appointment, p Proposal) ([]Appointment, error) {
	start, err := timeutil.TimeToMinutes(p.StartTime)
	if err != nil {
		return nil, fmt.Errorf("proposal start time: %w", err)
	}
	end := start + p.DurationMinutes

	var conflicts []Appointment
	for _, a := range existing {
		if p.ExcludeID != uuid.Nil && a.ID == p.ExcludeID {
			continue
		}
		if !timeutil.SameDate(a.Date, p.Date) {
			continue
		}
		if a.ProfessionalID != p.ProfessionalID {
			continue
		}
		if !a.Status.Active() {
			continue
		}

		s, err := timeutil.TimeToMinutes(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("appointment %s start time: %w", a.ID, err)
		}
		e, err := timeutil.TimeToMinutes(a.EndTime)
		if err != nil {
			return nil, fmt.Errorf("appointment %s end time: %w", a.ID, err)
		}

		if timeutil.DoTimesOverlap(start, end, s, e) {
			conflicts = append(conflicts, a)
		}
	}

	return conflicts, nil
}

// HasConflict is a convenience wrapper around FindConflictingAppointments.
func HasConflict(existing []Appointment, p Proposal) (bool, error) {
	conflicts, err := FindConflictingAppointments(existing, p)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// ConflictMessage builds the user facing text for a set of conflicts.
// Zero conflicts yields an empty string, a single conflict names the
// colliding patient and time range, more than one reports a count only.
func ConflictMessage(conflicts []Appointment) string {
	switch len(conflicts) {
	case 0:
		return ""
	case 1:
		c := conflicts[0]
		name := c.PatientName
		if name == "" {
			name = "outro paciente"
		}
		return fmt.Sprintf("Conflito com o agendamento de %s (%s - %s)", name, c.StartTime, c.EndTime)
	default:
		return fmt.Sprintf("Existem %d agendamentos em conflito neste horário", len(conflicts))
	}
}

type dayKey struct {
	date           string
	professionalID uuid.UUID
}

// FindAllConflictingAppointments audits a whole collection and returns the
// ids of every active appointment that overlaps at least one other active
// appointment for the same professional on the same date. Grouping by
// (date, professional) keeps the pairwise comparison bounded to one
// professional-day at a time.
func FindAllConflictingAppointments(appointments []Appointment) (map[uuid.UUID]struct{}, error) {
	groups := make(map[dayKey][]Appointment)
	for _, a := range appointments {
		if !a.Status.Active() {
			continue
		}
		key := dayKey{date: a.Date.Format("2006-01-02"), professionalID: a.ProfessionalID}
		groups[key] = append(groups[key], a)
	}

	flagged := make(map[uuid.UUID]struct{})
	for _, group := range groups {
		starts := make([]int, len(group))
		ends := make([]int, len(group))
		for i, a := range group {
			s, err := timeutil.TimeToMinutes(a.StartTime)
			if err != nil {
				return nil, fmt.Errorf("appointment %s start time: %w", a.ID, err)
			}
			e, err := timeutil.TimeToMinutes(a.EndTime)
			if err != nil {
				return nil, fmt.Errorf("appointment %s end time: %w", a.ID, err)
			}
			starts[i], ends[i] = s, e
		}

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if timeutil.DoTimesOverlap(starts[i], ends[i], starts[j], ends[j]) {
					flagged[group[i].ID] = struct{}{}
					flagged[group[j].ID] = struct{}{}
				}
			}
		}
	}

	return flagged, nil
}
