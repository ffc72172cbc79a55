package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agendasaude/clinic-scheduling/internal/messaging"
	redisclient "github.com/agendasaude/clinic-scheduling/internal/redis"
	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

// fakeRepo keeps everything in memory and honors the same compare-and-swap
// semantics as the Postgres repository.
type fakeRepo struct {
	clinics       map[uuid.UUID]*Clinic
	patients      map[uuid.UUID]*Patient
	professionals map[uuid.UUID]*Professional
	appointments  map[uuid.UUID]*Appointment
	events        []EventLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clinics:       make(map[uuid.UUID]*Clinic),
		patients:      make(map[uuid.UUID]*Patient),
		professionals: make(map[uuid.UUID]*Professional),
		appointments:  make(map[uuid.UUID]*Appointment),
	}
}

func (r *fakeRepo) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return c, nil
}

func (r *fakeRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (r *fakeRepo) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	p, ok := r.professionals[id]
	if !ok {
		return nil, ErrProfessionalNotFound
	}
	return p, nil
}

func (r *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

func (r *fakeRepo) ListForProfessionalDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	var result []Appointment
	for _, a := range r.appointments {
		if a.ProfessionalID == professionalID && a.Date.Equal(date) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) ListForClinicDay(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	var result []Appointment
	for _, a := range r.appointments {
		if a.ClinicID == clinicID && a.Date.Equal(date) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	r.appointments[a.ID] = &cp
	return nil
}

func (r *fakeRepo) MoveAppointment(ctx context.Context, id uuid.UUID, date time.Time, startTime, endTime string, durationMinutes int) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Date = date
	a.StartTime = startTime
	a.EndTime = endTime
	a.DurationMinutes = &durationMinutes
	return a, nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			return a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.events = append(r.events, ev)
	return nil
}

// fakeLocker runs the critical section inline; deny simulates contention.
type fakeLocker struct {
	deny  bool
	calls int
}

func (l *fakeLocker) WithAgendaLock(ctx context.Context, professionalID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	l.calls++
	if l.deny {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// Waitlist fakes, just enough for the promoter the service embeds.

type fakeWaitlistRepo struct {
	entries []*waitlist.Entry
}

func (r *fakeWaitlistRepo) CreateEntry(ctx context.Context, e *waitlist.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeWaitlistRepo) GetEntryByID(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, waitlist.ErrEntryNotFound
}

func (r *fakeWaitlistRepo) ListOfferable(ctx context.Context, clinicID uuid.UUID) ([]waitlist.Entry, error) {
	var result []waitlist.Entry
	for _, e := range r.entries {
		if e.ClinicID == clinicID && e.IsActive && e.Status.Offerable() {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (r *fakeWaitlistRepo) ClaimForOffer(ctx context.Context, id uuid.UUID, offer waitlist.Offer, notifiedAt time.Time) (bool, error) {
	for _, e := range r.entries {
		if e.ID == id && e.Status.Offerable() {
			e.Status = waitlist.NotificationNotified
			e.NotifiedAt = &notifiedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeWaitlistRepo) RecordFailedOffer(ctx context.Context, id uuid.UUID, offer waitlist.Offer) error {
	return nil
}

func (r *fakeWaitlistRepo) ReclaimStaleNotified(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeMessenger struct {
	sent []messaging.Message
}

func (m *fakeMessenger) Send(ctx context.Context, msg messaging.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

// Test fixture

type fixture struct {
	repo         *fakeRepo
	locker       *fakeLocker
	waitlistRepo *fakeWaitlistRepo
	messenger    *fakeMessenger
	svc          *Service

	clinic       *Clinic
	patient      *Patient
	professional *Professional
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	locker := &fakeLocker{}
	wlRepo := &fakeWaitlistRepo{}
	msgr := &fakeMessenger{}

	promoter := waitlist.NewPromoter(wlRepo, msgr, zap.NewNop())
	svc := NewService(repo, locker, promoter, zap.NewNop())

	clinic := &Clinic{ID: uuid.New(), Name: "Clínica Central"}
	phone := "+5511999990000"
	patient := &Patient{ID: uuid.New(), ClinicID: clinic.ID, Name: "Maria Silva", Phone: &phone}
	professional := &Professional{ID: uuid.New(), ClinicID: clinic.ID, Name: "Dra. Helena Costa"}

	repo.clinics[clinic.ID] = clinic
	repo.patients[patient.ID] = patient
	repo.professionals[professional.ID] = professional

	return &fixture{
		repo:         repo,
		locker:       locker,
		waitlistRepo: wlRepo,
		messenger:    msgr,
		svc:          svc,
		clinic:       clinic,
		patient:      patient,
		professional: professional,
	}
}

func (f *fixture) scheduleRequest(start string, duration int) ScheduleRequest {
	return ScheduleRequest{
		ClinicID:        f.clinic.ID,
		PatientID:       f.patient.ID,
		ProfessionalID:  f.professional.ID,
		Date:            june10,
		StartTime:       start,
		DurationMinutes: duration,
	}
}

func TestScheduleHappyPath(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "14:00", appt.StartTime)
	assert.Equal(t, "14:30", appt.EndTime)
	require.NotNil(t, appt.DurationMinutes)
	assert.Equal(t, 30, *appt.DurationMinutes)
	assert.Equal(t, 1, f.locker.calls)
}

func TestScheduleConflictBlocks(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:15", 30))
	require.NoError(t, err)

	_, err = f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Contains(t, conflictErr.Error(), "Maria Silva")
	assert.Contains(t, conflictErr.Error(), "14:15 - 14:45")
}

func TestScheduleAgainstCancelledSlot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	_, _, err = f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	// The cancelled slot no longer blocks the identical time.
	_, err = f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	assert.NoError(t, err)
}

func TestScheduleAbuttingSlots(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Schedule(context.Background(), f.scheduleRequest("09:00", 60))
	require.NoError(t, err)

	_, err = f.svc.Schedule(context.Background(), f.scheduleRequest("10:00", 60))
	assert.NoError(t, err)
}

func TestScheduleLockContention(t *testing.T) {
	f := newFixture(t)
	f.locker.deny = true

	_, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	assert.ErrorIs(t, err, ErrAgendaBusy)
	assert.Empty(t, f.repo.appointments)
}

func TestScheduleInvalidDuration(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 0))
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestRescheduleExcludesSelf(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	// Same time as its own slot: no self-conflict.
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{
		Date:            june10,
		StartTime:       "14:00",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "14:00", moved.StartTime)

	// Moving onto another appointment still conflicts.
	_, err = f.svc.Schedule(context.Background(), f.scheduleRequest("15:00", 30))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{
		Date:            june10,
		StartTime:       "15:00",
		DurationMinutes: 30,
	})
	var conflictErr *ConflictError
	assert.ErrorAs(t, err, &conflictErr)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	started, err := f.svc.Start(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	completed, err := f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// A completed appointment cannot be confirmed again.
	_, err = f.svc.Confirm(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelTriggersPromotion(t *testing.T) {
	f := newFixture(t)

	waiting := &waitlist.Entry{
		ID:          uuid.New(),
		ClinicID:    f.clinic.ID,
		PatientID:   uuid.New(),
		PatientName: "Ana Souza",
		Phone:       f.patient.Phone,
		IsActive:    true,
		Status:      waitlist.NotificationPending,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	f.waitlistRepo.entries = append(f.waitlistRepo.entries, waiting)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	cancelled, result, err := f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, result.Notified())
	assert.Equal(t, "Ana Souza", result.PatientName)
	require.Len(t, f.messenger.sent, 1)
	assert.Contains(t, f.messenger.sent[0].Body, "Dra. Helena Costa")
	assert.Equal(t, waitlist.NotificationNotified, waiting.Status)
}

func TestCancelWithEmptyQueue(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	cancelled, result, err := f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.False(t, result.Notified())
	assert.Equal(t, waitlist.SkipQueueEmpty, result.Reason)
	assert.Zero(t, result.WaitingCount)
	assert.Empty(t, f.messenger.sent)
}

func TestMarkNoShowFreesSlot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Schedule(context.Background(), f.scheduleRequest("14:00", 30))
	require.NoError(t, err)

	updated, _, err := f.svc.MarkNoShow(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// No-show cannot be cancelled afterwards.
	_, _, err = f.svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAuditConflicts(t *testing.T) {
	f := newFixture(t)

	// Insert directly to bypass the booking conflict check.
	overlapping1 := &Appointment{
		ClinicID:       f.clinic.ID,
		PatientID:      f.patient.ID,
		PatientName:    f.patient.Name,
		ProfessionalID: f.professional.ID,
		Date:           june10,
		StartTime:      "09:00",
		EndTime:        "10:00",
		Status:         StatusScheduled,
	}
	overlapping2 := &Appointment{
		ClinicID:       f.clinic.ID,
		PatientID:      f.patient.ID,
		PatientName:    f.patient.Name,
		ProfessionalID: f.professional.ID,
		Date:           june10,
		StartTime:      "09:30",
		EndTime:        "10:30",
		Status:         StatusScheduled,
	}
	clean := &Appointment{
		ClinicID:       f.clinic.ID,
		PatientID:      f.patient.ID,
		PatientName:    f.patient.Name,
		ProfessionalID: f.professional.ID,
		Date:           june10,
		StartTime:      "11:00",
		EndTime:        "12:00",
		Status:         StatusScheduled,
	}
	require.NoError(t, f.repo.CreateAppointment(context.Background(), overlapping1))
	require.NoError(t, f.repo.CreateAppointment(context.Background(), overlapping2))
	require.NoError(t, f.repo.CreateAppointment(context.Background(), clean))

	ids, err := f.svc.AuditConflicts(context.Background(), f.clinic.ID, june10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{overlapping1.ID, overlapping2.ID}, ids)
}
