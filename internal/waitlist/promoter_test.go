package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agendasaude/clinic-scheduling/internal/messaging"
)

// fakeRepo is an in-memory Repository covering what the promoter touches.
type fakeRepo struct {
	entries   map[uuid.UUID]*Entry
	order     []uuid.UUID
	listErr   error
	claimErr  error
	claimDeny map[uuid.UUID]bool // entries whose claim should report a lost race
}

func newFakeRepo(entries ...*Entry) *fakeRepo {
	r := &fakeRepo{
		entries:   make(map[uuid.UUID]*Entry),
		claimDeny: make(map[uuid.UUID]bool),
	}
	for _, e := range entries {
		r.entries[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	return r
}

func (r *fakeRepo) CreateEntry(ctx context.Context, e *Entry) error {
	r.entries[e.ID] = e
	r.order = append(r.order, e.ID)
	return nil
}

func (r *fakeRepo) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

func (r *fakeRepo) ListOfferable(ctx context.Context, clinicID uuid.UUID) ([]Entry, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []Entry
	for _, id := range r.order {
		e := r.entries[id]
		if e.ClinicID == clinicID && e.IsActive && e.Status.Offerable() {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (r *fakeRepo) ClaimForOffer(ctx context.Context, id uuid.UUID, offer Offer, notifiedAt time.Time) (bool, error) {
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if r.claimDeny[id] {
		return false, nil
	}
	e, ok := r.entries[id]
	if !ok || !e.IsActive || !e.Status.Offerable() {
		return false, nil
	}
	e.Status = NotificationNotified
	e.NotifiedAt = &notifiedAt
	e.SlotOfferedAt = &notifiedAt
	e.OfferedDate = &offer.Date
	e.OfferedTime = &offer.StartTime
	e.OfferedProfessionalID = &offer.ProfessionalID
	e.OfferedProfessionalName = &offer.ProfessionalName
	return true, nil
}

func (r *fakeRepo) RecordFailedOffer(ctx context.Context, id uuid.UUID, offer Offer) error {
	e, ok := r.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = NotificationPending
	e.NotifiedAt = nil
	e.SlotOfferedAt = nil
	e.OfferedDate = &offer.Date
	e.OfferedTime = &offer.StartTime
	e.OfferedProfessionalID = &offer.ProfessionalID
	e.OfferedProfessionalName = &offer.ProfessionalName
	return nil
}

func (r *fakeRepo) ReclaimStaleNotified(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, e := range r.entries {
		if e.Status == NotificationNotified && e.NotifiedAt != nil && e.NotifiedAt.Before(cutoff) {
			e.Status = NotificationPending
			n++
		}
	}
	return n, nil
}

type fakeMessenger struct {
	sent []messaging.Message
	err  error
}

func (m *fakeMessenger) Send(ctx context.Context, msg messaging.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var (
	clinicID = uuid.New()
	profP2   = uuid.New()
	profP3   = uuid.New()
)

func entry(name string, phone *string, professionalID *uuid.UUID, createdAt time.Time) *Entry {
	return &Entry{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		PatientID:      uuid.New(),
		PatientName:    name,
		Phone:          phone,
		ProfessionalID: professionalID,
		IsActive:       true,
		Status:         NotificationPending,
		CreatedAt:      createdAt,
	}
}

func strPtr(s string) *string { return &s }

func freedSlot() FreedSlot {
	return FreedSlot{
		Date:             time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		StartTime:        "14:00",
		ProfessionalID:   profP2,
		ProfessionalName: "Dra. Helena Costa",
	}
}

func TestPromoteFreedSlotFIFO(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	a := entry("Ana Souza", strPtr("+5511999990001"), &profP2, base)
	b := entry("Bruno Lima", strPtr("+5511999990002"), &profP2, base.Add(time.Hour))
	c := entry("Carla Dias", strPtr("+5511999990003"), nil, base.Add(2*time.Hour))

	repo := newFakeRepo(a, b, c)
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeNotified, result.Kind)
	assert.True(t, result.Notified())
	assert.Equal(t, "Ana Souza", result.PatientName)
	assert.Equal(t, 3, result.WaitingCount)

	// Exactly one message, to the oldest entry's phone.
	require.Len(t, msgr.sent, 1)
	assert.Equal(t, "+5511999990001", msgr.sent[0].Phone)
	assert.Equal(t, messaging.KindWaitlistOffer, msgr.sent[0].Kind)

	// The winner carries the offered slot fields; the rest are untouched.
	assert.Equal(t, NotificationNotified, a.Status)
	require.NotNil(t, a.OfferedTime)
	assert.Equal(t, "14:00", *a.OfferedTime)
	require.NotNil(t, a.OfferedProfessionalID)
	assert.Equal(t, profP2, *a.OfferedProfessionalID)
	assert.NotNil(t, a.NotifiedAt)
	assert.Equal(t, NotificationPending, b.Status)
	assert.Equal(t, NotificationPending, c.Status)
}

func TestPromoteFreedSlotMessageBody(t *testing.T) {
	a := entry("Ana Souza", strPtr("+5511999990001"), nil, time.Now())
	repo := newFakeRepo(a)
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())
	require.True(t, result.Notified())

	require.Len(t, msgr.sent, 1)
	body := msgr.sent[0].Body
	assert.Contains(t, body, "Ana")
	assert.Contains(t, body, "Dra. Helena Costa")
	assert.Contains(t, body, "segunda-feira, 2 de junho de 2025")
	assert.Contains(t, body, "14:00")
	assert.Contains(t, body, "Clínica Central")
}

func TestPromoteFreedSlotEmptyQueue(t *testing.T) {
	repo := newFakeRepo()
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeSkipped, result.Kind)
	assert.Equal(t, SkipQueueEmpty, result.Reason)
	assert.Equal(t, 0, result.WaitingCount)
	assert.Empty(t, msgr.sent)
}

func TestPromoteFreedSlotNoCompatibleEntry(t *testing.T) {
	// Both entries want a different professional; none take "any".
	a := entry("Ana Souza", strPtr("+5511999990001"), &profP3, time.Now())
	b := entry("Bruno Lima", strPtr("+5511999990002"), &profP3, time.Now().Add(time.Minute))

	repo := newFakeRepo(a, b)
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeSkipped, result.Kind)
	assert.Equal(t, SkipNoCompatible, result.Reason)
	// Intentionally the unfiltered count: people are waiting, just not
	// for this professional.
	assert.Equal(t, 2, result.WaitingCount)
	assert.Empty(t, msgr.sent)
}

func TestPromoteFreedSlotAnyProfessionalMatches(t *testing.T) {
	a := entry("Ana Souza", strPtr("+5511999990001"), nil, time.Now())
	repo := newFakeRepo(a)
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.True(t, result.Notified())
	assert.Equal(t, "Ana Souza", result.PatientName)
}

func TestPromoteFreedSlotNoPhoneSkipsWithoutMutation(t *testing.T) {
	a := entry("Ana Souza", nil, &profP2, time.Now())
	b := entry("Bruno Lima", strPtr("+5511999990002"), &profP2, time.Now().Add(time.Minute))

	repo := newFakeRepo(a, b)
	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	// First in line keeps its turn: no message, no advance, no mutation.
	assert.Equal(t, OutcomeSkipped, result.Kind)
	assert.Equal(t, SkipNoPhone, result.Reason)
	assert.Equal(t, 2, result.WaitingCount)
	assert.Empty(t, msgr.sent)
	assert.Equal(t, NotificationPending, a.Status)
	assert.Nil(t, a.OfferedTime)
	assert.Equal(t, NotificationPending, b.Status)
}

func TestPromoteFreedSlotSendFailureKeepsEntryOfferable(t *testing.T) {
	a := entry("Ana Souza", strPtr("+5511999990001"), &profP2, time.Now())
	repo := newFakeRepo(a)
	msgr := &fakeMessenger{err: errors.New("gateway timeout")}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeSendFailed, result.Kind)
	assert.False(t, result.Notified())
	assert.Equal(t, "Ana Souza", result.PatientName)
	assert.Error(t, result.Err)

	// Re-offerable, offered slot fields recorded as the attempt's audit
	// trail, timestamps cleared.
	assert.Equal(t, NotificationPending, a.Status)
	assert.Nil(t, a.NotifiedAt)
	assert.Nil(t, a.SlotOfferedAt)
	require.NotNil(t, a.OfferedTime)
	assert.Equal(t, "14:00", *a.OfferedTime)
}

func TestPromoteFreedSlotClaimLostAdvancesToNext(t *testing.T) {
	base := time.Now()
	a := entry("Ana Souza", strPtr("+5511999990001"), &profP2, base)
	b := entry("Bruno Lima", strPtr("+5511999990002"), &profP2, base.Add(time.Minute))

	repo := newFakeRepo(a, b)
	repo.claimDeny[a.ID] = true // concurrent promoter got there first

	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.True(t, result.Notified())
	assert.Equal(t, "Bruno Lima", result.PatientName)
	require.Len(t, msgr.sent, 1)
	assert.Equal(t, "+5511999990002", msgr.sent[0].Phone)
}

func TestPromoteFreedSlotAllClaimsLost(t *testing.T) {
	a := entry("Ana Souza", strPtr("+5511999990001"), &profP2, time.Now())
	repo := newFakeRepo(a)
	repo.claimDeny[a.ID] = true

	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeSkipped, result.Kind)
	assert.Equal(t, SkipClaimLost, result.Reason)
	assert.Empty(t, msgr.sent)
}

func TestPromoteFreedSlotRepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("connection refused")

	msgr := &fakeMessenger{}
	p := NewPromoter(repo, msgr, zap.NewNop())

	result := p.PromoteFreedSlot(context.Background(), clinicID, "Clínica Central", freedSlot())

	assert.Equal(t, OutcomeFailed, result.Kind)
	assert.Error(t, result.Err)
	assert.Equal(t, 0, result.WaitingCount)
	assert.Empty(t, msgr.sent)
}

func TestReclaimStaleNotified(t *testing.T) {
	now := time.Now()
	stale := entry("Ana Souza", strPtr("+5511999990001"), &profP2, now.Add(-5*time.Hour))
	stale.Status = NotificationNotified
	staleAt := now.Add(-3 * time.Hour)
	stale.NotifiedAt = &staleAt

	fresh := entry("Bruno Lima", strPtr("+5511999990002"), &profP2, now.Add(-time.Hour))
	fresh.Status = NotificationNotified
	freshAt := now.Add(-10 * time.Minute)
	fresh.NotifiedAt = &freshAt

	repo := newFakeRepo(stale, fresh)

	n, err := repo.ReclaimStaleNotified(context.Background(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, NotificationPending, stale.Status)
	assert.Equal(t, NotificationNotified, fresh.Status)
}
