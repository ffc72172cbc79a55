package waitlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agendasaude/clinic-scheduling/internal/messaging"
	"github.com/agendasaude/clinic-scheduling/internal/timeutil"
)

type OutcomeKind string

const (
	// OutcomeNotified: the oldest compatible entry was claimed and the
	// patient was messaged successfully.
	OutcomeNotified OutcomeKind = "notified"
	// OutcomeSendFailed: an entry was claimed but the gateway rejected the
	// message; the entry was returned to pending with the offer recorded.
	OutcomeSendFailed OutcomeKind = "send_failed"
	// OutcomeSkipped: nothing to do, see Reason.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed: the repository itself failed; nothing was mutated
	// beyond what Err describes.
	OutcomeFailed OutcomeKind = "failed"
)

type SkipReason string

const (
	SkipQueueEmpty   SkipReason = "queue_empty"
	SkipNoCompatible SkipReason = "no_compatible_entry"
	SkipNoPhone      SkipReason = "no_phone"
	SkipClaimLost    SkipReason = "claim_lost"
)

// Result reports one promotion attempt. WaitingCount is the compatible
// entry count, except for SkipNoCompatible where it intentionally reports
// the unfiltered queue size (people are waiting, just not for this
// professional) and for queue-empty/failure where it is zero.
type Result struct {
	Kind         OutcomeKind
	PatientName  string
	WaitingCount int
	Reason       SkipReason
	Err          error
}

func (r Result) Notified() bool {
	return r.Kind == OutcomeNotified
}

// Promoter offers freed slots to waiting patients. It holds no state
// between invocations; each call is a fetch, a conditional claim, a send
// and a write-back.
type Promoter struct {
	repo      Repository
	messenger messaging.Messenger
	log       *zap.Logger
	now       func() time.Time
}

func NewPromoter(repo Repository, messenger messaging.Messenger, log *zap.Logger) *Promoter {
	return &Promoter{
		repo:      repo,
		messenger: messenger,
		log:       log,
		now:       time.Now,
	}
}

// PromoteFreedSlot finds the longest-waiting entry compatible with the
// freed slot, claims it and notifies the patient. All failures are folded
// into the Result; a promotion never fails the cancellation that
// triggered it.
//
// The claim is a conditional update, so two promoters racing for the same
// queue resolve cleanly: the loser sees zero rows affected and advances
// to the next compatible entry.
func (p *Promoter) PromoteFreedSlot(ctx context.Context, clinicID uuid.UUID, clinicName string, slot FreedSlot) Result {
	entries, err := p.repo.ListOfferable(ctx, clinicID)
	if err != nil {
		return Result{Kind: OutcomeFailed, Err: fmt.Errorf("list waiting queue: %w", err)}
	}

	if len(entries) == 0 {
		return Result{Kind: OutcomeSkipped, Reason: SkipQueueEmpty}
	}

	var compatible []Entry
	for _, e := range entries {
		if e.Compatible(slot.ProfessionalID) {
			compatible = append(compatible, e)
		}
	}

	if len(compatible) == 0 {
		return Result{Kind: OutcomeSkipped, Reason: SkipNoCompatible, WaitingCount: len(entries)}
	}

	waiting := len(compatible)

	// First in line without a phone is skipped without mutating state and
	// without advancing the queue; the next freed slot re-attempts it.
	first := compatible[0]
	if first.Phone == nil || *first.Phone == "" {
		p.log.Warn("waiting list entry has no phone, skipping promotion",
			zap.String("entry_id", first.ID.String()),
			zap.String("patient_id", first.PatientID.String()),
		)
		return Result{Kind: OutcomeSkipped, Reason: SkipNoPhone, PatientName: first.PatientName, WaitingCount: waiting}
	}

	offer := Offer{
		Date:             slot.Date,
		StartTime:        slot.StartTime,
		ProfessionalID:   slot.ProfessionalID,
		ProfessionalName: slot.ProfessionalName,
	}

	for _, e := range compatible {
		if e.Phone == nil || *e.Phone == "" {
			continue
		}

		claimed, err := p.repo.ClaimForOffer(ctx, e.ID, offer, p.now())
		if err != nil {
			return Result{Kind: OutcomeFailed, WaitingCount: waiting, Err: fmt.Errorf("claim entry %s: %w", e.ID, err)}
		}
		if !claimed {
			p.log.Info("lost claim race for waiting list entry, trying next in line",
				zap.String("entry_id", e.ID.String()),
			)
			continue
		}

		msg := messaging.Message{
			Phone:    *e.Phone,
			Body:     composeOfferMessage(clinicName, e.PatientName, slot),
			ClinicID: clinicID,
			Kind:     messaging.KindWaitlistOffer,
		}

		if err := p.messenger.Send(ctx, msg); err != nil {
			p.log.Warn("waitlist offer message failed",
				zap.String("entry_id", e.ID.String()),
				zap.Error(err),
			)
			if rerr := p.repo.RecordFailedOffer(ctx, e.ID, offer); rerr != nil {
				p.log.Error("failed to release entry after send failure",
					zap.String("entry_id", e.ID.String()),
					zap.Error(rerr),
				)
			}
			return Result{Kind: OutcomeSendFailed, PatientName: e.PatientName, WaitingCount: waiting, Err: err}
		}

		p.log.Info("waiting list entry promoted",
			zap.String("entry_id", e.ID.String()),
			zap.String("professional_id", slot.ProfessionalID.String()),
			zap.String("date", slot.Date.Format("2006-01-02")),
			zap.String("start_time", slot.StartTime),
		)
		return Result{Kind: OutcomeNotified, PatientName: e.PatientName, WaitingCount: waiting}
	}

	return Result{Kind: OutcomeSkipped, Reason: SkipClaimLost, WaitingCount: waiting}
}

func composeOfferMessage(clinicName, patientName string, slot FreedSlot) string {
	first := patientName
	if fields := strings.Fields(patientName); len(fields) > 0 {
		first = fields[0]
	}

	return fmt.Sprintf(
		"Olá, %s! Uma vaga abriu na %s: %s, %s às %s. Responda SIM para confirmar ou NÃO para continuar na fila.",
		first,
		clinicName,
		slot.ProfessionalName,
		timeutil.FormatLongDate(slot.Date),
		slot.StartTime,
	)
}
