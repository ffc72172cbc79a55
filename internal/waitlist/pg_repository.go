package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `
	w.id, w.clinic_id, w.patient_id, p.name, p.phone, w.professional_id,
	w.is_active, w.notification_status, w.created_at, w.updated_at,
	w.notified_at, w.slot_offered_at, w.offered_appointment_date,
	w.offered_appointment_time, w.offered_professional_id, w.offered_professional_name`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry

	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.PatientID,
		&e.PatientName,
		&e.Phone,
		&e.ProfessionalID,
		&e.IsActive,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.NotifiedAt,
		&e.SlotOfferedAt,
		&e.OfferedDate,
		&e.OfferedTime,
		&e.OfferedProfessionalID,
		&e.OfferedProfessionalName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = NotificationPending
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO waiting_list
			(id, clinic_id, patient_id, professional_id, is_active, notification_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, e.ID, e.ClinicID, e.PatientID, e.ProfessionalID, true, e.Status)
	if err != nil {
		return fmt.Errorf("insert waiting list entry: %w", err)
	}

	return nil
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+entryColumns+`
		FROM waiting_list w
		JOIN patients p ON p.id = w.patient_id
		WHERE w.id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListOfferable(ctx context.Context, clinicID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+entryColumns+`
		FROM waiting_list w
		JOIN patients p ON p.id = w.patient_id
		WHERE w.clinic_id = $1
		  AND w.is_active
		  AND w.notification_status IN ('pending', 'declined')
		ORDER BY w.created_at ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ClaimForOffer is the promotion race arbiter: the status predicate makes
// concurrent claims on the same entry resolve to exactly one winner.
func (r *PgRepository) ClaimForOffer(ctx context.Context, id uuid.UUID, offer Offer, notifiedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waiting_list
		SET notification_status = 'notified',
		    notified_at = $2,
		    slot_offered_at = $2,
		    offered_appointment_date = $3,
		    offered_appointment_time = $4,
		    offered_professional_id = $5,
		    offered_professional_name = $6,
		    updated_at = now()
		WHERE id = $1
		  AND is_active
		  AND notification_status IN ('pending', 'declined')
	`, id, notifiedAt, offer.Date, offer.StartTime, offer.ProfessionalID, offer.ProfessionalName)
	if err != nil {
		return false, fmt.Errorf("claim waiting list entry: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) RecordFailedOffer(ctx context.Context, id uuid.UUID, offer Offer) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE waiting_list
		SET notification_status = 'pending',
		    notified_at = NULL,
		    slot_offered_at = NULL,
		    offered_appointment_date = $2,
		    offered_appointment_time = $3,
		    offered_professional_id = $4,
		    offered_professional_name = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, offer.Date, offer.StartTime, offer.ProfessionalID, offer.ProfessionalName)
	if err != nil {
		return fmt.Errorf("record failed offer: %w", err)
	}

	return nil
}

func (r *PgRepository) ReclaimStaleNotified(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waiting_list
		SET notification_status = 'pending',
		    updated_at = now()
		WHERE notification_status = 'notified'
		  AND is_active
		  AND notified_at IS NOT NULL
		  AND notified_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale notified entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
