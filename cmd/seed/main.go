package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agendasaude/clinic-scheduling/internal/db"
	"github.com/agendasaude/clinic-scheduling/internal/timeutil"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinics, err := seedClinics(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	professionals, err := seedProfessionals(context.Background(), pool, clinics, 20)
	if err != nil {
		log.Fatalf("seed professionals: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, clinics, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, professionals, patients, 30); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}
	if err := seedWaitingList(context.Background(), pool, professionals, patients, 200); err != nil {
		log.Fatalf("seed waiting list: %v", err)
	}

	log.Println("seed complete")
}

type clinicRow struct {
	ID uuid.UUID
}

type professionalRow struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

type patientRow struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]clinicRow, error) {
	log.Printf("seeding %d clinics", count)

	clinics := make([]clinicRow, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Clínica " + gofakeit.LastName()

		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, clinicRow{ID: id})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinics seeded")
	return clinics, nil
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, clinics []clinicRow, perClinic int) ([]professionalRow, error) {
	log.Printf("seeding %d professionals per clinic", perClinic)

	specialties := []string{
		"Clínica Geral",
		"Cardiologia",
		"Dermatologia",
		"Ortopedia",
		"Pediatria",
		"Psiquiatria",
		"Odontologia",
		"Fisioterapia",
	}

	professionals := make([]professionalRow, 0, len(clinics)*perClinic)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, c := range clinics {
		for i := 0; i < perClinic; i++ {
			id := uuid.New()
			name := "Dr. " + gofakeit.Name()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO professionals (id, clinic_id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, c.ID, name, spec)
			if err != nil {
				return nil, err
			}
			professionals = append(professionals, professionalRow{ID: id, ClinicID: c.ID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("professionals seeded")
	return professionals, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, clinics []clinicRow, count int) ([]patientRow, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	patients := make([]patientRow, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			clinic := clinics[gofakeit.Number(0, len(clinics)-1)]
			name := gofakeit.Name()

			// Roughly one in twenty patients has no phone on file, which
			// exercises the promoter's skip path.
			var phone *string
			if gofakeit.Number(0, 19) != 0 {
				p := gofakeit.Phone()
				phone = &p
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, clinic_id, name, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, clinic.ID, name, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			patients = append(patients, patientRow{ID: id, ClinicID: clinic.ID})
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return patients, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, professionals []professionalRow, patients []patientRow, perProfessional int) error {
	log.Printf("seeding %d appointments per professional", perProfessional)

	byClinic := make(map[uuid.UUID][]patientRow)
	for _, p := range patients {
		byClinic[p.ClinicID] = append(byClinic[p.ClinicID], p)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, prof := range professionals {
		clinicPatients := byClinic[prof.ClinicID]
		if len(clinicPatients) == 0 {
			continue
		}

		// Back-to-back 30 minute slots from 08:00 across the next days.
		// Abutting slots never conflict.
		for i := 0; i < perProfessional; i++ {
			patient := clinicPatients[gofakeit.Number(0, len(clinicPatients)-1)]
			day := time.Now().AddDate(0, 0, 1+i/12)
			startMinutes := 8*60 + (i%12)*30
			start := timeutil.MinutesToTime(startMinutes)
			end := timeutil.MinutesToTime(startMinutes + 30)
			duration := 30

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments
					(id, clinic_id, patient_id, professional_id, date, start_time, end_time, duration_minutes, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'scheduled', now(), now())
			`, uuid.New(), prof.ClinicID, patient.ID, prof.ID, day, start, end, duration)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}

func seedWaitingList(ctx context.Context, pool *pgxpool.Pool, professionals []professionalRow, patients []patientRow, count int) error {
	log.Printf("seeding %d waiting list entries", count)

	byClinic := make(map[uuid.UUID][]professionalRow)
	for _, p := range professionals {
		byClinic[p.ClinicID] = append(byClinic[p.ClinicID], p)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		patient := patients[gofakeit.Number(0, len(patients)-1)]

		// A third of the queue takes any professional.
		var professionalID *uuid.UUID
		if gofakeit.Number(0, 2) != 0 {
			profs := byClinic[patient.ClinicID]
			if len(profs) > 0 {
				id := profs[gofakeit.Number(0, len(profs)-1)].ID
				professionalID = &id
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO waiting_list
				(id, clinic_id, patient_id, professional_id, is_active, notification_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, 'pending', now() - ($5 || ' minutes')::interval, now())
		`, uuid.New(), patient.ClinicID, patient.ID, professionalID, gofakeit.Number(0, 10000))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("waiting list seeded")
	return nil
}
