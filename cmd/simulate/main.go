// simulate hammers the cancel endpoint with concurrent requests for one
// professional's day and checks that the waiting list promotion claimed
// each queue entry at most once. This is the race the conditional claim
// exists to win: many slots freed at the same instant, one FIFO queue.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agendasaude/clinic-scheduling/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	PostgresDSN string
	Cancels     int
	Workers     int
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	professionalID, appointments, err := pickProfessionalDay(ctx, pool, cfg.Cancels)
	if err != nil {
		log.Fatalf("pick professional day: %v", err)
	}
	log.Printf("cancelling %d appointments of professional %s with %d workers",
		len(appointments), professionalID, cfg.Workers)

	results := runCancellations(cfg, appointments)
	report(results)

	double, err := countDoubleNotified(ctx, pool)
	if err != nil {
		log.Fatalf("verify waiting list: %v", err)
	}
	if double > 0 {
		log.Fatalf("FAIL: %d waiting list entries notified more than once", double)
	}
	log.Println("OK: no waiting list entry was claimed twice")
}

func loadConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		Cancels:     getInt("SIM_CANCELS", 20),
		Workers:     getInt("SIM_WORKERS", 10),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// pickProfessionalDay finds the professional with the most scheduled
// appointments on a single day and returns up to limit of them.
func pickProfessionalDay(ctx context.Context, pool *pgxpool.Pool, limit int) (uuid.UUID, []uuid.UUID, error) {
	var professionalID uuid.UUID
	var date time.Time

	err := pool.QueryRow(ctx, `
		SELECT professional_id, date
		FROM appointments
		WHERE status = 'scheduled'
		GROUP BY professional_id, date
		ORDER BY count(*) DESC
		LIMIT 1
	`).Scan(&professionalID, &date)
	if err != nil {
		return uuid.Nil, nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND status = 'scheduled'
		ORDER BY start_time
		LIMIT $3
	`, professionalID, date, limit)
	if err != nil {
		return uuid.Nil, nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, nil, err
		}
		ids = append(ids, id)
	}

	return professionalID, ids, rows.Err()
}

type cancelResult struct {
	Status   int
	Notified bool
	Latency  time.Duration
	Err      error
}

type promotionBody struct {
	Promotion struct {
		Notified bool `json:"notified"`
	} `json:"promotion"`
}

func runCancellations(cfg simConfig, ids []uuid.UUID) []cancelResult {
	client := &http.Client{Timeout: 30 * time.Second}

	jobs := make(chan uuid.UUID)
	results := make([]cancelResult, 0, len(ids))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				r := cancelOne(client, cfg.APIBaseURL, id)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	return results
}

func cancelOne(client *http.Client, baseURL string, id uuid.UUID) cancelResult {
	start := time.Now()

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", baseURL, id), bytes.NewReader(nil))
	if err != nil {
		return cancelResult{Err: err, Latency: time.Since(start)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return cancelResult{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var body promotionBody
	_ = json.Unmarshal(raw, &body)

	return cancelResult{
		Status:   resp.StatusCode,
		Notified: body.Promotion.Notified,
		Latency:  time.Since(start),
	}
}

func report(results []cancelResult) {
	var ok, notified, failed int
	latencies := make([]time.Duration, 0, len(results))

	for _, r := range results {
		if r.Err != nil || r.Status != http.StatusOK {
			failed++
			continue
		}
		ok++
		if r.Notified {
			notified++
		}
		latencies = append(latencies, r.Latency)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var p50, p95 time.Duration
	if len(latencies) > 0 {
		p50 = latencies[len(latencies)*50/100]
		idx := len(latencies) * 95 / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		p95 = latencies[idx]
	}

	log.Printf("cancellations: ok=%d failed=%d promotions=%d p50=%s p95=%s",
		ok, failed, notified, p50, p95)
}

// countDoubleNotified looks for entries whose offer fields were written by
// more than one concurrent claim, which the conditional update should
// make impossible.
func countDoubleNotified(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM waiting_list
		WHERE notification_status = 'notified'
		  AND notified_at IS DISTINCT FROM slot_offered_at
	`).Scan(&n)
	return n, err
}
