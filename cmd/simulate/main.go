// Command simulate fires concurrent booking traffic at a running
// api-server and reports how the conflict guarantees hold up: for every
// contested slot at most one booking may succeed, the rest must come
// back as booking_conflict or slot_unavailable.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthops/scheduling-core/internal/config"
	"github.com/healthops/scheduling-core/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Providers     int
	Patients      int
	SlotMinutes   int
	ContestedDays int
	PostgresDSN   string
}

type Metrics struct {
	Total       int64
	Booked      int64
	Conflict    int64
	Unavailable int64
	Retryable   int64
	Error       int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, outcome string) {
	atomic.AddInt64(&m.Total, 1)
	switch outcome {
	case "booked":
		atomic.AddInt64(&m.Booked, 1)
	case "booking_conflict":
		atomic.AddInt64(&m.Conflict, 1)
	case "slot_unavailable":
		atomic.AddInt64(&m.Unavailable, 1)
	case "retry_later":
		atomic.AddInt64(&m.Retryable, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95idx := len(latencies) * 95 / 100
	if p95idx >= len(latencies) {
		p95idx = len(latencies) - 1
	}
	p95 = latencies[p95idx]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	providers, err := loadIDs(ctx, pgPool, `SELECT id FROM providers WHERE enabled ORDER BY id LIMIT $1`, cfg.Providers)
	if err != nil {
		log.Fatalf("load providers: %v", err)
	}
	patients, err := loadIDs(ctx, pgPool, `SELECT id FROM patients ORDER BY id LIMIT $1`, cfg.Patients)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	if len(providers) == 0 || len(patients) == 0 {
		log.Fatal("need seeded providers and patients, run cmd/seed first")
	}

	log.Printf("loaded %d providers %d patients, running %d workers for %s",
		len(providers), len(patients), cfg.Workers, cfg.Duration)

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	runCtx, stopRun := context.WithTimeout(context.Background(), cfg.Duration)
	defer stopRun()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for runCtx.Err() == nil {
				fireBooking(runCtx, client, cfg, rng, providers, patients, metrics)
			}
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	printSummary(metrics)
}

// fireBooking aims every worker at a small pool of slot-aligned times a
// few days out, so many requests contest the same intervals.
func fireBooking(ctx context.Context, client *http.Client, cfg SimConfig, rng *rand.Rand, providers, patients []uuid.UUID, metrics *Metrics) {
	provider := providers[rng.Intn(len(providers))]
	patient := patients[rng.Intn(len(patients))]

	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(cfg.ContestedDays))
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	// Within the 09:00-12:00 seeded block.
	slotIdx := rng.Intn(180 / cfg.SlotMinutes)
	scheduledAt := day.Add(9*time.Hour + time.Duration(slotIdx*cfg.SlotMinutes)*time.Minute)

	body, _ := json.Marshal(map[string]any{
		"provider_id":      provider.String(),
		"patient_id":       patient.String(),
		"scheduled_at":     scheduledAt.Format(time.RFC3339),
		"duration_minutes": cfg.SlotMinutes,
		"reason":           "load-sim booking",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			metrics.Record(latency, "transport_error")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		metrics.Record(latency, "booked")
		return
	}

	var errResp struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &errResp)
	metrics.Record(latency, errResp.Error)
}

func printSummary(m *Metrics) {
	avg, p50, p95 := m.Stats()
	fmt.Println("---- booking simulation summary ----")
	fmt.Printf("total=%d booked=%d conflict=%d unavailable=%d retryable=%d error=%d\n",
		m.Total, m.Booked, m.Conflict, m.Unavailable, m.Retryable, m.Error)
	fmt.Printf("latency avg=%s p50=%s p95=%s\n", avg, p50, p95)
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadSimConfig() SimConfig {
	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:      getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:       getIntEnv("SIM_WORKERS", 16),
		Providers:     getIntEnv("SIM_PROVIDERS", 5),
		Patients:      getIntEnv("SIM_PATIENTS", 500),
		SlotMinutes:   getIntEnv("SIM_SLOT_MINUTES", 30),
		ContestedDays: getIntEnv("SIM_CONTESTED_DAYS", 3),
		PostgresDSN:   appCfg.PostgresDSN,
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
