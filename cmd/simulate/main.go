package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Rounds       int
	Racers       int
	Duration     time.Duration
	Workers      int
	PatientLimit int
	PostgresDSN  string
	JWTSecret    string
}

type DataPool struct {
	Patients     []uuid.UUID
	Doctors      []uuid.UUID
	mu           sync.RWMutex
	appointments []booked // appointments created during the load phase
}

type booked struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIdx(len(latencies), 50)]
	p95 = latencies[percentileIdx(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIdx(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Cancel       OperationMetrics
	List         OperationMetrics
	RaceBooking  OperationMetrics
}

// RaceStats counts same-slot races. A round is clean when exactly one of
// the racers got 201 and every other one was rejected as a slot conflict.
type RaceStats struct {
	Rounds     int
	Clean      int
	Violations []string
	Freed      int
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	issuer  *auth.Issuer
	log     zerolog.Logger
	metrics Metrics
	race    RaceStats
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "simulate")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Int("rounds", cfg.Rounds).
		Int("racers", cfg.Racers).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulator starting")

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().Int("patients", len(dataPool.Patients)).Int("doctors", len(dataPool.Doctors)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		issuer: auth.NewIssuer(cfg.JWTSecret, time.Hour),
		log:    logger,
	}

	sim.RunRaces(context.Background())
	sim.RunLoad()

	sim.PrintReport()

	if len(sim.race.Violations) > 0 {
		os.Exit(1)
	}
}

func loadConfig(baseCfg config.Config) SimConfig {
	return SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Rounds:       getInt("SIM_ROUNDS", 20),
		Racers:       getInt("SIM_RACERS", 16),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Racers < 2 {
		return fmt.Errorf("SIM_RACERS must be >= 2")
	}
	if cfg.Workers < 0 || cfg.Rounds < 0 {
		return fmt.Errorf("SIM_WORKERS and SIM_ROUNDS must be >= 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM users WHERE role = 'patient' LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients = patients

	doctors, err := loadIDs(ctx, pool, `SELECT id FROM doctors WHERE is_available LIMIT $1`, 1000)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Doctors = doctors

	if len(dataPool.Patients) < cfg.Racers {
		return nil, fmt.Errorf("need at least %d patients, have %d", cfg.Racers, len(dataPool.Patients))
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
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

// RunRaces fires Racers concurrent bookings from distinct patients at one
// free slot per round, then cancels the winner and checks the slot is free
// again.
func (s *Simulator) RunRaces(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.Rounds; round++ {
		doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		date, slot, ok := s.findFreeSlot(ctx, rng, doctorID)
		if !ok {
			s.log.Warn().Str("doctor_id", doctorID.String()).Msg("no free slot in the next two weeks, skipping round")
			continue
		}

		racers := rng.Perm(len(s.pool.Patients))[:s.config.Racers]
		start := make(chan struct{})

		var (
			wg        sync.WaitGroup
			winners   int64
			conflicts int64
			winner    booked
			winMu     sync.Mutex
		)
		for _, idx := range racers {
			patientID := s.pool.Patients[idx]
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				res := s.book(ctx, doctorID, patientID, date, slot)
				s.metrics.RaceBooking.Record(res.latency, res.created(), res.conflict())
				switch {
				case res.created():
					atomic.AddInt64(&winners, 1)
					winMu.Lock()
					winner = booked{ID: res.id, PatientID: patientID}
					winMu.Unlock()
				case res.conflict():
					atomic.AddInt64(&conflicts, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		s.race.Rounds++
		key := fmt.Sprintf("%s:%s:%s", doctorID, date, slot)
		if winners == 1 && conflicts == int64(s.config.Racers-1) {
			s.race.Clean++
		} else {
			s.race.Violations = append(s.race.Violations,
				fmt.Sprintf("%s winners=%d conflicts=%d racers=%d", key, winners, conflicts, s.config.Racers))
		}

		if winners >= 1 && s.cancelAndVerify(ctx, winner, doctorID, date, slot) {
			s.race.Freed++
		}
	}
}

func (s *Simulator) findFreeSlot(ctx context.Context, rng *rand.Rand, doctorID uuid.UUID) (string, string, bool) {
	today := time.Now().UTC()
	for offset := 1; offset <= 14; offset++ {
		date := today.AddDate(0, 0, offset).Format(time.DateOnly)
		avail, ok := s.availability(ctx, doctorID, date)
		if ok && avail.IsOpen && len(avail.FreeSlots) > 0 {
			return date, avail.FreeSlots[rng.Intn(len(avail.FreeSlots))], true
		}
	}
	return "", "", false
}

func (s *Simulator) cancelAndVerify(ctx context.Context, b booked, doctorID uuid.UUID, date, slot string) bool {
	code, _ := s.cancel(ctx, b)
	if code != http.StatusOK {
		s.log.Error().Int("status", code).Str("appointment_id", b.ID.String()).Msg("cancel of race winner failed")
		return false
	}
	avail, ok := s.availability(ctx, doctorID, date)
	if !ok {
		return false
	}
	for _, free := range avail.FreeSlots {
		if free == slot {
			return true
		}
	}
	s.race.Violations = append(s.race.Violations, fmt.Sprintf("%s:%s:%s not free after cancel", doctorID, date, slot))
	return false
}

// RunLoad runs a mixed workload of availability reads, bookings, cancels and
// list calls for Duration.
func (s *Simulator) RunLoad() {
	if s.config.Workers == 0 || s.config.Duration <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting load phase")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < 0.5:
				s.doAvailability(ctx, rng)
			case r < 0.8:
				s.doBooking(ctx, rng)
			case r < 0.9:
				s.doCancel(ctx, rng)
			default:
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(14)).Format(time.DateOnly)

	start := time.Now()
	_, ok := s.availability(ctx, doctorID, date)
	s.metrics.Availability.Record(time.Since(start), ok, false)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(14)).Format(time.DateOnly)
	slot := fmt.Sprintf("%02d:%02d", 8+rng.Intn(10), 30*rng.Intn(2))

	res := s.book(ctx, doctorID, patientID, date, slot)
	if res.created() {
		s.pool.AddAppointment(booked{ID: res.id, PatientID: patientID})
	}
	// random slots are often outside working hours, count those as rejected
	s.metrics.Booking.Record(res.latency, res.created(), res.code == http.StatusBadRequest)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	code, latency := s.cancel(ctx, b)
	// already cancelled shows up as 400
	s.metrics.Cancel.Record(latency, code == http.StatusOK, code == http.StatusBadRequest)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	code, _ := s.do(ctx, http.MethodGet, "/appointments?limit=20&offset=0", nil, patientActor(patientID))
	s.metrics.List.Record(time.Since(start), code == http.StatusOK, false)
}

type bookResult struct {
	code    int
	errCode string
	id      uuid.UUID
	latency time.Duration
}

func (r bookResult) created() bool { return r.code == http.StatusCreated }

func (r bookResult) conflict() bool {
	return r.errCode == "slot_already_booked" || r.errCode == "slot_being_booked"
}

func (s *Simulator) book(ctx context.Context, doctorID, patientID uuid.UUID, date, slot string) bookResult {
	end, err := availability.EndOf(slot)
	if err != nil {
		return bookResult{}
	}

	reqBody := map[string]string{
		"doctor_id":        doctorID.String(),
		"appointment_date": date,
		"start_time":       slot,
		"end_time":         end,
		"reason_for_visit": "simulated visit",
	}

	start := time.Now()
	code, body := s.do(ctx, http.MethodPost, "/appointments", reqBody, patientActor(patientID))
	res := bookResult{code: code, latency: time.Since(start)}

	var parsed struct {
		ID    uuid.UUID `json:"id"`
		Error string    `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		res.id = parsed.ID
		res.errCode = parsed.Error
	}
	return res
}

func (s *Simulator) cancel(ctx context.Context, b booked) (int, time.Duration) {
	start := time.Now()
	code, _ := s.do(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel",
		map[string]string{"reason": "simulated cancel"}, patientActor(b.PatientID))
	return code, time.Since(start)
}

type availabilityView struct {
	IsOpen    bool     `json:"is_open"`
	FreeSlots []string `json:"free_slots"`
}

func (s *Simulator) availability(ctx context.Context, doctorID uuid.UUID, date string) (availabilityView, bool) {
	var view availabilityView
	code, body := s.do(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/availability?date=%s", doctorID, date), nil, nil)
	if code != http.StatusOK {
		return view, false
	}
	if err := json.Unmarshal(body, &view); err != nil {
		return view, false
	}
	return view, true
}

func (s *Simulator) do(ctx context.Context, method, path string, payload any, actor *appointment.Actor) (int, []byte) {
	var reader io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		token, err := s.issuer.Issue(*actor)
		if err != nil {
			return 0, nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func patientActor(id uuid.UUID) *appointment.Actor {
	return &appointment.Actor{UserID: id, Role: appointment.RolePatient}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Race rounds: %d (racers per round: %d)\n", s.race.Rounds, s.config.Racers)
	fmt.Printf("  Exactly one winner: %d\n", s.race.Clean)
	fmt.Printf("  Slot freed by cancel: %d\n", s.race.Freed)
	for _, v := range s.race.Violations {
		fmt.Printf("  VIOLATION %s\n", v)
	}
	fmt.Println()

	printOperationReport("Race booking", &s.metrics.RaceBooking)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
