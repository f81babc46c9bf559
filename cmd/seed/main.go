package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
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

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctors := getInt("SEED_DOCTORS", 20)
	patients := getInt("SEED_PATIENTS", 2000)

	if err := seedDoctors(ctx, pool, logger, doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, logger, patients); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	adminID, err := seedAdmin(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}

	token, err := auth.NewIssuer(cfg.JWTSecret, 30*24*time.Hour).Issue(appointment.Actor{UserID: adminID, Role: appointment.RoleAdmin})
	if err != nil {
		logger.Fatal().Err(err).Msg("issue admin token")
	}
	logger.Info().Str("admin_id", adminID.String()).Str("admin_token", token).Msg("seed complete")
}

// randomSchedule gives a weekday window on Monday to Friday, a short
// Saturday for some doctors and Sunday off.
func randomSchedule() availability.WeeklySchedule {
	starts := []string{"08:00", "08:30", "09:00", "10:00"}
	ends := []string{"12:00", "16:00", "17:00", "18:30"}

	var schedule availability.WeeklySchedule
	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"} {
		if gofakeit.Number(0, 9) == 0 {
			schedule = append(schedule, availability.DayAvailability{Day: day, Closed: true})
			continue
		}
		schedule = append(schedule, availability.DayAvailability{
			Day:       day,
			StartTime: starts[gofakeit.Number(0, len(starts)-1)],
			EndTime:   ends[gofakeit.Number(0, len(ends)-1)],
		})
	}
	if gofakeit.Bool() {
		schedule = append(schedule, availability.DayAvailability{Day: "Saturday", StartTime: "10:00", EndTime: "13:00"})
	}
	schedule = append(schedule, availability.DayAvailability{Day: "Sunday", Closed: true})
	return schedule
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		userID := uuid.New()
		name := gofakeit.Name()

		schedule := randomSchedule()
		if err := schedule.Validate(); err != nil {
			return fmt.Errorf("generated schedule: %w", err)
		}
		raw, err := json.Marshal(schedule)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, name, email, phone, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'doctor', now(), now())
		`, userID, name, gofakeit.Email(), gofakeit.Phone())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, specialization, is_available, availability, created_at, updated_at)
			VALUES ($1, $2, $3, true, $4, now(), now())
		`, uuid.New(), userID, specializations[gofakeit.Number(0, len(specializations)-1)], raw)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			var pushToken *string
			if gofakeit.Number(0, 3) == 0 {
				t := fmt.Sprintf("ExponentPushToken[%s]", gofakeit.LetterN(22))
				pushToken = &t
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, phone, role, push_token, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'patient', $5, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), pushToken)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1, 'Clinic Admin', 'admin@clinicbooking.com', 'admin', now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id
	`, uuid.New()).Scan(&id)
	return id, err
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
