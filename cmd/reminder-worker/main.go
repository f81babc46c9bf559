package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "reminder-worker")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "reminder-worker")
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.ReminderSchedule).
		Dur("window", cfg.ReminderWindow).
		Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 4)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	var senders []reminder.Sender
	if cfg.SMTPHost != "" {
		senders = append(senders, reminder.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom))
	} else {
		logger.Warn().Msg("SMTP_HOST not set, email reminders disabled")
	}
	if cfg.ExpoPushEnabled {
		senders = append(senders, reminder.NewPushSender())
	}

	sweeper := reminder.NewSweeper(
		appointment.NewPgRepository(pgPool),
		reminder.NewPgStore(pgPool),
		senders,
		cfg.ReminderWindow,
		cfg.Location,
		logger,
	)

	// Run once at startup
	runOnce(rootCtx, sweeper, logger)

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: logger})),
	)
	if _, err := c.AddFunc(cfg.ReminderSchedule, func() { runOnce(rootCtx, sweeper, logger) }); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReminderSchedule).Msg("invalid REMINDER_SCHEDULE")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping reminder worker")

	// wait for an in-flight sweep
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, sweeper *reminder.Sweeper, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := sweeper.RunOnce(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run error")
		return
	}
	logger.Info().
		Int("due", res.Due).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("took", time.Since(start)).
		Msg("reminder run complete")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
