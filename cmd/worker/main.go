package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"stride/api/internal/app"
	"stride/api/internal/config"
	"stride/api/internal/logging"
)

var (
	archiveSchedule  = flag.String("audit-archive-schedule", "30 0 * * *", "Cron schedule for archiving yesterday's audit log (default: 00:30 UTC)")
	reminderSchedule = flag.String("reminder-schedule", "0 16 * * 5", "Cron schedule for weekly timesheet reminders (default: Friday 16:00 UTC)")
	reindexSchedule  = flag.String("reindex-schedule", "0 3 * * *", "Cron schedule for the search reindex (default: 03:00 UTC)")
	runOnce          = flag.Bool("run-once", false, "Run every job once and exit")
	archiveDate      = flag.String("date", "", "Day to archive (YYYY-MM-DD). Defaults to yesterday. Only used with --run-once")
)

const jobTimeout = 30 * time.Minute

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	rt, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer rt.Close()
	svc := rt.Service

	if *runOnce {
		day := time.Now().UTC().AddDate(0, 0, -1)
		if *archiveDate != "" {
			day, err = time.Parse("2006-01-02", *archiveDate)
			if err != nil {
				logger.WithError(err).Fatal("invalid --date")
			}
		}
		failed := false
		for _, job := range jobs(svc, func() time.Time { return day }) {
			if err := run(logger, job); err != nil {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	schedules := map[string]string{
		app.JobAuditArchive:      *archiveSchedule,
		app.JobTimesheetReminder: *reminderSchedule,
		app.JobSearchReindex:     *reindexSchedule,
	}
	yesterday := func() time.Time { return time.Now().UTC().AddDate(0, 0, -1) }
	for _, job := range jobs(svc, yesterday) {
		if _, err := c.AddFunc(schedules[job.name], func() { _ = run(logger, job) }); err != nil {
			logger.WithError(err).WithField("job", job.name).Fatal("invalid schedule")
		}
		logger.WithFields(logrus.Fields{"job": job.name, "schedule": schedules[job.name]}).Info("job scheduled")
	}

	c.Start()
	logger.Info("Stride worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down gracefully")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("worker stopped")
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// jobs lists the scheduled work. day picks the audit archive date at run time.
func jobs(svc *app.Service, day func() time.Time) []job {
	return []job{
		{name: app.JobAuditArchive, fn: func(ctx context.Context) error {
			return svc.ArchiveAudit(ctx, day())
		}},
		{name: app.JobTimesheetReminder, fn: func(ctx context.Context) error {
			_, err := svc.SendTimesheetReminders(ctx)
			return err
		}},
		{name: app.JobSearchReindex, fn: func(ctx context.Context) error {
			_, err := svc.ReindexSearch(ctx)
			return err
		}},
	}
}

func run(logger *logrus.Logger, j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	err := j.fn(ctx)
	entry := logger.WithFields(logrus.Fields{"job": j.name, "duration_ms": time.Since(started).Milliseconds()})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return err
	}
	entry.Info("job finished")
	return nil
}
