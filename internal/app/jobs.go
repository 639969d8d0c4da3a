package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/store"
)

// Job names used for logging and stride_job_runs_total.
const (
	JobAuditArchive      = "audit_archive"
	JobTimesheetReminder = "timesheet_reminder"
	JobSearchReindex     = "search_reindex"
)

var errArchiverDisabled = errors.New("audit archiver is not configured")

// mondayOf returns 00:00 UTC on the Monday of t's week.
func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// SendTimesheetReminders emails every active user without a timesheet for the
// current week. It is a no-op when reminders are switched off or SMTP is not
// configured, and returns the number of emails sent.
func (s *Service) SendTimesheetReminders(ctx context.Context) (sent int, err error) {
	defer func() { s.metrics.Job(JobTimesheetReminder, err) }()

	settings, err := s.settings(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.Notifications.WeeklyTimesheetReminder || !s.mailer.IsConfigured() {
		return 0, nil
	}
	week := mondayOf(s.now())
	users, err := s.store.ListUsers(ctx, store.UserFilter{Status: store.UserActive})
	if err != nil {
		return 0, err
	}
	for _, user := range users {
		sheets, err := s.store.ListTimesheets(ctx, store.TimesheetFilter{UserID: user.ID, From: week, To: week.AddDate(0, 0, 7), Limit: 1})
		if err != nil {
			return sent, err
		}
		if len(sheets) > 0 {
			continue
		}
		if err := s.mailer.SendTimesheetReminder(user.Email, user.Name, week); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("timesheet reminder failed")
			continue
		}
		sent++
	}
	s.logger.WithFields(logrus.Fields{"job": JobTimesheetReminder, "sent": sent, "week": week.Format(dateLayout)}).Info("timesheet reminders sent")
	return sent, nil
}

// ArchiveAudit copies the given UTC day of the audit log to object storage.
func (s *Service) ArchiveAudit(ctx context.Context, day time.Time) (err error) {
	defer func() { s.metrics.Job(JobAuditArchive, err) }()

	if s.archiver == nil {
		return errArchiverDisabled
	}
	key, count, err := s.archiver.ArchiveDay(ctx, day)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"job": JobAuditArchive, "key": key, "entries": count}).Info("audit log archived")
	return nil
}

// ReindexSearch rebuilds the search index from the database.
func (s *Service) ReindexSearch(ctx context.Context) (n int, err error) {
	defer func() { s.metrics.Job(JobSearchReindex, err) }()

	n, err = s.search.ReindexAll(ctx)
	if err != nil {
		return n, err
	}
	s.logger.WithFields(logrus.Fields{"job": JobSearchReindex, "records": n}).Info("search index rebuilt")
	return n, nil
}
