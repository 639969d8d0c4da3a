package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/cache"
	"stride/api/internal/email"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

type TimesheetInput struct {
	WeekStart string     `json:"weekStart"`
	Hours     [7]float64 `json:"hours"`
	Notes     string     `json:"notes"`
}

type ReviewInput struct {
	ID   string `json:"-"`
	Note string `json:"note"`
}

type PTOInput struct {
	Type      string `json:"type"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Reason    string `json:"reason"`
}

var ptoTypes = []string{store.PTOVacation, store.PTOSick, store.PTOPersonal, store.PTOUnpaid}

// =============================================================================
// Timesheets
// =============================================================================

func (s *Service) SubmitTimesheet(ctx context.Context, actor *auth.Session, in TimesheetInput) ActionResult {
	var (
		week     time.Time
		total    float64
		settings store.OrganizationSettings
	)
	return s.run(ctx, actor, mutation{
		action: audit.TimesheetSubmitted,
		entity: audit.EntityTimesheet,
		perm:   rbac.PermTimesheetSubmit,
		validate: func() error {
			start, err := parseDate("weekStart", in.WeekStart, true)
			if err != nil {
				return err
			}
			if start.Weekday() != time.Monday {
				return invalid("weekStart", "must be a Monday")
			}
			week = *start
			if err := maxLen("notes", in.Notes, 2000); err != nil {
				return err
			}
			total = 0
			for _, h := range in.Hours {
				if h < 0 {
					return invalid("hours", "must not be negative")
				}
				total += h
			}
			if total == 0 {
				return invalid("hours", "must include at least one day with hours")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if settings, err = s.settings(ctx); err != nil {
				return err
			}
			for _, h := range in.Hours {
				if h > settings.Timesheets.MaxHoursPerDay {
					return invalid("hours", fmt.Sprintf("must be at most %g per day", settings.Timesheets.MaxHoursPerDay))
				}
			}
			existing, err := s.store.ListTimesheets(ctx, store.TimesheetFilter{
				UserID: actor.UserID, From: week, To: week.AddDate(0, 0, 1), Limit: 1,
			})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return conflict("Timesheet already submitted for this week")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			now := s.now().UTC()
			sheet := store.Timesheet{
				ID:          util.NewID("ts"),
				UserID:      actor.UserID,
				WeekStart:   week,
				Hours:       in.Hours,
				TotalHours:  total,
				Notes:       strings.TrimSpace(in.Notes),
				Status:      store.TimesheetSubmitted,
				SubmittedAt: now,
			}
			if !settings.Timesheets.RequireApproval {
				sheet.Status = store.TimesheetApproved
				sheet.ReviewedAt = &now
			}
			if err := s.store.CreateTimesheet(ctx, sheet); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return written{}, conflict("Timesheet already submitted for this week")
				}
				return written{}, err
			}
			return written{id: sheet.ID, detail: fmt.Sprintf("week %s, %g hours, %s", week.Format(dateLayout), total, sheet.Status)}, nil
		},
		tags:    []string{cache.TagTimesheets},
		message: "Timesheet submitted successfully",
	})
}

func (s *Service) ApproveTimesheet(ctx context.Context, actor *auth.Session, in ReviewInput) ActionResult {
	return s.reviewTimesheet(ctx, actor, in, store.TimesheetApproved)
}

func (s *Service) RejectTimesheet(ctx context.Context, actor *auth.Session, in ReviewInput) ActionResult {
	return s.reviewTimesheet(ctx, actor, in, store.TimesheetRejected)
}

func (s *Service) reviewTimesheet(ctx context.Context, actor *auth.Session, in ReviewInput, status string) ActionResult {
	var (
		sheet    store.Timesheet
		settings store.OrganizationSettings
	)
	action, message := audit.TimesheetApproved, "Timesheet approved"
	if status == store.TimesheetRejected {
		action, message = audit.TimesheetRejected, "Timesheet rejected"
	}
	note := strings.TrimSpace(in.Note)
	return s.run(ctx, actor, mutation{
		action: action,
		entity: audit.EntityTimesheet,
		perm:   rbac.PermTimesheetReview,
		validate: func() error {
			if blank(in.ID) {
				return required("id")
			}
			if status == store.TimesheetRejected && note == "" {
				return required("note")
			}
			return maxLen("note", note, 1000)
		},
		check: func(ctx context.Context) error {
			got, err := s.store.GetTimesheet(ctx, in.ID)
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Timesheet")
			}
			if err != nil {
				return err
			}
			sheet = got
			if sheet.UserID == actor.UserID {
				return forbidden("You cannot review your own timesheet")
			}
			if sheet.Status != store.TimesheetSubmitted {
				return conflict("Timesheet has already been reviewed")
			}
			settings, err = s.settings(ctx)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.ReviewTimesheet(ctx, store.TimesheetReview{
				ID: sheet.ID, Status: status, ReviewerID: actor.UserID, Note: note, At: s.now().UTC(),
			})
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Timesheet has already been reviewed")
			}
			return written{id: sheet.ID, detail: "week " + sheet.WeekStart.Format(dateLayout)}, nil
		},
		tags: []string{cache.TagTimesheets},
		hooks: []hook{{name: "email", fn: func(ctx context.Context) error {
			if !settings.Notifications.EmailOnTimesheetReview || !s.mailer.IsConfigured() {
				return nil
			}
			owner, err := s.store.GetUserByID(ctx, sheet.UserID)
			if err != nil {
				return err
			}
			return s.mailer.SendTimesheetReviewed(owner.Email, email.TimesheetReview{
				UserName: owner.Name, WeekStart: sheet.WeekStart, Status: status,
				TotalHours: sheet.TotalHours, Note: note,
			})
		}}},
		message: message,
	})
}

// =============================================================================
// PTO
// =============================================================================

// ptoBalance reports the actor's allowance for year. Pending requests count as used.
func (s *Service) ptoBalance(ctx context.Context, userID string, year int, settings store.OrganizationSettings) (PTOBalance, error) {
	used, err := s.store.UsedPTODays(ctx, userID, year)
	if err != nil {
		return PTOBalance{}, err
	}
	allowance := settings.PTO.AnnualAllowanceDays
	return PTOBalance{Year: year, Allowance: allowance, Used: used, Remaining: max(allowance-used, 0)}, nil
}

func (s *Service) RequestPTO(ctx context.Context, actor *auth.Session, in PTOInput) ActionResult {
	var (
		start, end time.Time
		days       int
	)
	ptoType := strings.ToUpper(strings.TrimSpace(in.Type))
	return s.run(ctx, actor, mutation{
		action: audit.PTORequested,
		entity: audit.EntityPTORequest,
		perm:   rbac.PermPTORequest,
		validate: func() error {
			if ptoType == "" {
				return required("type")
			}
			if !slices.Contains(ptoTypes, ptoType) {
				return invalid("type", "must be one of VACATION, SICK, PERSONAL, UNPAID")
			}
			startDate, err := parseDate("startDate", in.StartDate, true)
			if err != nil {
				return err
			}
			endDate, err := parseDate("endDate", in.EndDate, true)
			if err != nil {
				return err
			}
			if endDate.Before(*startDate) {
				return invalid("endDate", "must not be before startDate")
			}
			// Balances are per calendar year.
			if endDate.Year() != startDate.Year() {
				return invalid("endDate", "must be in the same year as startDate")
			}
			start, end = *startDate, *endDate
			if days = weekdays(start, end); days == 0 {
				return invalid("endDate", "must cover at least one weekday")
			}
			return maxLen("reason", in.Reason, 1000)
		},
		check: func(ctx context.Context) error {
			if ptoType == store.PTOUnpaid {
				return nil
			}
			settings, err := s.settings(ctx)
			if err != nil {
				return err
			}
			balance, err := s.ptoBalance(ctx, actor.UserID, start.Year(), settings)
			if err != nil {
				return err
			}
			if days > balance.Remaining {
				return conflict("Insufficient PTO balance")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			req := store.PTORequest{
				ID:        util.NewID("pto"),
				UserID:    actor.UserID,
				Type:      ptoType,
				StartDate: start,
				EndDate:   end,
				Days:      days,
				Reason:    strings.TrimSpace(in.Reason),
				Status:    store.PTOPending,
				CreatedAt: s.now().UTC(),
			}
			if err := s.store.CreatePTORequest(ctx, req); err != nil {
				return written{}, err
			}
			return written{id: req.ID, detail: fmt.Sprintf("%s %s to %s (%d days)", ptoType, in.StartDate, in.EndDate, days)}, nil
		},
		tags:    []string{cache.TagPTO},
		message: "PTO request submitted successfully",
	})
}

func (s *Service) ApprovePTO(ctx context.Context, actor *auth.Session, in ReviewInput) ActionResult {
	return s.reviewPTO(ctx, actor, in, store.PTOApproved)
}

func (s *Service) RejectPTO(ctx context.Context, actor *auth.Session, in ReviewInput) ActionResult {
	return s.reviewPTO(ctx, actor, in, store.PTORejected)
}

func (s *Service) requirePTO(ctx context.Context, id string) (store.PTORequest, error) {
	req, err := s.store.GetPTORequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.PTORequest{}, notFound("PTO request")
	}
	return req, err
}

func (s *Service) reviewPTO(ctx context.Context, actor *auth.Session, in ReviewInput, status string) ActionResult {
	var (
		req      store.PTORequest
		settings store.OrganizationSettings
	)
	action, message := audit.PTOApproved, "PTO request approved"
	if status == store.PTORejected {
		action, message = audit.PTORejected, "PTO request rejected"
	}
	note := strings.TrimSpace(in.Note)
	return s.run(ctx, actor, mutation{
		action: action,
		entity: audit.EntityPTORequest,
		perm:   rbac.PermPTOReview,
		validate: func() error {
			if blank(in.ID) {
				return required("id")
			}
			return maxLen("note", note, 1000)
		},
		check: func(ctx context.Context) (err error) {
			if req, err = s.requirePTO(ctx, in.ID); err != nil {
				return err
			}
			if req.UserID == actor.UserID {
				return forbidden("You cannot review your own PTO request")
			}
			if req.Status != store.PTOPending {
				return conflict("PTO request has already been reviewed")
			}
			settings, err = s.settings(ctx)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.ReviewPTORequest(ctx, store.PTOReview{
				ID: req.ID, From: store.PTOPending, To: status, ReviewerID: actor.UserID, Note: note, At: s.now().UTC(),
			})
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("PTO request has already been reviewed")
			}
			return written{id: req.ID, detail: fmt.Sprintf("%s %d days", req.Type, req.Days)}, nil
		},
		tags: []string{cache.TagPTO},
		hooks: []hook{{name: "email", fn: func(ctx context.Context) error {
			if !settings.Notifications.EmailOnPTODecision || !s.mailer.IsConfigured() {
				return nil
			}
			requester, err := s.store.GetUserByID(ctx, req.UserID)
			if err != nil {
				return err
			}
			return s.mailer.SendPTODecision(requester.Email, email.PTODecision{
				UserName: requester.Name, Type: req.Type, StartDate: req.StartDate, EndDate: req.EndDate,
				Days: req.Days, Status: status, Note: note,
			})
		}}},
		message: message,
	})
}

// CancelPTO withdraws the actor's own pending request.
func (s *Service) CancelPTO(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var req store.PTORequest
	return s.run(ctx, actor, mutation{
		action: audit.PTOCancelled,
		entity: audit.EntityPTORequest,
		perm:   rbac.PermPTORequest,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if req, err = s.requirePTO(ctx, id); err != nil {
				return err
			}
			if req.UserID != actor.UserID {
				return forbidden("You can only cancel your own PTO requests")
			}
			if req.Status != store.PTOPending {
				return conflict("Only pending PTO requests can be cancelled")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.ReviewPTORequest(ctx, store.PTOReview{
				ID: req.ID, From: store.PTOPending, To: store.PTOCancelled, At: s.now().UTC(),
			})
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Only pending PTO requests can be cancelled")
			}
			return written{id: req.ID}, nil
		},
		tags:    []string{cache.TagPTO},
		message: "PTO request cancelled",
	})
}
