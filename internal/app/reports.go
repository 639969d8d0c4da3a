package app

import (
	"context"
	"errors"
	"net/http"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/rbac"
	"stride/api/internal/report"
	"stride/api/internal/store"
)

var errPDFUnavailable = domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil)

type ReportQuery struct {
	From   string
	To     string
	UserID string
}

func (s *Service) renderPDF(ctx context.Context, html, title string) (*report.Result, error) {
	result, err := s.pdf.PDF(ctx, html, title)
	if errors.Is(err, report.ErrPDFDependencyMissing) {
		return nil, errPDFUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// userNames resolves display names, falling back to the id for deleted users.
func (s *Service) userNames(ctx context.Context, ids ...string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if _, ok := names[id]; ok || id == "" {
			continue
		}
		user, err := s.store.GetUserByID(ctx, id)
		switch {
		case err == nil:
			names[id] = user.Name
		case errors.Is(err, store.ErrNotFound):
			names[id] = id
		default:
			return nil, err
		}
	}
	return names, nil
}

// TimesheetReport renders every timesheet whose week starts in [from, to) as a PDF.
func (s *Service) TimesheetReport(ctx context.Context, actor *auth.Session, q ReportQuery) (*report.Result, error) {
	if !allowed(actor, rbac.PermReportExport) {
		return nil, nil
	}
	if blank(q.From) {
		return nil, queryError("from", "is required")
	}
	if blank(q.To) {
		return nil, queryError("to", "is required")
	}
	from, err := parseInstant("from", q.From)
	if err != nil {
		return nil, err
	}
	to, err := parseInstant("to", q.To)
	if err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, queryError("to", "must be after from")
	}

	sheets, err := s.store.ListTimesheets(ctx, store.TimesheetFilter{UserID: q.UserID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		ids = append(ids, sheet.UserID)
	}
	names, err := s.userNames(ctx, ids...)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}

	data := report.TimesheetReport{
		CompanyName: settings.General.CompanyName,
		From:        from,
		To:          to,
		GeneratedAt: s.now().UTC(),
	}
	for _, sheet := range sheets {
		data.Rows = append(data.Rows, report.TimesheetRow{
			UserName:  names[sheet.UserID],
			WeekStart: sheet.WeekStart,
			Hours:     sheet.Hours,
			Total:     sheet.TotalHours,
			Status:    sheet.Status,
		})
	}
	html, err := report.TimesheetsHTML(data)
	if err != nil {
		return nil, err
	}
	return s.renderPDF(ctx, html, "timesheets-"+from.Format(dateLayout)+"-"+to.Format(dateLayout))
}

// AppraisalReport renders one appraisal. The appraised employee may export their own.
func (s *Service) AppraisalReport(ctx context.Context, actor *auth.Session, id string) (*report.Result, error) {
	if actor == nil {
		return nil, nil
	}
	appraisal, err := s.store.GetAppraisal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(actor, rbac.PermReportExport) && appraisal.EmployeeID != actor.UserID {
		return nil, nil
	}
	names, err := s.userNames(ctx, appraisal.EmployeeID, appraisal.ReviewerID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	html, err := report.AppraisalHTML(report.AppraisalReport{
		CompanyName:    settings.General.CompanyName,
		GeneratedAt:    s.now().UTC(),
		EmployeeName:   names[appraisal.EmployeeID],
		ReviewerName:   names[appraisal.ReviewerID],
		Period:         appraisal.Period,
		Status:         appraisal.Status,
		Score:          appraisal.Score,
		Strengths:      appraisal.Strengths,
		Improvements:   appraisal.Improvements,
		Goals:          appraisal.Goals,
		Comments:       appraisal.Comments,
		SubmittedAt:    appraisal.SubmittedAt,
		AcknowledgedAt: appraisal.AcknowledgedAt,
	})
	if err != nil {
		return nil, err
	}
	return s.renderPDF(ctx, html, "appraisal-"+names[appraisal.EmployeeID]+"-"+appraisal.Period)
}

// AuditExport lists the entries for a CSV export, oldest first and without a limit.
func (s *Service) AuditExport(ctx context.Context, actor *auth.Session, q AuditQuery) ([]audit.Entry, error) {
	if !allowed(actor, rbac.PermAuditExport) {
		return nil, nil
	}
	q.Limit = 0
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	filter.Limit = 0
	filter.Ascending = true
	entries, err := s.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}
