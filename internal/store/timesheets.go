package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *PostgresStore) CreateTimesheet(ctx context.Context, sheet Timesheet) error {
	hours, err := json.Marshal(sheet.Hours)
	if err != nil {
		return fmt.Errorf("encode timesheet hours: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO timesheets (id, user_id, week_start, hours, total_hours, notes, status, reviewer_id, review_note, submitted_at, reviewed_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11)
	`, sheet.ID, sheet.UserID, sheet.WeekStart, string(hours), sheet.TotalHours, sheet.Notes, sheet.Status,
		sheet.ReviewerID, sheet.ReviewNote, sheet.SubmittedAt, sheet.ReviewedAt)
	return classify("insert timesheet", err)
}

const timesheetColumns = `id, user_id, week_start, hours::text, total_hours::float8, notes, status, reviewer_id, review_note, submitted_at, reviewed_at`

func scanTimesheet(row rowScanner) (Timesheet, error) {
	var sheet Timesheet
	var hours string
	if err := row.Scan(&sheet.ID, &sheet.UserID, &sheet.WeekStart, &hours, &sheet.TotalHours, &sheet.Notes,
		&sheet.Status, &sheet.ReviewerID, &sheet.ReviewNote, &sheet.SubmittedAt, &sheet.ReviewedAt); err != nil {
		return Timesheet{}, err
	}
	if err := json.Unmarshal([]byte(hours), &sheet.Hours); err != nil {
		return Timesheet{}, fmt.Errorf("decode timesheet hours: %w", err)
	}
	return sheet, nil
}

func (s *PostgresStore) GetTimesheet(ctx context.Context, sheetID string) (Timesheet, error) {
	sheet, err := scanTimesheet(s.db.QueryRowContext(ctx, `SELECT `+timesheetColumns+` FROM timesheets WHERE id=$1`, sheetID))
	if err != nil {
		return Timesheet{}, classify("lookup timesheet", err)
	}
	return sheet, nil
}

func (s *PostgresStore) ListTimesheets(ctx context.Context, filter TimesheetFilter) ([]Timesheet, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id=?", filter.UserID)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	if !filter.From.IsZero() {
		w.add("week_start>=?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("week_start<?", filter.To)
	}
	query := `SELECT ` + timesheetColumns + ` FROM timesheets` + w.clause() + ` ORDER BY week_start DESC, id` + w.limit(filter.Limit)
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list timesheets: %w", err)
	}
	defer rows.Close()

	sheets := make([]Timesheet, 0)
	for rows.Next() {
		sheet, err := scanTimesheet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timesheet: %w", err)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

// ReviewTimesheet applies the decision only while the timesheet is still SUBMITTED.
func (s *PostgresStore) ReviewTimesheet(ctx context.Context, review TimesheetReview) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE timesheets SET status=$2, reviewer_id=$3, review_note=$4, reviewed_at=$5
		WHERE id=$1 AND status='SUBMITTED'
	`, review.ID, review.Status, review.ReviewerID, review.Note, review.At)
	return affected("review timesheet", result, err)
}

func (s *PostgresStore) CountTimesheets(ctx context.Context, status string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timesheets WHERE status=$1`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count timesheets: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreatePTORequest(ctx context.Context, req PTORequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pto_requests (id, user_id, type, start_date, end_date, days, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.UserID, req.Type, req.StartDate, req.EndDate, req.Days, req.Reason, req.Status, req.CreatedAt)
	return classify("insert pto request", err)
}

const ptoColumns = `id, user_id, type, start_date, end_date, days, reason, status, reviewer_id, review_note, created_at, reviewed_at`

func scanPTORequest(row rowScanner) (PTORequest, error) {
	var req PTORequest
	err := row.Scan(&req.ID, &req.UserID, &req.Type, &req.StartDate, &req.EndDate, &req.Days, &req.Reason,
		&req.Status, &req.ReviewerID, &req.ReviewNote, &req.CreatedAt, &req.ReviewedAt)
	return req, err
}

func (s *PostgresStore) GetPTORequest(ctx context.Context, requestID string) (PTORequest, error) {
	req, err := scanPTORequest(s.db.QueryRowContext(ctx, `SELECT `+ptoColumns+` FROM pto_requests WHERE id=$1`, requestID))
	if err != nil {
		return PTORequest{}, classify("lookup pto request", err)
	}
	return req, nil
}

func (s *PostgresStore) ListPTORequests(ctx context.Context, filter PTOFilter) ([]PTORequest, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id=?", filter.UserID)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	query := `SELECT ` + ptoColumns + ` FROM pto_requests` + w.clause() + ` ORDER BY start_date DESC, id` + w.limit(filter.Limit)
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list pto requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]PTORequest, 0)
	for rows.Next() {
		req, err := scanPTORequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pto request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *PostgresStore) ReviewPTORequest(ctx context.Context, review PTOReview) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pto_requests SET status=$3, reviewer_id=NULLIF($4, ''), review_note=$5, reviewed_at=$6
		WHERE id=$1 AND status=$2
	`, review.ID, review.From, review.To, review.ReviewerID, review.Note, review.At)
	return affected("review pto request", result, err)
}

// UsedPTODays sums approved and pending paid days starting in year.
func (s *PostgresStore) UsedPTODays(ctx context.Context, userID string, year int) (int, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var days int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(days), 0) FROM pto_requests
		WHERE user_id=$1 AND status IN ('APPROVED', 'PENDING') AND type <> 'UNPAID'
			AND start_date >= $2 AND start_date < $3
	`, userID, from, from.AddDate(1, 0, 0)).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("used pto days: %w", err)
	}
	return days, nil
}

func (s *PostgresStore) CountPTORequests(ctx context.Context, status string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pto_requests WHERE status=$1`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pto requests: %w", err)
	}
	return count, nil
}
