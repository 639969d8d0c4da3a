package store

import (
	"context"
	"fmt"
	"time"
)

func (s *PostgresStore) CreateAppraisal(ctx context.Context, appraisal Appraisal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appraisals (id, employee_id, reviewer_id, period, status, score, strengths, improvements, goals, comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, appraisal.ID, appraisal.EmployeeID, appraisal.ReviewerID, appraisal.Period, appraisal.Status, appraisal.Score,
		appraisal.Strengths, appraisal.Improvements, appraisal.Goals, appraisal.Comments, appraisal.CreatedAt)
	return classify("insert appraisal", err)
}

const appraisalColumns = `id, employee_id, reviewer_id, period, status, score, strengths, improvements, goals, comments, created_at, submitted_at, acknowledged_at`

func scanAppraisal(row rowScanner) (Appraisal, error) {
	var a Appraisal
	err := row.Scan(&a.ID, &a.EmployeeID, &a.ReviewerID, &a.Period, &a.Status, &a.Score, &a.Strengths,
		&a.Improvements, &a.Goals, &a.Comments, &a.CreatedAt, &a.SubmittedAt, &a.AcknowledgedAt)
	return a, err
}

func (s *PostgresStore) GetAppraisal(ctx context.Context, appraisalID string) (Appraisal, error) {
	a, err := scanAppraisal(s.db.QueryRowContext(ctx, `SELECT `+appraisalColumns+` FROM appraisals WHERE id=$1`, appraisalID))
	if err != nil {
		return Appraisal{}, classify("lookup appraisal", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAppraisals(ctx context.Context, filter AppraisalFilter) ([]Appraisal, error) {
	var w where
	if filter.EmployeeID != "" {
		w.add("employee_id=?", filter.EmployeeID)
	}
	if filter.ReviewerID != "" {
		w.add("reviewer_id=?", filter.ReviewerID)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+appraisalColumns+` FROM appraisals`+w.clause()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list appraisals: %w", err)
	}
	defer rows.Close()

	out := make([]Appraisal, 0)
	for rows.Next() {
		a, err := scanAppraisal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appraisal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SubmitAppraisal writes the review content and moves DRAFT to SUBMITTED in one statement.
func (s *PostgresStore) SubmitAppraisal(ctx context.Context, appraisal Appraisal) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE appraisals
		SET status='SUBMITTED', score=$2, strengths=$3, improvements=$4, goals=$5, comments=$6, submitted_at=$7
		WHERE id=$1 AND status='DRAFT'
	`, appraisal.ID, appraisal.Score, appraisal.Strengths, appraisal.Improvements, appraisal.Goals, appraisal.Comments, appraisal.SubmittedAt)
	return affected("submit appraisal", result, err)
}

func (s *PostgresStore) AcknowledgeAppraisal(ctx context.Context, appraisalID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE appraisals SET status='ACKNOWLEDGED', acknowledged_at=$2 WHERE id=$1 AND status='SUBMITTED'
	`, appraisalID, at)
	return affected("acknowledge appraisal", result, err)
}
