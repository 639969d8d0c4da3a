// Package report renders timesheet and appraisal reports as HTML and converts
// them to PDF with headless Chrome.
package report

import (
	"errors"
	"time"
)

// Result contains the rendered output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates no Chrome binary could be found.
var ErrPDFDependencyMissing = errors.New("report pdf dependency missing")

type TimesheetRow struct {
	UserName  string
	WeekStart time.Time
	Hours     [7]float64
	Total     float64
	Status    string
}

// TimesheetReport covers every timesheet whose week starts in [From, To).
type TimesheetReport struct {
	CompanyName string
	From        time.Time
	To          time.Time
	GeneratedAt time.Time
	Rows        []TimesheetRow
}

func (r TimesheetReport) TotalHours() float64 {
	var total float64
	for _, row := range r.Rows {
		total += row.Total
	}
	return total
}

type AppraisalReport struct {
	CompanyName    string
	GeneratedAt    time.Time
	EmployeeName   string
	ReviewerName   string
	Period         string
	Status         string
	Score          *int
	Strengths      string
	Improvements   string
	Goals          string
	Comments       string
	SubmittedAt    *time.Time
	AcknowledgedAt *time.Time
}
