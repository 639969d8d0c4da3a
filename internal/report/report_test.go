package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTimesheetsHTML(t *testing.T) {
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	html, err := TimesheetsHTML(TimesheetReport{
		CompanyName: "Acme <Labs>",
		From:        week,
		To:          week.AddDate(0, 0, 14),
		GeneratedAt: week,
		Rows: []TimesheetRow{
			{UserName: "Ada", WeekStart: week, Hours: [7]float64{8, 8, 8, 8, 6}, Total: 38, Status: "APPROVED"},
			{UserName: "Grace", WeekStart: week, Hours: [7]float64{7.5}, Total: 7.5, Status: "SUBMITTED"},
		},
	})
	if err != nil {
		t.Fatalf("TimesheetsHTML failed: %v", err)
	}
	for _, want := range []string{"Acme &lt;Labs&gt;", "Ada", "Grace", "38.0", "45.5", "Mar 2, 2026", "Mar 16, 2026"} {
		if !strings.Contains(html, want) {
			t.Errorf("report should contain %q", want)
		}
	}
}

func TestTimesheetsHTMLEmpty(t *testing.T) {
	html, err := TimesheetsHTML(TimesheetReport{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("TimesheetsHTML failed: %v", err)
	}
	if !strings.Contains(html, "No timesheets in this range.") {
		t.Error("empty report should say so")
	}
}

func TestAppraisalHTML(t *testing.T) {
	score := 4
	submitted := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	html, err := AppraisalHTML(AppraisalReport{
		CompanyName:  "Acme",
		EmployeeName: "Ada",
		ReviewerName: "Grace",
		Period:       "2026 H1",
		Status:       "SUBMITTED",
		Score:        &score,
		Strengths:    "Ships reliably",
		Goals:        "Mentor two engineers",
		SubmittedAt:  &submitted,
	})
	if err != nil {
		t.Fatalf("AppraisalHTML failed: %v", err)
	}
	for _, want := range []string{"Performance appraisal: Ada", "4 / 5", "Ships reliably", "Submitted Jun 30, 2026", "acknowledged -"} {
		if !strings.Contains(html, want) {
			t.Errorf("report should contain %q", want)
		}
	}
	if strings.Contains(html, "<h2>Comments</h2>") {
		t.Error("empty comments section should be omitted")
	}

	unscored, err := AppraisalHTML(AppraisalReport{EmployeeName: "Ada"})
	if err != nil {
		t.Fatalf("AppraisalHTML failed: %v", err)
	}
	if !strings.Contains(unscored, "Not scored") {
		t.Error("draft appraisal should render as not scored")
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("<p>a b+é</p>")
	want := "%3Cp%3Ea%20b%2B%C3%A9%3C%2Fp%3E"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Timesheets 2026-03-02": "Timesheets-2026-03-02",
		"../../etc/passwd":      "etcpasswd",
		"":                      "report",
		strings.Repeat("a", 60): strings.Repeat("a", 50),
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPDFWithoutChrome(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := NewPDFRenderer("").PDF(context.Background(), "<p>x</p>", "x")
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected ErrPDFDependencyMissing, got %v", err)
	}
}
