package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var templates = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("Jan 2, 2006") },
	"hours":      func(h float64) string { return fmt.Sprintf("%.1f", h) },
	"score":      func(p *int) int { return *p },
	"deref": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format("Jan 2, 2006")
	},
}).Parse(`
{{define "style"}}<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2937; font-size: 11pt; }
    h1 { font-size: 18pt; margin-bottom: 0; }
    .meta { color: #6b7280; margin-bottom: 24px; }
    table { width: 100%; border-collapse: collapse; }
    th, td { border-bottom: 1px solid #e5e7eb; padding: 6px 4px; text-align: right; }
    th:first-child, td:first-child, th:nth-child(2), td:nth-child(2) { text-align: left; }
    tfoot td { font-weight: bold; }
    section { margin-bottom: 18px; }
    h2 { font-size: 12pt; border-bottom: 1px solid #e5e7eb; }
    .text { white-space: pre-wrap; }
</style>{{end}}

{{define "timesheets"}}<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Timesheets</title>{{template "style"}}</head>
<body>
    <h1>{{.CompanyName}} timesheets</h1>
    <p class="meta">Weeks starting {{formatDate .From}} to {{formatDate .To}} &middot; generated {{formatDate .GeneratedAt}}</p>
    <table>
        <thead><tr><th>Employee</th><th>Week</th><th>Mon</th><th>Tue</th><th>Wed</th><th>Thu</th><th>Fri</th><th>Sat</th><th>Sun</th><th>Total</th><th>Status</th></tr></thead>
        <tbody>
        {{range .Rows}}<tr><td>{{.UserName}}</td><td>{{formatDate .WeekStart}}</td>{{range .Hours}}<td>{{hours .}}</td>{{end}}<td>{{hours .Total}}</td><td>{{.Status}}</td></tr>
        {{else}}<tr><td colspan="11">No timesheets in this range.</td></tr>
        {{end}}
        </tbody>
        <tfoot><tr><td colspan="9">Total</td><td>{{hours .TotalHours}}</td><td></td></tr></tfoot>
    </table>
</body>
</html>{{end}}

{{define "appraisal"}}<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Appraisal</title>{{template "style"}}</head>
<body>
    <h1>Performance appraisal: {{.EmployeeName}}</h1>
    <p class="meta">{{.CompanyName}} &middot; {{.Period}} &middot; reviewed by {{.ReviewerName}} &middot; {{.Status}}</p>
    <section><h2>Overall score</h2><p>{{if .Score}}{{score .Score}} / 5{{else}}Not scored{{end}}</p></section>
    <section><h2>Strengths</h2><p class="text">{{.Strengths}}</p></section>
    <section><h2>Areas for improvement</h2><p class="text">{{.Improvements}}</p></section>
    <section><h2>Goals</h2><p class="text">{{.Goals}}</p></section>
    {{if .Comments}}<section><h2>Comments</h2><p class="text">{{.Comments}}</p></section>{{end}}
    <p class="meta">Submitted {{deref .SubmittedAt}} &middot; acknowledged {{deref .AcknowledgedAt}} &middot; generated {{formatDate .GeneratedAt}}</p>
</body>
</html>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s report: %w", name, err)
	}
	return buf.String(), nil
}

func TimesheetsHTML(r TimesheetReport) (string, error) { return render("timesheets", r) }

func AppraisalHTML(r AppraisalReport) (string, error) { return render("appraisal", r) }
