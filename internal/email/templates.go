package email

import (
	"bytes"
	"fmt"
	"html/template"
)

type linkData struct {
	AppName  string
	UserName string
	URL      string
}

var templates = template.Must(template.New("email").Parse(`
{{define "header"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #4f46e5; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #4f46e5; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #4f46e5; }
        .note { background: #f3f4f6; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
{{end}}

{{define "footer"}}
    <div class="footer"><p>You are receiving this email because you have an account with {{.AppName}}.</p></div>
</body>
</html>{{end}}

{{define "verification"}}{{template "header" .}}
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Please verify your email address to finish setting up your account.</p>
    <p><a href="{{.URL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <p>This verification link will expire in 24 hours.</p>
{{template "footer" .}}{{end}}

{{define "password_reset"}}{{template "header" .}}
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. Click the button below to choose a new one:</p>
    <p><a href="{{.URL}}" class="button">Reset Password</a></p>
    <p class="link">{{.URL}}</p>
    <div class="note"><strong>Important:</strong> This reset link will expire in 1 hour.</div>
    <p>If you didn't request a password reset, you can ignore this email.</p>
{{template "footer" .}}{{end}}

{{define "timesheet_reviewed"}}{{template "header" .}}
    <p>Hi {{.UserName}},</p>
    <p>Your timesheet for the week of {{.Week}} ({{printf "%.1f" .TotalHours}} hours) was <strong>{{.Status}}</strong>.</p>
    {{if .Note}}<div class="note">{{.Note}}</div>{{end}}
    <p><a href="{{.URL}}" class="button">View Timesheets</a></p>
{{template "footer" .}}{{end}}

{{define "pto_decided"}}{{template "header" .}}
    <p>Hi {{.UserName}},</p>
    <p>Your {{.Type}} request from {{.Start}} to {{.End}} ({{.Days}} days) was <strong>{{.Status}}</strong>.</p>
    {{if .Note}}<div class="note">{{.Note}}</div>{{end}}
    <p><a href="{{.URL}}" class="button">View Time Off</a></p>
{{template "footer" .}}{{end}}

{{define "timesheet_reminder"}}{{template "header" .}}
    <p>Hi {{.UserName}},</p>
    <p>Your timesheet for the week of {{.Week}} has not been submitted yet.</p>
    <p><a href="{{.URL}}" class="button">Submit Timesheet</a></p>
{{template "footer" .}}{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}
