// Package email sends Stride's notification emails over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"stride/api/internal/util"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// BaseURL is the web app origin used to build links.
	BaseURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	now    func() time.Time
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	if config.FromName == "" {
		config.FromName = "Stride"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		now:    time.Now,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Link joins path onto the configured web app origin.
func (s *Service) Link(path string) string {
	return s.config.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("email has no recipients")
	}

	from := fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	boundary := "stride-" + util.NewToken()[:24]

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}

func (s *Service) deliver(to, subject, text, name string, data any) error {
	html, err := render(name, data)
	if err != nil {
		return err
	}
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func (s *Service) SendVerificationEmail(to, userName, token string) error {
	url := s.Link("/verify-email?token=" + token)
	return s.deliver(to, "Verify your Stride account",
		"Verify your email address: "+url,
		"verification", linkData{AppName: s.config.FromName, UserName: userName, URL: url})
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	url := s.Link("/reset-password?token=" + token)
	return s.deliver(to, "Reset your Stride password",
		"Reset your password (link expires in 1 hour): "+url,
		"password_reset", linkData{AppName: s.config.FromName, UserName: userName, URL: url})
}

// TimesheetReview describes a reviewed week for the owner.
type TimesheetReview struct {
	UserName   string
	WeekStart  time.Time
	Status     string
	TotalHours float64
	Note       string
}

func (s *Service) SendTimesheetReviewed(to string, review TimesheetReview) error {
	week := review.WeekStart.Format("Jan 2, 2006")
	subject := fmt.Sprintf("Timesheet for week of %s %s", week, strings.ToLower(review.Status))
	return s.deliver(to, subject,
		subject+". "+review.Note,
		"timesheet_reviewed", struct {
			AppName string
			Week    string
			URL     string
			TimesheetReview
		}{s.config.FromName, week, s.Link("/timesheets"), review})
}

// PTODecision describes a decided PTO request for the requester.
type PTODecision struct {
	UserName  string
	Type      string
	StartDate time.Time
	EndDate   time.Time
	Days      int
	Status    string
	Note      string
}

func (s *Service) SendPTODecision(to string, decision PTODecision) error {
	subject := fmt.Sprintf("Your time-off request was %s", strings.ToLower(decision.Status))
	return s.deliver(to, subject,
		subject+". "+decision.Note,
		"pto_decided", struct {
			AppName string
			Start   string
			End     string
			URL     string
			PTODecision
		}{
			s.config.FromName,
			decision.StartDate.Format("Jan 2, 2006"),
			decision.EndDate.Format("Jan 2, 2006"),
			s.Link("/time-off"),
			decision,
		})
}

func (s *Service) SendTimesheetReminder(to, userName string, weekStart time.Time) error {
	week := weekStart.Format("Jan 2, 2006")
	url := s.Link("/timesheets")
	return s.deliver(to, "Reminder: submit your timesheet",
		"Your timesheet for the week of "+week+" has not been submitted: "+url,
		"timesheet_reminder", struct {
			AppName  string
			UserName string
			Week     string
			URL      string
		}{s.config.FromName, userName, week, url})
}
