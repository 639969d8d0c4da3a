package app

import (
	"time"

	"stride/api/internal/audit"
	"stride/api/internal/store"
)

type UserView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	Title         string     `json:"title,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	DepartmentID  *string    `json:"departmentId"`
	ManagerID     *string    `json:"managerId"`
	EmailVerified bool       `json:"emailVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
	VerifiedAt    *time.Time `json:"emailVerifiedAt,omitempty"`
}

func userView(u store.User) UserView {
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Status:        u.Status,
		Title:         u.Title,
		Phone:         u.Phone,
		DepartmentID:  u.DepartmentID,
		ManagerID:     u.ManagerID,
		EmailVerified: u.EmailVerifiedAt != nil,
		CreatedAt:     u.CreatedAt,
		VerifiedAt:    u.EmailVerifiedAt,
	}
}

type DepartmentView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	HeadID      *string `json:"headId"`
	MemberCount int     `json:"memberCount"`
}

func departmentView(d store.Department) DepartmentView {
	return DepartmentView{ID: d.ID, Name: d.Name, Description: d.Description, HeadID: d.HeadID, MemberCount: d.MemberCount}
}

type TeamView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	DepartmentID *string `json:"departmentId"`
	LeadID       *string `json:"leadId"`
	MemberCount  int     `json:"memberCount"`
}

func teamView(t store.Team) TeamView {
	return TeamView{
		ID: t.ID, Name: t.Name, Description: t.Description,
		DepartmentID: t.DepartmentID, LeadID: t.LeadID, MemberCount: t.MemberCount,
	}
}

type ProjectView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	OwnerID     *string    `json:"ownerId"`
	TeamID      *string    `json:"teamId"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	TaskCount   int        `json:"taskCount"`
	DoneCount   int        `json:"doneCount"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func projectView(p store.Project) ProjectView {
	return ProjectView{
		ID: p.ID, Name: p.Name, Description: p.Description, Status: p.Status,
		OwnerID: p.OwnerID, TeamID: p.TeamID, StartDate: p.StartDate, EndDate: p.EndDate,
		TaskCount: p.TaskCount, DoneCount: p.DoneCount, UpdatedAt: p.UpdatedAt,
	}
}

type SprintView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func sprintView(s store.Sprint) SprintView {
	return SprintView{
		ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, Goal: s.Goal,
		Status: s.Status, StartDate: s.StartDate, EndDate: s.EndDate,
	}
}

type TaskView struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"projectId"`
	SprintID      *string    `json:"sprintId"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	AssigneeID    *string    `json:"assigneeId"`
	ReporterID    *string    `json:"reporterId"`
	EstimateHours float64    `json:"estimateHours"`
	DueDate       *time.Time `json:"dueDate"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func taskView(t store.Task) TaskView {
	return TaskView{
		ID: t.ID, ProjectID: t.ProjectID, SprintID: t.SprintID, Title: t.Title,
		Description: t.Description, Status: t.Status, Priority: t.Priority,
		AssigneeID: t.AssigneeID, ReporterID: t.ReporterID, EstimateHours: t.EstimateHours,
		DueDate: t.DueDate, UpdatedAt: t.UpdatedAt,
	}
}

type TimesheetView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	WeekStart   string     `json:"weekStart"`
	Hours       [7]float64 `json:"hours"`
	TotalHours  float64    `json:"totalHours"`
	Notes       string     `json:"notes"`
	Status      string     `json:"status"`
	ReviewerID  *string    `json:"reviewerId"`
	ReviewNote  string     `json:"reviewNote,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt"`
}

func timesheetView(t store.Timesheet) TimesheetView {
	return TimesheetView{
		ID: t.ID, UserID: t.UserID, WeekStart: t.WeekStart.Format(dateLayout), Hours: t.Hours,
		TotalHours: t.TotalHours, Notes: t.Notes, Status: t.Status, ReviewerID: t.ReviewerID,
		ReviewNote: t.ReviewNote, SubmittedAt: t.SubmittedAt, ReviewedAt: t.ReviewedAt,
	}
}

type PTOView struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Type       string     `json:"type"`
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate"`
	Days       int        `json:"days"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewerID *string    `json:"reviewerId"`
	ReviewNote string     `json:"reviewNote,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReviewedAt *time.Time `json:"reviewedAt"`
}

func ptoView(p store.PTORequest) PTOView {
	return PTOView{
		ID: p.ID, UserID: p.UserID, Type: p.Type,
		StartDate: p.StartDate.Format(dateLayout), EndDate: p.EndDate.Format(dateLayout),
		Days: p.Days, Reason: p.Reason, Status: p.Status, ReviewerID: p.ReviewerID,
		ReviewNote: p.ReviewNote, CreatedAt: p.CreatedAt, ReviewedAt: p.ReviewedAt,
	}
}

type AppraisalView struct {
	ID             string     `json:"id"`
	EmployeeID     string     `json:"employeeId"`
	ReviewerID     string     `json:"reviewerId"`
	Period         string     `json:"period"`
	Status         string     `json:"status"`
	Score          *int       `json:"score"`
	Strengths      string     `json:"strengths"`
	Improvements   string     `json:"improvements"`
	Goals          string     `json:"goals"`
	Comments       string     `json:"comments"`
	CreatedAt      time.Time  `json:"createdAt"`
	SubmittedAt    *time.Time `json:"submittedAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt"`
}

func appraisalView(a store.Appraisal) AppraisalView {
	return AppraisalView{
		ID: a.ID, EmployeeID: a.EmployeeID, ReviewerID: a.ReviewerID, Period: a.Period,
		Status: a.Status, Score: a.Score, Strengths: a.Strengths, Improvements: a.Improvements,
		Goals: a.Goals, Comments: a.Comments, CreatedAt: a.CreatedAt,
		SubmittedAt: a.SubmittedAt, AcknowledgedAt: a.AcknowledgedAt,
	}
}

// IntegrationView masks credentials; only whether one is set is exposed.
type IntegrationView struct {
	ID            string     `json:"id"`
	Provider      string     `json:"provider"`
	Enabled       bool       `json:"enabled"`
	RepoURL       string     `json:"repoUrl,omitempty"`
	Branch        string     `json:"branch,omitempty"`
	WebhookURL    string     `json:"webhookUrl,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	Events        []string   `json:"events,omitempty"`
	HasToken      bool       `json:"hasToken"`
	HasSecret     bool       `json:"hasSecret"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
	LastStatus    string     `json:"lastStatus,omitempty"`
}

func integrationView(i store.Integration) IntegrationView {
	return IntegrationView{
		ID: i.ID, Provider: i.Provider, Enabled: i.Enabled,
		RepoURL: i.Config.RepoURL, Branch: i.Config.Branch, WebhookURL: i.Config.WebhookURL,
		Channel: i.Config.Channel, Events: i.Config.Events,
		HasToken: i.Config.Token != "", HasSecret: i.Config.Secret != "",
		LastCheckedAt: i.LastCheckedAt, LastStatus: i.LastStatus,
	}
}

func mapViews[T, V any](items []T, convert func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}

type AdminDashboard struct {
	UsersByRole       map[string]int `json:"usersByRole"`
	UsersByStatus     map[string]int `json:"usersByStatus"`
	ProjectsByStatus  map[string]int `json:"projectsByStatus"`
	PendingTimesheets int            `json:"pendingTimesheets"`
	PendingPTO        int            `json:"pendingPto"`
	RecentAudit       []audit.Entry  `json:"recentAudit"`
}

type ManagerDashboard struct {
	Teams             []TeamView    `json:"teams"`
	PendingTimesheets int           `json:"pendingTimesheets"`
	PendingPTO        int           `json:"pendingPto"`
	ActiveProjects    []ProjectView `json:"activeProjects"`
}

type SprintProgress struct {
	Sprint       SprintView     `json:"sprint"`
	TasksByState map[string]int `json:"tasksByStatus"`
}

type LeadDashboard struct {
	ActiveSprints []SprintProgress `json:"activeSprints"`
}

type PTOBalance struct {
	Year      int `json:"year"`
	Allowance int `json:"allowance"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

type EmployeeDashboard struct {
	OpenTasks         []TaskView      `json:"openTasks"`
	RecentTimesheets  []TimesheetView `json:"recentTimesheets"`
	PTO               PTOBalance      `json:"pto"`
	PendingAppraisals []AppraisalView `json:"pendingAppraisals"`
}

type ProjectDetail struct {
	Project ProjectView  `json:"project"`
	Sprints []SprintView `json:"sprints"`
}
