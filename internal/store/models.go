package store

import "time"

const (
	UserActive   = "ACTIVE"
	UserInactive = "INACTIVE"
)

type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	Role            string
	Status          string
	Title           string
	Phone           string
	DepartmentID    *string
	ManagerID       *string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type UserFilter struct {
	Role         string
	Status       string
	DepartmentID string
	TeamID       string
	Limit        int
}

type UserStats struct {
	ByRole   map[string]int
	ByStatus map[string]int
}

const (
	TokenVerifyEmail   = "VERIFY_EMAIL"
	TokenResetPassword = "RESET_PASSWORD"
)

// UserToken is a single-use emailed token. Only its hash is stored.
type UserToken struct {
	TokenHash string
	UserID    string
	Kind      string
	ExpiresAt time.Time
}

// Account links an external identity provider subject to a user.
type Account struct {
	ID        string
	UserID    string
	Provider  string
	Subject   string
	Email     string
	CreatedAt time.Time
}

type Department struct {
	ID          string
	Name        string
	Description string
	HeadID      *string
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Team struct {
	ID           string
	Name         string
	Description  string
	DepartmentID *string
	LeadID       *string
	MemberCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TeamFilter struct {
	MemberID string
}

const (
	ProjectPlanning  = "PLANNING"
	ProjectActive    = "ACTIVE"
	ProjectOnHold    = "ON_HOLD"
	ProjectCompleted = "COMPLETED"
	ProjectCancelled = "CANCELLED"
)

type Project struct {
	ID          string
	Name        string
	Description string
	Status      string
	OwnerID     *string
	TeamID      *string
	StartDate   *time.Time
	EndDate     *time.Time
	TaskCount   int
	DoneCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ProjectFilter struct {
	Status string
	TeamID string
}

const (
	SprintPlanned   = "PLANNED"
	SprintActive    = "ACTIVE"
	SprintCompleted = "COMPLETED"
)

type Sprint struct {
	ID        string
	ProjectID string
	Name      string
	Goal      string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SprintFilter struct {
	ProjectID string
	Status    string
}

const (
	TaskTodo       = "TODO"
	TaskInProgress = "IN_PROGRESS"
	TaskInReview   = "IN_REVIEW"
	TaskDone       = "DONE"
)

type Task struct {
	ID            string
	ProjectID     string
	SprintID      *string
	Title         string
	Description   string
	Status        string
	Priority      string
	AssigneeID    *string
	ReporterID    *string
	EstimateHours float64
	DueDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskFilter narrows task listings. VisibleTo limits results to tasks assigned
// to that user or unassigned.
type TaskFilter struct {
	ProjectID  string
	SprintID   string
	AssigneeID string
	Status     string
	OpenOnly   bool
	VisibleTo  string
	Limit      int
}

const (
	TimesheetSubmitted = "SUBMITTED"
	TimesheetApproved  = "APPROVED"
	TimesheetRejected  = "REJECTED"
)

// Timesheet covers one Monday-to-Sunday week; Hours[0] is Monday.
type Timesheet struct {
	ID          string
	UserID      string
	WeekStart   time.Time
	Hours       [7]float64
	TotalHours  float64
	Notes       string
	Status      string
	ReviewerID  *string
	ReviewNote  string
	SubmittedAt time.Time
	ReviewedAt  *time.Time
}

type TimesheetFilter struct {
	UserID string
	Status string
	From   time.Time
	To     time.Time
	Limit  int
}

// TimesheetReview is a conditional transition out of SUBMITTED.
type TimesheetReview struct {
	ID         string
	Status     string
	ReviewerID string
	Note       string
	At         time.Time
}

const (
	PTOPending   = "PENDING"
	PTOApproved  = "APPROVED"
	PTORejected  = "REJECTED"
	PTOCancelled = "CANCELLED"

	PTOVacation = "VACATION"
	PTOSick     = "SICK"
	PTOPersonal = "PERSONAL"
	PTOUnpaid   = "UNPAID"
)

type PTORequest struct {
	ID         string
	UserID     string
	Type       string
	StartDate  time.Time
	EndDate    time.Time
	Days       int
	Reason     string
	Status     string
	ReviewerID *string
	ReviewNote string
	CreatedAt  time.Time
	ReviewedAt *time.Time
}

type PTOFilter struct {
	UserID string
	Status string
	Limit  int
}

// PTOReview moves a request from one status to another only if it is still in From.
type PTOReview struct {
	ID         string
	From       string
	To         string
	ReviewerID string
	Note       string
	At         time.Time
}

const (
	AppraisalDraft        = "DRAFT"
	AppraisalSubmitted    = "SUBMITTED"
	AppraisalAcknowledged = "ACKNOWLEDGED"
)

type Appraisal struct {
	ID             string
	EmployeeID     string
	ReviewerID     string
	Period         string
	Status         string
	Score          *int
	Strengths      string
	Improvements   string
	Goals          string
	Comments       string
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	AcknowledgedAt *time.Time
}

type AppraisalFilter struct {
	EmployeeID string
	ReviewerID string
	Status     string
}

const (
	ProviderGit     = "GIT"
	ProviderSlack   = "SLACK"
	ProviderWebhook = "WEBHOOK"
)

// IntegrationConfig is the typed JSONB payload for every provider. Unused fields stay empty.
type IntegrationConfig struct {
	RepoURL    string   `json:"repoUrl,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Token      string   `json:"token,omitempty"`
	WebhookURL string   `json:"webhookUrl,omitempty"`
	Channel    string   `json:"channel,omitempty"`
	Secret     string   `json:"secret,omitempty"`
	Events     []string `json:"events,omitempty"`
}

type Integration struct {
	ID            string
	Provider      string
	Enabled       bool
	Config        IntegrationConfig
	LastCheckedAt *time.Time
	LastStatus    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
