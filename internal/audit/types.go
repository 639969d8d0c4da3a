// Package audit records an append-only trail of privileged mutations.
package audit

import "time"

type Action string

const (
	UserCreated     Action = "USER_CREATED"
	UserRegistered  Action = "USER_REGISTERED"
	UserUpdated     Action = "USER_UPDATED"
	UserRoleChanged Action = "USER_ROLE_CHANGED"
	UserDeactivated Action = "USER_DEACTIVATED"
	UserActivated   Action = "USER_ACTIVATED"
	UserDeleted     Action = "USER_DELETED"
	PasswordChanged Action = "PASSWORD_CHANGED"
	PasswordReset   Action = "PASSWORD_RESET"
	ProfileUpdated  Action = "PROFILE_UPDATED"
	EmailVerified   Action = "EMAIL_VERIFIED"

	DepartmentCreated Action = "DEPARTMENT_CREATED"
	DepartmentUpdated Action = "DEPARTMENT_UPDATED"
	DepartmentDeleted Action = "DEPARTMENT_DELETED"

	TeamCreated       Action = "TEAM_CREATED"
	TeamUpdated       Action = "TEAM_UPDATED"
	TeamDeleted       Action = "TEAM_DELETED"
	TeamMemberAdded   Action = "TEAM_MEMBER_ADDED"
	TeamMemberRemoved Action = "TEAM_MEMBER_REMOVED"

	ProjectCreated       Action = "PROJECT_CREATED"
	ProjectUpdated       Action = "PROJECT_UPDATED"
	ProjectStatusChanged Action = "PROJECT_STATUS_CHANGED"
	ProjectDeleted       Action = "PROJECT_DELETED"

	SprintCreated   Action = "SPRINT_CREATED"
	SprintUpdated   Action = "SPRINT_UPDATED"
	SprintStarted   Action = "SPRINT_STARTED"
	SprintCompleted Action = "SPRINT_COMPLETED"
	SprintDeleted   Action = "SPRINT_DELETED"

	TaskCreated       Action = "TASK_CREATED"
	TaskUpdated       Action = "TASK_UPDATED"
	TaskDeleted       Action = "TASK_DELETED"
	TaskStatusChanged Action = "TASK_STATUS_CHANGED"

	TimesheetSubmitted Action = "TIMESHEET_SUBMITTED"
	TimesheetApproved  Action = "TIMESHEET_APPROVED"
	TimesheetRejected  Action = "TIMESHEET_REJECTED"

	PTORequested Action = "PTO_REQUESTED"
	PTOApproved  Action = "PTO_APPROVED"
	PTORejected  Action = "PTO_REJECTED"
	PTOCancelled Action = "PTO_CANCELLED"

	AppraisalCreated      Action = "APPRAISAL_CREATED"
	AppraisalSubmitted    Action = "APPRAISAL_SUBMITTED"
	AppraisalAcknowledged Action = "APPRAISAL_ACKNOWLEDGED"

	IntegrationConfigured Action = "INTEGRATION_CONFIGURED"
	IntegrationRemoved    Action = "INTEGRATION_REMOVED"
	IntegrationTested     Action = "INTEGRATION_TESTED"

	SettingsUpdated    Action = "SETTINGS_UPDATED"
	OAuthAccountLinked Action = "OAUTH_ACCOUNT_LINKED"
)

type Entity string

const (
	EntityUser        Entity = "User"
	EntityDepartment  Entity = "Department"
	EntityTeam        Entity = "Team"
	EntityProject     Entity = "Project"
	EntitySprint      Entity = "Sprint"
	EntityTask        Entity = "Task"
	EntityTimesheet   Entity = "Timesheet"
	EntityPTORequest  Entity = "PTORequest"
	EntityAppraisal   Entity = "Appraisal"
	EntityIntegration Entity = "Integration"
	EntitySettings    Entity = "OrganizationSettings"
	EntityAccount     Entity = "Account"
)

// SystemActor is the actor id for entries written outside a user request (ops CLI, worker).
const SystemActor = "system"

// Entry is one immutable audit record.
type Entry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	Action    Action    `json:"action"`
	Entity    Entity    `json:"entity"`
	EntityID  string    `json:"entityId"`
	Detail    string    `json:"detail,omitempty"`
	IP        string    `json:"ip,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter narrows audit listings. Zero values match everything; Limit <= 0 means no limit.
type Filter struct {
	ActorID   string
	Entity    Entity
	Action    Action
	From      time.Time
	To        time.Time
	Limit     int
	Ascending bool
}
