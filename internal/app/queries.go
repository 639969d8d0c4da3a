package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/cache"
	"stride/api/internal/rbac"
	"stride/api/internal/search"
	"stride/api/internal/store"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
	recentAuditLimit  = 10
	recentTimesheets  = 4
	openTaskLimit     = 20
)

// Page is the envelope for list views.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func page[T, V any](items []T, convert func(T) V) *Page[V] {
	views := mapViews(items, convert)
	return &Page[V]{Items: views, Total: len(views)}
}

type UserQuery struct {
	Role         string `json:"role,omitempty"`
	Status       string `json:"status,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
}

type ProjectQuery struct {
	Status string `json:"status,omitempty"`
	TeamID string `json:"teamId,omitempty"`
}

type SprintQuery struct {
	ProjectID string `json:"projectId,omitempty"`
	Status    string `json:"status,omitempty"`
}

type TaskQuery struct {
	ProjectID  string `json:"projectId,omitempty"`
	SprintID   string `json:"sprintId,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`
	Status     string `json:"status,omitempty"`
}

type TimesheetQuery struct {
	UserID string `json:"userId,omitempty"`
	Status string `json:"status,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

type PTOQuery struct {
	UserID string `json:"userId,omitempty"`
	Status string `json:"status,omitempty"`
}

type AppraisalQuery struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Status     string `json:"status,omitempty"`
}

type AuditQuery struct {
	ActorID string `json:"actorId,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Action  string `json:"action,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func queryError(field, message string) error {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", field+" "+message, map[string]string{"field": field})
}

// parseInstant accepts RFC 3339 timestamps or YYYY-MM-DD dates.
func parseInstant(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, queryError(field, "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return t, nil
}

// =============================================================================
// Dashboards
// =============================================================================

func (s *Service) AdminDashboard(ctx context.Context, actor *auth.Session) (*AdminDashboard, error) {
	if !allowed(actor, rbac.PermDashboardAdmin) {
		return nil, nil
	}
	tags := []string{cache.TagUsers, cache.TagProjects, cache.TagTimesheets, cache.TagPTO, cache.TagAudit}
	return cached(ctx, s, actor, "admin_dashboard", nil, tags, func(ctx context.Context) (*AdminDashboard, error) {
		users, err := s.store.UserStats(ctx)
		if err != nil {
			return nil, err
		}
		projects, err := s.store.ProjectStats(ctx)
		if err != nil {
			return nil, err
		}
		timesheets, err := s.store.CountTimesheets(ctx, store.TimesheetSubmitted)
		if err != nil {
			return nil, err
		}
		pto, err := s.store.CountPTORequests(ctx, store.PTOPending)
		if err != nil {
			return nil, err
		}
		recent, err := s.store.ListAuditEntries(ctx, audit.Filter{Limit: recentAuditLimit})
		if err != nil {
			return nil, err
		}
		return &AdminDashboard{
			UsersByRole:       users.ByRole,
			UsersByStatus:     users.ByStatus,
			ProjectsByStatus:  projects,
			PendingTimesheets: timesheets,
			PendingPTO:        pto,
			RecentAudit:       recent,
		}, nil
	})
}

func (s *Service) ManagerDashboard(ctx context.Context, actor *auth.Session) (*ManagerDashboard, error) {
	if !allowed(actor, rbac.PermDashboardManager) {
		return nil, nil
	}
	tags := []string{cache.TagTeams, cache.TagProjects, cache.TagTimesheets, cache.TagPTO}
	return cached(ctx, s, actor, "manager_dashboard", nil, tags, func(ctx context.Context) (*ManagerDashboard, error) {
		teams, err := s.store.ListTeams(ctx, store.TeamFilter{})
		if err != nil {
			return nil, err
		}
		timesheets, err := s.store.CountTimesheets(ctx, store.TimesheetSubmitted)
		if err != nil {
			return nil, err
		}
		pto, err := s.store.CountPTORequests(ctx, store.PTOPending)
		if err != nil {
			return nil, err
		}
		projects, err := s.store.ListProjects(ctx, store.ProjectFilter{Status: store.ProjectActive})
		if err != nil {
			return nil, err
		}
		return &ManagerDashboard{
			Teams:             mapViews(teams, teamView),
			PendingTimesheets: timesheets,
			PendingPTO:        pto,
			ActiveProjects:    mapViews(projects, projectView),
		}, nil
	})
}

func (s *Service) LeadDashboard(ctx context.Context, actor *auth.Session) (*LeadDashboard, error) {
	if !allowed(actor, rbac.PermDashboardLead) {
		return nil, nil
	}
	tags := []string{cache.TagSprints, cache.TagTasks}
	return cached(ctx, s, actor, "lead_dashboard", nil, tags, func(ctx context.Context) (*LeadDashboard, error) {
		sprints, err := s.store.ListSprints(ctx, store.SprintFilter{Status: store.SprintActive})
		if err != nil {
			return nil, err
		}
		out := &LeadDashboard{ActiveSprints: make([]SprintProgress, 0, len(sprints))}
		for _, sprint := range sprints {
			counts, err := s.store.TaskStatusCounts(ctx, store.TaskFilter{SprintID: sprint.ID})
			if err != nil {
				return nil, err
			}
			for _, status := range taskStatuses {
				if _, ok := counts[status]; !ok {
					counts[status] = 0
				}
			}
			out.ActiveSprints = append(out.ActiveSprints, SprintProgress{Sprint: sprintView(sprint), TasksByState: counts})
		}
		return out, nil
	})
}

func (s *Service) EmployeeDashboard(ctx context.Context, actor *auth.Session) (*EmployeeDashboard, error) {
	if !allowed(actor, rbac.PermDashboardEmployee) {
		return nil, nil
	}
	tags := []string{cache.TagTasks, cache.TagTimesheets, cache.TagPTO, cache.TagAppraisals, cache.TagSettings}
	return cached(ctx, s, actor, "employee_dashboard", nil, tags, func(ctx context.Context) (*EmployeeDashboard, error) {
		tasks, err := s.store.ListTasks(ctx, store.TaskFilter{AssigneeID: actor.UserID, OpenOnly: true, Limit: openTaskLimit})
		if err != nil {
			return nil, err
		}
		sheets, err := s.store.ListTimesheets(ctx, store.TimesheetFilter{UserID: actor.UserID, Limit: recentTimesheets})
		if err != nil {
			return nil, err
		}
		settings, err := s.settings(ctx)
		if err != nil {
			return nil, err
		}
		balance, err := s.ptoBalance(ctx, actor.UserID, s.now().Year(), settings)
		if err != nil {
			return nil, err
		}
		appraisals, err := s.store.ListAppraisals(ctx, store.AppraisalFilter{EmployeeID: actor.UserID, Status: store.AppraisalSubmitted})
		if err != nil {
			return nil, err
		}
		return &EmployeeDashboard{
			OpenTasks:         mapViews(tasks, taskView),
			RecentTimesheets:  mapViews(sheets, timesheetView),
			PTO:               balance,
			PendingAppraisals: mapViews(appraisals, appraisalView),
		}, nil
	})
}

// =============================================================================
// People and organisation
// =============================================================================

func (s *Service) ListUsers(ctx context.Context, actor *auth.Session, q UserQuery) (*Page[UserView], error) {
	if !allowed(actor, rbac.PermUserList) {
		return nil, nil
	}
	return cached(ctx, s, actor, "users", q, []string{cache.TagUsers, cache.TagTeams}, func(ctx context.Context) (*Page[UserView], error) {
		users, err := s.store.ListUsers(ctx, store.UserFilter{
			Role: strings.ToUpper(q.Role), Status: strings.ToUpper(q.Status),
			DepartmentID: q.DepartmentID, TeamID: q.TeamID,
		})
		if err != nil {
			return nil, err
		}
		return page(users, userView), nil
	})
}

// GetUser is available to user.list holders and to the user themself.
func (s *Service) GetUser(ctx context.Context, actor *auth.Session, id string) (*UserView, error) {
	if actor == nil || (actor.UserID != id && !allowed(actor, rbac.PermUserList)) {
		return nil, nil
	}
	return cached(ctx, s, actor, "user", id, []string{cache.TagUsers}, func(ctx context.Context) (*UserView, error) {
		user, err := s.store.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		view := userView(user)
		return &view, nil
	})
}

func (s *Service) ListDepartments(ctx context.Context, actor *auth.Session) (*Page[DepartmentView], error) {
	if !allowed(actor, rbac.PermDepartmentList) {
		return nil, nil
	}
	return cached(ctx, s, actor, "departments", nil, []string{cache.TagDepartments, cache.TagUsers}, func(ctx context.Context) (*Page[DepartmentView], error) {
		depts, err := s.store.ListDepartments(ctx)
		if err != nil {
			return nil, err
		}
		return page(depts, departmentView), nil
	})
}

// ListTeams shows every team to roles that manage membership and only their own
// teams to everyone else.
func (s *Service) ListTeams(ctx context.Context, actor *auth.Session) (*Page[TeamView], error) {
	if !allowed(actor, rbac.PermTeamList) {
		return nil, nil
	}
	filter := store.TeamFilter{}
	if !allowed(actor, rbac.PermTeamManageMembers) {
		filter.MemberID = actor.UserID
	}
	return cached(ctx, s, actor, "teams", filter, []string{cache.TagTeams}, func(ctx context.Context) (*Page[TeamView], error) {
		teams, err := s.store.ListTeams(ctx, filter)
		if err != nil {
			return nil, err
		}
		return page(teams, teamView), nil
	})
}

// =============================================================================
// Projects
// =============================================================================

func (s *Service) ListProjects(ctx context.Context, actor *auth.Session, q ProjectQuery) (*Page[ProjectView], error) {
	if !allowed(actor, rbac.PermProjectList) {
		return nil, nil
	}
	return cached(ctx, s, actor, "projects", q, []string{cache.TagProjects, cache.TagTasks}, func(ctx context.Context) (*Page[ProjectView], error) {
		projects, err := s.store.ListProjects(ctx, store.ProjectFilter{Status: strings.ToUpper(q.Status), TeamID: q.TeamID})
		if err != nil {
			return nil, err
		}
		return page(projects, projectView), nil
	})
}

func (s *Service) GetProject(ctx context.Context, actor *auth.Session, id string) (*ProjectDetail, error) {
	if !allowed(actor, rbac.PermProjectList) {
		return nil, nil
	}
	return cached(ctx, s, actor, "project", id, []string{cache.TagProjects, cache.TagSprints, cache.TagTasks}, func(ctx context.Context) (*ProjectDetail, error) {
		project, err := s.store.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		sprints, err := s.store.ListSprints(ctx, store.SprintFilter{ProjectID: id})
		if err != nil {
			return nil, err
		}
		return &ProjectDetail{Project: projectView(project), Sprints: mapViews(sprints, sprintView)}, nil
	})
}

func (s *Service) ListSprints(ctx context.Context, actor *auth.Session, q SprintQuery) (*Page[SprintView], error) {
	if !allowed(actor, rbac.PermSprintList) {
		return nil, nil
	}
	return cached(ctx, s, actor, "sprints", q, []string{cache.TagSprints}, func(ctx context.Context) (*Page[SprintView], error) {
		sprints, err := s.store.ListSprints(ctx, store.SprintFilter{ProjectID: q.ProjectID, Status: strings.ToUpper(q.Status)})
		if err != nil {
			return nil, err
		}
		return page(sprints, sprintView), nil
	})
}

// ListTasks limits employees to tasks assigned to them or unassigned.
func (s *Service) ListTasks(ctx context.Context, actor *auth.Session, q TaskQuery) (*Page[TaskView], error) {
	if !allowed(actor, rbac.PermTaskList) {
		return nil, nil
	}
	filter := store.TaskFilter{
		ProjectID: q.ProjectID, SprintID: q.SprintID, AssigneeID: q.AssigneeID, Status: strings.ToUpper(q.Status),
	}
	if actor.Role == rbac.RoleEmployee {
		filter.VisibleTo = actor.UserID
	}
	return cached(ctx, s, actor, "tasks", filter, []string{cache.TagTasks}, func(ctx context.Context) (*Page[TaskView], error) {
		tasks, err := s.store.ListTasks(ctx, filter)
		if err != nil {
			return nil, err
		}
		return page(tasks, taskView), nil
	})
}

// =============================================================================
// Time
// =============================================================================

// ListTimesheets returns every timesheet to reviewers and only the actor's own
// to everyone else.
func (s *Service) ListTimesheets(ctx context.Context, actor *auth.Session, q TimesheetQuery) (*Page[TimesheetView], error) {
	if !allowed(actor, rbac.PermTimesheetSubmit) {
		return nil, nil
	}
	from, err := parseInstant("from", q.From)
	if err != nil {
		return nil, err
	}
	to, err := parseInstant("to", q.To)
	if err != nil {
		return nil, err
	}
	filter := store.TimesheetFilter{UserID: q.UserID, Status: strings.ToUpper(q.Status), From: from, To: to}
	if !allowed(actor, rbac.PermTimesheetViewAll) {
		filter.UserID = actor.UserID
	}
	return cached(ctx, s, actor, "timesheets", filter, []string{cache.TagTimesheets}, func(ctx context.Context) (*Page[TimesheetView], error) {
		sheets, err := s.store.ListTimesheets(ctx, filter)
		if err != nil {
			return nil, err
		}
		return page(sheets, timesheetView), nil
	})
}

func (s *Service) ListPTORequests(ctx context.Context, actor *auth.Session, q PTOQuery) (*Page[PTOView], error) {
	if !allowed(actor, rbac.PermPTORequest) {
		return nil, nil
	}
	filter := store.PTOFilter{UserID: q.UserID, Status: strings.ToUpper(q.Status)}
	if !allowed(actor, rbac.PermPTOViewAll) {
		filter.UserID = actor.UserID
	}
	return cached(ctx, s, actor, "pto", filter, []string{cache.TagPTO}, func(ctx context.Context) (*Page[PTOView], error) {
		reqs, err := s.store.ListPTORequests(ctx, filter)
		if err != nil {
			return nil, err
		}
		return page(reqs, ptoView), nil
	})
}

// PTOBalance reports the actor's allowance for the current year.
func (s *Service) PTOBalance(ctx context.Context, actor *auth.Session) (*PTOBalance, error) {
	if !allowed(actor, rbac.PermPTORequest) {
		return nil, nil
	}
	return cached(ctx, s, actor, "pto_balance", nil, []string{cache.TagPTO, cache.TagSettings}, func(ctx context.Context) (*PTOBalance, error) {
		settings, err := s.settings(ctx)
		if err != nil {
			return nil, err
		}
		balance, err := s.ptoBalance(ctx, actor.UserID, s.now().Year(), settings)
		if err != nil {
			return nil, err
		}
		return &balance, nil
	})
}

// ListAppraisals: view_all holders see everything, leads see the appraisals
// they review, everyone else their own.
func (s *Service) ListAppraisals(ctx context.Context, actor *auth.Session, q AppraisalQuery) (*Page[AppraisalView], error) {
	if !allowed(actor, rbac.PermAppraisalAcknowledge) {
		return nil, nil
	}
	filter := store.AppraisalFilter{EmployeeID: q.EmployeeID, Status: strings.ToUpper(q.Status)}
	switch {
	case allowed(actor, rbac.PermAppraisalViewAll):
	case actor.Role == rbac.RoleLead:
		filter.ReviewerID = actor.UserID
	default:
		filter.EmployeeID = actor.UserID
	}
	return cached(ctx, s, actor, "appraisals", filter, []string{cache.TagAppraisals}, func(ctx context.Context) (*Page[AppraisalView], error) {
		appraisals, err := s.store.ListAppraisals(ctx, filter)
		if err != nil {
			return nil, err
		}
		return page(appraisals, appraisalView), nil
	})
}

// =============================================================================
// Administration
// =============================================================================

func (s *Service) ListIntegrations(ctx context.Context, actor *auth.Session) (*Page[IntegrationView], error) {
	if !allowed(actor, rbac.PermIntegrationManage) {
		return nil, nil
	}
	return cached(ctx, s, actor, "integrations", nil, []string{cache.TagIntegrations}, func(ctx context.Context) (*Page[IntegrationView], error) {
		integrations, err := s.store.ListIntegrations(ctx)
		if err != nil {
			return nil, err
		}
		return page(integrations, integrationView), nil
	})
}

func (s *Service) GetSettings(ctx context.Context, actor *auth.Session) (*store.OrganizationSettings, error) {
	if !allowed(actor, rbac.PermSettingsView) {
		return nil, nil
	}
	return cached(ctx, s, actor, "settings", nil, []string{cache.TagSettings}, func(ctx context.Context) (*store.OrganizationSettings, error) {
		settings, err := s.settings(ctx)
		if err != nil {
			return nil, err
		}
		return &settings, nil
	})
}

// PublicSettings is readable by any signed-in user.
func (s *Service) PublicSettings(ctx context.Context, actor *auth.Session) (*store.PublicSettings, error) {
	if actor == nil {
		return nil, nil
	}
	return cached(ctx, s, actor, "public_settings", nil, []string{cache.TagSettings}, func(ctx context.Context) (*store.PublicSettings, error) {
		settings, err := s.settings(ctx)
		if err != nil {
			return nil, err
		}
		public := settings.Public()
		public.AIEnabled = public.AIEnabled && s.ai != nil
		return &public, nil
	})
}

func (q AuditQuery) filter() (audit.Filter, error) {
	limit := q.Limit
	switch {
	case limit == 0:
		limit = defaultAuditLimit
	case limit < 1 || limit > maxAuditLimit:
		return audit.Filter{}, queryError("limit", "must be between 1 and 500")
	}
	from, err := parseInstant("from", q.From)
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := parseInstant("to", q.To)
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		ActorID: q.ActorID,
		Entity:  audit.Entity(q.Entity),
		Action:  audit.Action(strings.ToUpper(q.Action)),
		From:    from,
		To:      to,
		Limit:   limit,
	}, nil
}

func (s *Service) ListAuditLog(ctx context.Context, actor *auth.Session, q AuditQuery) (*Page[audit.Entry], error) {
	if !allowed(actor, rbac.PermAuditView) {
		return nil, nil
	}
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, actor, "audit", filter, []string{cache.TagAudit}, func(ctx context.Context) (*Page[audit.Entry], error) {
		entries, err := s.store.ListAuditEntries(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &Page[audit.Entry]{Items: entries, Total: len(entries)}, nil
	})
}

// Search covers projects and tasks for everyone and users for user.list holders.
// Results are not cached; the index is the cache.
func (s *Service) Search(ctx context.Context, actor *auth.Session, text string, limit int) (*search.Response, error) {
	if actor == nil {
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, queryError("q", "is required")
	}
	q := search.Query{Text: text, Limit: limit, IncludeUsers: allowed(actor, rbac.PermUserList)}
	if actor.Role == rbac.RoleEmployee {
		q.VisibleTo = actor.UserID
	}
	resp := s.search.Search(ctx, q)
	return &resp, nil
}
