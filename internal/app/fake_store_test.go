package app

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/config"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
)

const testSecret = "test-secret"

// memStore keeps the rows the tests touch in memory. Calling a method it does
// not override panics through the nil embedded interface.
type memStore struct {
	dataStore

	mu          sync.Mutex
	pingErr     error
	users       map[string]store.User
	tokens      map[string]store.UserToken
	departments map[string]store.Department
	timesheets  map[string]store.Timesheet
	pto         map[string]store.PTORequest
	teams       map[string]store.Team
	members     map[string]map[string]bool
	projects    map[string]store.Project
	sprints     map[string]store.Sprint
	tasks       map[string]store.Task
	appraisals  map[string]store.Appraisal
	integration map[string]store.Integration
	settings    store.OrganizationSettings
	audit       []audit.Entry

	// completeSprintErr fails CompleteSprint before anything changes.
	completeSprintErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]store.User{},
		tokens:      map[string]store.UserToken{},
		departments: map[string]store.Department{},
		timesheets:  map[string]store.Timesheet{},
		pto:         map[string]store.PTORequest{},
		teams:       map[string]store.Team{},
		members:     map[string]map[string]bool{},
		projects:    map[string]store.Project{},
		sprints:     map[string]store.Sprint{},
		tasks:       map[string]store.Task{},
		appraisals:  map[string]store.Appraisal{},
		integration: map[string]store.Integration{},
		settings:    store.DefaultSettings(),
	}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) addUser(id string, role rbac.Role) store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := store.User{
		ID: id, Name: "User " + id, Email: id + "@example.com",
		Role: string(role), Status: store.UserActive,
	}
	m.users[id] = user
	return user
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrConflict
		}
	}
	user.Email = strings.ToLower(user.Email)
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) UpdateUserRole(_ context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	m.users[id] = user
	return nil
}

func (m *memStore) SetUserStatus(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.Status != from {
		return false, nil
	}
	user.Status = to
	m.users[id] = user
	return true, nil
}

func (m *memStore) UpdateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	user.PasswordHash = hash
	m.users[id] = user
	return nil
}

func (m *memStore) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	now := time.Now()
	user.EmailVerifiedAt = &now
	m.users[id] = user
	return nil
}

func (m *memStore) SaveUserToken(_ context.Context, token store.UserToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memStore) ConsumeUserToken(_ context.Context, hash, kind string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[hash]
	if !ok || token.Kind != kind || now.After(token.ExpiresAt) {
		return "", store.ErrNotFound
	}
	delete(m.tokens, hash)
	return token.UserID, nil
}

func (m *memStore) CreateDepartment(_ context.Context, dept store.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[dept.ID] = dept
	return nil
}

func (m *memStore) UpdateDepartment(_ context.Context, dept store.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.departments[dept.ID]; !ok {
		return store.ErrNotFound
	}
	m.departments[dept.ID] = dept
	return nil
}

func (m *memStore) DeleteDepartment(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.departments[id]; !ok {
		return false, nil
	}
	delete(m.departments, id)
	return true, nil
}

func (m *memStore) GetDepartment(_ context.Context, id string) (store.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dept, ok := m.departments[id]
	if !ok {
		return store.Department{}, store.ErrNotFound
	}
	return dept, nil
}

func (m *memStore) ListDepartments(context.Context) ([]store.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) CreateTimesheet(_ context.Context, sheet store.Timesheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timesheets {
		if t.UserID == sheet.UserID && t.WeekStart.Equal(sheet.WeekStart) {
			return store.ErrConflict
		}
	}
	m.timesheets[sheet.ID] = sheet
	return nil
}

func (m *memStore) GetTimesheet(_ context.Context, id string) (store.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.timesheets[id]
	if !ok {
		return store.Timesheet{}, store.ErrNotFound
	}
	return sheet, nil
}

func (m *memStore) ListTimesheets(_ context.Context, f store.TimesheetFilter) ([]store.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Timesheet, 0)
	for _, t := range m.timesheets {
		switch {
		case f.UserID != "" && t.UserID != f.UserID:
		case f.Status != "" && t.Status != f.Status:
		case !f.From.IsZero() && t.WeekStart.Before(f.From):
		case !f.To.IsZero() && !t.WeekStart.Before(f.To):
		default:
			out = append(out, t)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) ReviewTimesheet(_ context.Context, r store.TimesheetReview) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.timesheets[r.ID]
	if !ok || sheet.Status != store.TimesheetSubmitted {
		return false, nil
	}
	sheet.Status = r.Status
	sheet.ReviewerID = &r.ReviewerID
	sheet.ReviewNote = r.Note
	sheet.ReviewedAt = &r.At
	m.timesheets[r.ID] = sheet
	return true, nil
}

func (m *memStore) CreatePTORequest(_ context.Context, req store.PTORequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pto[req.ID] = req
	return nil
}

func (m *memStore) GetPTORequest(_ context.Context, id string) (store.PTORequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pto[id]
	if !ok {
		return store.PTORequest{}, store.ErrNotFound
	}
	return req, nil
}

func (m *memStore) ReviewPTORequest(_ context.Context, r store.PTOReview) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pto[r.ID]
	if !ok || req.Status != r.From {
		return false, nil
	}
	req.Status = r.To
	req.ReviewNote = r.Note
	if r.ReviewerID != "" {
		req.ReviewerID = &r.ReviewerID
	}
	m.pto[r.ID] = req
	return true, nil
}

func (m *memStore) UsedPTODays(_ context.Context, userID string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := 0
	for _, r := range m.pto {
		if r.UserID != userID || r.Type == store.PTOUnpaid || r.StartDate.Year() != year {
			continue
		}
		if r.Status == store.PTOPending || r.Status == store.PTOApproved {
			used += r.Days
		}
	}
	return used, nil
}

func (m *memStore) CreateTeam(_ context.Context, team store.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[team.ID] = team
	return nil
}

func (m *memStore) UpdateTeam(_ context.Context, team store.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[team.ID]; !ok {
		return store.ErrNotFound
	}
	m.teams[team.ID] = team
	return nil
}

func (m *memStore) DeleteTeam(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[id]; !ok {
		return false, nil
	}
	delete(m.teams, id)
	delete(m.members, id)
	return true, nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (store.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[id]
	if !ok {
		return store.Team{}, store.ErrNotFound
	}
	team.MemberCount = len(m.members[id])
	return team, nil
}

func (m *memStore) AddTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[teamID] == nil {
		m.members[teamID] = map[string]bool{}
	}
	if m.members[teamID][userID] {
		return false, nil
	}
	m.members[teamID][userID] = true
	return true, nil
}

func (m *memStore) RemoveTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members[teamID][userID] {
		return false, nil
	}
	delete(m.members[teamID], userID)
	return true, nil
}

func (m *memStore) CreateProject(_ context.Context, p store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) UpdateProject(_ context.Context, p store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) SetProjectStatus(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	m.projects[id] = p
	return true, nil
}

func (m *memStore) DeleteProject(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return false, nil
	}
	delete(m.projects, id)
	return true, nil
}

func (m *memStore) GetProject(_ context.Context, id string) (store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) CreateSprint(_ context.Context, sprint store.Sprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sprints[sprint.ID] = sprint
	return nil
}

func (m *memStore) UpdateSprint(_ context.Context, sprint store.Sprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sprints[sprint.ID]; !ok {
		return store.ErrNotFound
	}
	m.sprints[sprint.ID] = sprint
	return nil
}

func (m *memStore) SetSprintStatus(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sprint, ok := m.sprints[id]
	if !ok || sprint.Status != from {
		return false, nil
	}
	if to == store.SprintActive {
		for _, other := range m.sprints {
			if other.ProjectID == sprint.ProjectID && other.Status == store.SprintActive {
				return false, store.ErrConflict
			}
		}
	}
	sprint.Status = to
	m.sprints[id] = sprint
	return true, nil
}

func (m *memStore) DeleteSprint(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sprint, ok := m.sprints[id]
	if !ok || sprint.Status == store.SprintActive {
		return false, nil
	}
	delete(m.sprints, id)
	return true, nil
}

func (m *memStore) GetSprint(_ context.Context, id string) (store.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sprint, ok := m.sprints[id]
	if !ok {
		return store.Sprint{}, store.ErrNotFound
	}
	return sprint, nil
}

func (m *memStore) ListSprints(_ context.Context, f store.SprintFilter) ([]store.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Sprint, 0)
	for _, sprint := range m.sprints {
		if f.ProjectID != "" && sprint.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && sprint.Status != f.Status {
			continue
		}
		out = append(out, sprint)
	}
	return out, nil
}

// CompleteSprint applies both changes under one lock, like the single
// statement the Postgres store runs.
func (m *memStore) CompleteSprint(_ context.Context, id string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeSprintErr != nil {
		return 0, false, m.completeSprintErr
	}
	sprint, ok := m.sprints[id]
	if !ok || sprint.Status != store.SprintActive {
		return 0, false, nil
	}
	sprint.Status = store.SprintCompleted
	m.sprints[id] = sprint
	moved := 0
	for taskID, task := range m.tasks {
		if task.SprintID != nil && *task.SprintID == id && task.Status != store.TaskDone {
			task.SprintID = nil
			m.tasks[taskID] = task
			moved++
		}
	}
	return moved, true, nil
}

func (m *memStore) CreateTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *memStore) UpdateTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return store.ErrNotFound
	}
	m.tasks[task.ID] = task
	return nil
}

func (m *memStore) SetTaskStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.Status = status
	m.tasks[id] = task
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

func (m *memStore) GetTask(_ context.Context, id string) (store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (m *memStore) ListTasks(_ context.Context, f store.TaskFilter) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Task, 0)
	for _, task := range m.tasks {
		switch {
		case f.ProjectID != "" && task.ProjectID != f.ProjectID:
		case f.SprintID != "" && (task.SprintID == nil || *task.SprintID != f.SprintID):
		case f.AssigneeID != "" && (task.AssigneeID == nil || *task.AssigneeID != f.AssigneeID):
		case f.Status != "" && task.Status != f.Status:
		case f.OpenOnly && task.Status == store.TaskDone:
		default:
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *memStore) CreateAppraisal(_ context.Context, a store.Appraisal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appraisals[a.ID] = a
	return nil
}

func (m *memStore) GetAppraisal(_ context.Context, id string) (store.Appraisal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appraisals[id]
	if !ok {
		return store.Appraisal{}, store.ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListAppraisals(_ context.Context, f store.AppraisalFilter) ([]store.Appraisal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Appraisal, 0)
	for _, a := range m.appraisals {
		switch {
		case f.EmployeeID != "" && a.EmployeeID != f.EmployeeID:
		case f.ReviewerID != "" && a.ReviewerID != f.ReviewerID:
		case f.Status != "" && a.Status != f.Status:
		default:
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) SubmitAppraisal(_ context.Context, a store.Appraisal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.appraisals[a.ID]
	if !ok || current.Status != store.AppraisalDraft {
		return false, nil
	}
	a.Status = store.AppraisalSubmitted
	m.appraisals[a.ID] = a
	return true, nil
}

func (m *memStore) AcknowledgeAppraisal(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appraisals[id]
	if !ok || a.Status != store.AppraisalSubmitted {
		return false, nil
	}
	a.Status = store.AppraisalAcknowledged
	a.AcknowledgedAt = &at
	m.appraisals[id] = a
	return true, nil
}

func (m *memStore) UpsertIntegration(_ context.Context, i store.Integration) (store.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.integration[i.Provider]; ok {
		i.ID = existing.ID
		i.CreatedAt = existing.CreatedAt
	}
	m.integration[i.Provider] = i
	return i, nil
}

func (m *memStore) GetIntegration(_ context.Context, provider string) (store.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.integration[provider]
	if !ok {
		return store.Integration{}, store.ErrNotFound
	}
	return i, nil
}

func (m *memStore) ListIntegrations(context.Context) ([]store.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Integration, 0, len(m.integration))
	for _, i := range m.integration {
		out = append(out, i)
	}
	return out, nil
}

func (m *memStore) DeleteIntegration(_ context.Context, provider string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integration[provider]; !ok {
		return false, nil
	}
	delete(m.integration, provider)
	return true, nil
}

func (m *memStore) RecordIntegrationCheck(_ context.Context, provider, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.integration[provider]
	if !ok {
		return store.ErrNotFound
	}
	i.LastStatus = status
	i.LastCheckedAt = &at
	m.integration[provider] = i
	return nil
}

func (m *memStore) GetSettings(context.Context) (store.OrganizationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *memStore) SaveSettings(_ context.Context, settings store.OrganizationSettings, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	return nil
}

func (m *memStore) InsertAuditEntry(_ context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memStore) ListAuditEntries(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Entry, 0, len(m.audit))
	for _, e := range m.audit {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) auditEntries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.audit...)
}

func (m *memStore) auditActions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Action, 0, len(m.audit))
	for _, e := range m.audit {
		out = append(out, e.Action)
	}
	return out
}

func newTestService(t *testing.T, ms *memStore) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(Deps{
		Config: &config.Config{JWTSecret: testSecret, BcryptCost: 4},
		Store:  ms,
		Logger: logger,
	})
}

func sessionFor(user store.User) *auth.Session {
	return &auth.Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      rbac.Normalize(user.Role),
		JTI:       "jti-" + user.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func tokenFor(t *testing.T, user store.User) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), *sessionFor(user), time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
