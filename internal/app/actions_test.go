package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/api/internal/audit"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
)

// 2026-03-02 is a Monday.
const testWeek = "2026-03-02"

func TestActionResultStatus(t *testing.T) {
	tests := []struct {
		kind failureKind
		want int
	}{
		{failNone, http.StatusOK},
		{failUnauthorized, http.StatusForbidden},
		{failValidation, http.StatusBadRequest},
		{failNotFound, http.StatusNotFound},
		{failConflict, http.StatusConflict},
		{failUnexpected, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ActionResult{kind: tc.kind}.Status(), tc.kind.outcome())
	}
}

func TestCreateDepartment(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	admin := sessionFor(ms.addUser("admin", rbac.RoleAdmin))
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))

	result := svc.CreateDepartment(ctx, admin, DepartmentInput{Name: "  Engineering  ", Description: "Builds"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Department created successfully", result.Message)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Engineering", ms.departments[result.ID].Name)
	assert.Equal(t, []audit.Action{audit.DepartmentCreated}, ms.auditActions())

	tests := []struct {
		name   string
		actor  bool
		input  DepartmentInput
		status int
		err    string
	}{
		{name: "employee is unauthorized", input: DepartmentInput{Name: "Sales"}, status: http.StatusForbidden, err: "Unauthorized"},
		{name: "blank name", actor: true, input: DepartmentInput{Name: "  "}, status: http.StatusBadRequest, err: "name is required"},
		{name: "duplicate name ignores case", actor: true, input: DepartmentInput{Name: "engineering"}, status: http.StatusConflict, err: "Department name already exists"},
		{name: "unknown head", actor: true, input: DepartmentInput{Name: "Ops", HeadID: ptr("ghost")}, status: http.StatusBadRequest, err: "headId must reference an existing user"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actor := employee
			if tc.actor {
				actor = admin
			}
			result := svc.CreateDepartment(ctx, actor, tc.input)
			assert.False(t, result.Success)
			assert.Equal(t, tc.status, result.Status())
			assert.Equal(t, tc.err, result.Error)
		})
	}

	// Failed actions leave no audit trail.
	assert.Len(t, ms.auditActions(), 1)
	assert.Len(t, ms.departments, 1)
}

func TestActionWithoutSessionIsUnauthorized(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(t, ms)

	result := svc.CreateDepartment(context.Background(), nil, DepartmentInput{Name: "Ops"})
	assert.Equal(t, http.StatusForbidden, result.Status())
	assert.Equal(t, "Unauthorized", result.Error)
}

func TestDeleteDepartment(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	admin := sessionFor(ms.addUser("admin", rbac.RoleAdmin))
	ms.departments["dep_busy"] = store.Department{ID: "dep_busy", Name: "Busy", MemberCount: 2}
	ms.departments["dep_empty"] = store.Department{ID: "dep_empty", Name: "Empty"}

	result := svc.DeleteDepartment(ctx, admin, "dep_busy")
	assert.Equal(t, http.StatusConflict, result.Status())
	assert.Equal(t, "Department still has members", result.Error)

	result = svc.DeleteDepartment(ctx, admin, "missing")
	assert.Equal(t, http.StatusNotFound, result.Status())
	assert.Equal(t, "Department not found", result.Error)

	result = svc.DeleteDepartment(ctx, admin, "dep_empty")
	require.True(t, result.Success, result.Error)
	assert.NotContains(t, ms.departments, "dep_empty")
}

func TestChangeUserRole(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	admin := sessionFor(ms.addUser("admin", rbac.RoleAdmin))
	ms.addUser("emp", rbac.RoleEmployee)

	tests := []struct {
		name   string
		input  ChangeRoleInput
		status int
		err    string
	}{
		{name: "own role", input: ChangeRoleInput{UserID: "admin", Role: "EMPLOYEE"}, status: http.StatusConflict, err: "Cannot change your own role"},
		{name: "same role", input: ChangeRoleInput{UserID: "emp", Role: "employee"}, status: http.StatusConflict, err: "User already has this role"},
		{name: "unknown role", input: ChangeRoleInput{UserID: "emp", Role: "OWNER"}, status: http.StatusBadRequest, err: "role must be one of ADMIN, MANAGER, LEAD, EMPLOYEE"},
		{name: "missing user", input: ChangeRoleInput{UserID: "ghost", Role: "LEAD"}, status: http.StatusNotFound, err: "User not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.ChangeUserRole(ctx, admin, tc.input)
			assert.Equal(t, tc.status, result.Status())
			assert.Equal(t, tc.err, result.Error)
		})
	}

	result := svc.ChangeUserRole(ctx, admin, ChangeRoleInput{UserID: "emp", Role: "lead"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "User role updated successfully", result.Message)
	assert.Equal(t, "LEAD", ms.users["emp"].Role)
	require.Len(t, ms.audit, 1)
	assert.Equal(t, "EMPLOYEE -> LEAD", ms.audit[0].Detail)
	assert.Equal(t, "admin", ms.audit[0].ActorID)
}

func TestSubmitTimesheet(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))

	tests := []struct {
		name   string
		input  TimesheetInput
		status int
		err    string
	}{
		{name: "missing week", input: TimesheetInput{Hours: [7]float64{8}}, status: http.StatusBadRequest, err: "weekStart is required"},
		{name: "not a monday", input: TimesheetInput{WeekStart: "2026-03-03", Hours: [7]float64{8}}, status: http.StatusBadRequest, err: "weekStart must be a Monday"},
		{name: "bad date", input: TimesheetInput{WeekStart: "03/02/2026", Hours: [7]float64{8}}, status: http.StatusBadRequest, err: "weekStart must be a date in YYYY-MM-DD format"},
		{name: "negative hours", input: TimesheetInput{WeekStart: testWeek, Hours: [7]float64{8, -1}}, status: http.StatusBadRequest, err: "hours must not be negative"},
		{name: "empty week", input: TimesheetInput{WeekStart: testWeek}, status: http.StatusBadRequest, err: "hours must include at least one day with hours"},
		{name: "over daily cap", input: TimesheetInput{WeekStart: testWeek, Hours: [7]float64{13}}, status: http.StatusBadRequest, err: "hours must be at most 12 per day"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.SubmitTimesheet(ctx, employee, tc.input)
			assert.Equal(t, tc.status, result.Status())
			assert.Equal(t, tc.err, result.Error)
		})
	}

	result := svc.SubmitTimesheet(ctx, employee, TimesheetInput{WeekStart: testWeek, Hours: [7]float64{8, 8, 8, 8, 6}})
	require.True(t, result.Success, result.Error)
	sheet := ms.timesheets[result.ID]
	assert.Equal(t, store.TimesheetSubmitted, sheet.Status)
	assert.InDelta(t, 38, sheet.TotalHours, 0.001)

	result = svc.SubmitTimesheet(ctx, employee, TimesheetInput{WeekStart: testWeek, Hours: [7]float64{1}})
	assert.Equal(t, http.StatusConflict, result.Status())
	assert.Equal(t, "Timesheet already submitted for this week", result.Error)
}

func TestSubmitTimesheetWithoutApproval(t *testing.T) {
	ms := newMemStore()
	ms.settings.Timesheets.RequireApproval = false
	svc := newTestService(t, ms)
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))

	result := svc.SubmitTimesheet(context.Background(), employee, TimesheetInput{WeekStart: testWeek, Hours: [7]float64{4}})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, store.TimesheetApproved, ms.timesheets[result.ID].Status)
	assert.NotNil(t, ms.timesheets[result.ID].ReviewedAt)
}

func TestReviewTimesheet(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	lead := sessionFor(ms.addUser("lead", rbac.RoleLead))
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))
	week, _ := time.Parse(dateLayout, testWeek)
	ms.timesheets["ts_emp"] = store.Timesheet{ID: "ts_emp", UserID: "emp", WeekStart: week, Status: store.TimesheetSubmitted}
	ms.timesheets["ts_lead"] = store.Timesheet{ID: "ts_lead", UserID: "lead", WeekStart: week, Status: store.TimesheetSubmitted}

	result := svc.ApproveTimesheet(ctx, employee, ReviewInput{ID: "ts_emp"})
	assert.Equal(t, http.StatusForbidden, result.Status())
	assert.Equal(t, "Unauthorized", result.Error)

	result = svc.ApproveTimesheet(ctx, lead, ReviewInput{ID: "ts_lead"})
	assert.Equal(t, http.StatusForbidden, result.Status())
	assert.Equal(t, "You cannot review your own timesheet", result.Error)

	result = svc.RejectTimesheet(ctx, lead, ReviewInput{ID: "ts_emp"})
	assert.Equal(t, http.StatusBadRequest, result.Status())
	assert.Equal(t, "note is required", result.Error)

	result = svc.ApproveTimesheet(ctx, lead, ReviewInput{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, result.Status())
	assert.Equal(t, "Timesheet not found", result.Error)

	result = svc.RejectTimesheet(ctx, lead, ReviewInput{ID: "ts_emp", Note: "Friday is missing"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Timesheet rejected", result.Message)
	assert.Equal(t, store.TimesheetRejected, ms.timesheets["ts_emp"].Status)
	assert.Equal(t, "Friday is missing", ms.timesheets["ts_emp"].ReviewNote)

	result = svc.ApproveTimesheet(ctx, lead, ReviewInput{ID: "ts_emp"})
	assert.Equal(t, http.StatusConflict, result.Status())
	assert.Equal(t, "Timesheet has already been reviewed", result.Error)

	assert.Equal(t, []audit.Action{audit.TimesheetRejected}, ms.auditActions())
}

func TestRequestPTO(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	ms.settings.PTO.AnnualAllowanceDays = 7
	svc := newTestService(t, ms)
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))

	tests := []struct {
		name   string
		input  PTOInput
		status int
		err    string
	}{
		{name: "unknown type", input: PTOInput{Type: "sabbatical", StartDate: "2026-03-02", EndDate: "2026-03-02"}, status: http.StatusBadRequest, err: "type must be one of VACATION, SICK, PERSONAL, UNPAID"},
		{name: "end before start", input: PTOInput{Type: "vacation", StartDate: "2026-03-05", EndDate: "2026-03-02"}, status: http.StatusBadRequest, err: "endDate must not be before startDate"},
		{name: "crosses new year", input: PTOInput{Type: "vacation", StartDate: "2026-12-29", EndDate: "2027-01-09"}, status: http.StatusBadRequest, err: "endDate must be in the same year as startDate"},
		{name: "unbounded span", input: PTOInput{Type: "unpaid", StartDate: "0001-01-01", EndDate: "9999-12-31"}, status: http.StatusBadRequest, err: "endDate must be in the same year as startDate"},
		{name: "weekend only", input: PTOInput{Type: "vacation", StartDate: "2026-03-07", EndDate: "2026-03-08"}, status: http.StatusBadRequest, err: "endDate must cover at least one weekday"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.RequestPTO(ctx, employee, tc.input)
			assert.Equal(t, tc.status, result.Status())
			assert.Equal(t, tc.err, result.Error)
		})
	}

	// Monday to Sunday is five weekdays.
	result := svc.RequestPTO(ctx, employee, PTOInput{Type: "vacation", StartDate: "2026-03-02", EndDate: "2026-03-08"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 5, ms.pto[result.ID].Days)
	assert.Equal(t, store.PTOPending, ms.pto[result.ID].Status)

	// Pending days count against the allowance.
	result = svc.RequestPTO(ctx, employee, PTOInput{Type: "sick", StartDate: "2026-04-06", EndDate: "2026-04-08"})
	assert.Equal(t, http.StatusConflict, result.Status())
	assert.Equal(t, "Insufficient PTO balance", result.Error)

	result = svc.RequestPTO(ctx, employee, PTOInput{Type: "unpaid", StartDate: "2026-04-06", EndDate: "2026-04-10"})
	require.True(t, result.Success, result.Error)
}

func TestReviewAndCancelPTO(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	manager := sessionFor(ms.addUser("mgr", rbac.RoleManager))
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))
	other := sessionFor(ms.addUser("other", rbac.RoleEmployee))
	ms.pto["pto_1"] = store.PTORequest{ID: "pto_1", UserID: "emp", Type: store.PTOVacation, Days: 2, Status: store.PTOPending}
	ms.pto["pto_2"] = store.PTORequest{ID: "pto_2", UserID: "emp", Type: store.PTOVacation, Days: 1, Status: store.PTOPending}

	result := svc.CancelPTO(ctx, other, "pto_1")
	assert.Equal(t, http.StatusForbidden, result.Status())
	assert.Equal(t, "You can only cancel your own PTO requests", result.Error)

	result = svc.ApprovePTO(ctx, employee, ReviewInput{ID: "pto_1"})
	assert.Equal(t, http.StatusForbidden, result.Status())

	// Rejection does not need a note.
	result = svc.RejectPTO(ctx, manager, ReviewInput{ID: "pto_1"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "PTO request rejected", result.Message)

	result = svc.CancelPTO(ctx, employee, "pto_1")
	assert.Equal(t, http.StatusConflict, result.Status())
	assert.Equal(t, "Only pending PTO requests can be cancelled", result.Error)

	result = svc.CancelPTO(ctx, employee, "pto_2")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, store.PTOCancelled, ms.pto["pto_2"].Status)

	result = svc.ApprovePTO(ctx, manager, ReviewInput{ID: "pto_404"})
	assert.Equal(t, http.StatusNotFound, result.Status())
	assert.Equal(t, "PTO request not found", result.Error)
}

func TestReadQueriesReturnNilWhenNotAllowed(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))

	depts, err := svc.ListDepartments(ctx, employee)
	assert.NoError(t, err)
	assert.Nil(t, depts)

	entries, err := svc.ListAuditLog(ctx, employee, AuditQuery{})
	assert.NoError(t, err)
	assert.Nil(t, entries)

	other, err := svc.GetUser(ctx, employee, "someone-else")
	assert.NoError(t, err)
	assert.Nil(t, other)

	self, err := svc.GetUser(ctx, employee, "emp")
	require.NoError(t, err)
	require.NotNil(t, self)
	assert.Equal(t, "emp", self.ID)
}

func TestListTimesheetsScopesEmployeesToThemselves(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	employee := sessionFor(ms.addUser("emp", rbac.RoleEmployee))
	lead := sessionFor(ms.addUser("lead", rbac.RoleLead))
	week, _ := time.Parse(dateLayout, testWeek)
	ms.timesheets["ts_1"] = store.Timesheet{ID: "ts_1", UserID: "emp", WeekStart: week, Status: store.TimesheetSubmitted}
	ms.timesheets["ts_2"] = store.Timesheet{ID: "ts_2", UserID: "lead", WeekStart: week, Status: store.TimesheetSubmitted}

	own, err := svc.ListTimesheets(ctx, employee, TimesheetQuery{UserID: "lead"})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)
	assert.Equal(t, "ts_1", own.Items[0].ID)

	all, err := svc.ListTimesheets(ctx, lead, TimesheetQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	_, err = svc.ListTimesheets(ctx, lead, TimesheetQuery{From: "last week"})
	status, code, _, _ := mapError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestAuditQueryLimit(t *testing.T) {
	filter, err := AuditQuery{}.filter()
	require.NoError(t, err)
	assert.Equal(t, defaultAuditLimit, filter.Limit)

	_, err = AuditQuery{Limit: maxAuditLimit + 1}.filter()
	assert.Error(t, err)

	filter, err = AuditQuery{Action: "user_created", Limit: 5}.filter()
	require.NoError(t, err)
	assert.Equal(t, audit.UserCreated, filter.Action)
	assert.Equal(t, 5, filter.Limit)
}

func TestWeekdays(t *testing.T) {
	monday, _ := time.Parse(dateLayout, "2026-03-02")
	assert.Equal(t, 1, weekdays(monday, monday))
	assert.Equal(t, 5, weekdays(monday, monday.AddDate(0, 0, 6)))
	assert.Equal(t, 0, weekdays(monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6)))
	assert.Equal(t, 10, weekdays(monday, monday.AddDate(0, 0, 13)))
}
