// Package rbac holds the static permission table. Every capability the API
// exposes is a row here; handlers and actions never compare role strings.
package rbac

import (
	"sort"
	"strings"
)

type Role string
type Permission string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleLead     Role = "LEAD"
	RoleEmployee Role = "EMPLOYEE"
)

const (
	PermUserCreate     Permission = "user.create"
	PermUserUpdate     Permission = "user.update"
	PermUserChangeRole Permission = "user.change_role"
	PermUserDeactivate Permission = "user.deactivate"
	PermUserActivate   Permission = "user.activate"
	PermUserDelete     Permission = "user.delete"
	PermUserList       Permission = "user.list"
	PermProfileUpdate  Permission = "profile.update"

	PermDepartmentCreate Permission = "department.create"
	PermDepartmentUpdate Permission = "department.update"
	PermDepartmentDelete Permission = "department.delete"
	PermDepartmentList   Permission = "department.list"

	PermTeamCreate        Permission = "team.create"
	PermTeamUpdate        Permission = "team.update"
	PermTeamDelete        Permission = "team.delete"
	PermTeamManageMembers Permission = "team.manage_members"
	PermTeamList          Permission = "team.list"

	PermProjectCreate Permission = "project.create"
	PermProjectUpdate Permission = "project.update"
	PermProjectDelete Permission = "project.delete"
	PermProjectList   Permission = "project.list"

	PermSprintCreate     Permission = "sprint.create"
	PermSprintUpdate     Permission = "sprint.update"
	PermSprintTransition Permission = "sprint.transition"
	PermSprintDelete     Permission = "sprint.delete"
	PermSprintList       Permission = "sprint.list"

	PermTaskCreate       Permission = "task.create"
	PermTaskUpdate       Permission = "task.update"
	PermTaskDelete       Permission = "task.delete"
	PermTaskUpdateStatus Permission = "task.update_status"
	PermTaskList         Permission = "task.list"

	PermTimesheetSubmit  Permission = "timesheet.submit"
	PermTimesheetReview  Permission = "timesheet.review"
	PermTimesheetViewAll Permission = "timesheet.view_all"

	PermPTORequest Permission = "pto.request"
	PermPTOReview  Permission = "pto.review"
	PermPTOViewAll Permission = "pto.view_all"

	PermAppraisalCreate      Permission = "appraisal.create"
	PermAppraisalSubmit      Permission = "appraisal.submit"
	PermAppraisalAcknowledge Permission = "appraisal.acknowledge"
	PermAppraisalViewAll     Permission = "appraisal.view_all"

	PermIntegrationManage Permission = "integration.manage"
	PermSettingsView      Permission = "settings.view"
	PermSettingsUpdate    Permission = "settings.update"
	PermAuditView         Permission = "audit.view"
	PermAuditExport       Permission = "audit.export"
	PermAIUse             Permission = "ai.use"
	PermReportExport      Permission = "report.export"

	PermDashboardAdmin    Permission = "dashboard.admin"
	PermDashboardManager  Permission = "dashboard.manager"
	PermDashboardLead     Permission = "dashboard.lead"
	PermDashboardEmployee Permission = "dashboard.employee"
)

var (
	adminOnly = roleSet(RoleAdmin)
	managerUp = roleSet(RoleAdmin, RoleManager)
	leadUp    = roleSet(RoleAdmin, RoleManager, RoleLead)
	everyone  = roleSet(RoleAdmin, RoleManager, RoleLead, RoleEmployee)
	allRoles  = []Role{RoleAdmin, RoleManager, RoleLead, RoleEmployee}
)

var table = map[Permission]map[Role]struct{}{
	PermUserCreate:     adminOnly,
	PermUserUpdate:     adminOnly,
	PermUserChangeRole: adminOnly,
	PermUserDeactivate: adminOnly,
	PermUserActivate:   adminOnly,
	PermUserDelete:     adminOnly,
	PermUserList:       leadUp,
	PermProfileUpdate:  everyone,

	PermDepartmentCreate: adminOnly,
	PermDepartmentUpdate: adminOnly,
	PermDepartmentDelete: adminOnly,
	PermDepartmentList:   managerUp,

	PermTeamCreate:        managerUp,
	PermTeamUpdate:        managerUp,
	PermTeamDelete:        adminOnly,
	PermTeamManageMembers: leadUp,
	PermTeamList:          everyone,

	PermProjectCreate: managerUp,
	PermProjectUpdate: leadUp,
	PermProjectDelete: adminOnly,
	PermProjectList:   everyone,

	PermSprintCreate:     leadUp,
	PermSprintUpdate:     leadUp,
	PermSprintTransition: leadUp,
	PermSprintDelete:     managerUp,
	PermSprintList:       everyone,

	PermTaskCreate:       leadUp,
	PermTaskUpdate:       leadUp,
	PermTaskDelete:       leadUp,
	PermTaskUpdateStatus: everyone,
	PermTaskList:         everyone,

	PermTimesheetSubmit:  everyone,
	PermTimesheetReview:  leadUp,
	PermTimesheetViewAll: leadUp,

	PermPTORequest: everyone,
	PermPTOReview:  managerUp,
	PermPTOViewAll: managerUp,

	PermAppraisalCreate:      leadUp,
	PermAppraisalSubmit:      leadUp,
	PermAppraisalAcknowledge: everyone,
	PermAppraisalViewAll:     managerUp,

	PermIntegrationManage: adminOnly,
	PermSettingsView:      adminOnly,
	PermSettingsUpdate:    adminOnly,
	PermAuditView:         adminOnly,
	PermAuditExport:       adminOnly,
	PermAIUse:             adminOnly,
	PermReportExport:      managerUp,

	PermDashboardAdmin:    adminOnly,
	PermDashboardManager:  managerUp,
	PermDashboardLead:     leadUp,
	PermDashboardEmployee: everyone,
}

func roleSet(roles ...Role) map[Role]struct{} {
	set := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// IsAllowed reports whether role holds perm. Unknown permissions and unknown
// roles are denied.
func IsAllowed(role Role, perm Permission) bool {
	roles, ok := table[perm]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// Roles returns the roles granted perm, in rank order.
func Roles(perm Permission) []Role {
	roles, ok := table[perm]
	if !ok {
		return nil
	}
	out := make([]Role, 0, len(roles))
	for _, role := range allRoles {
		if _, ok := roles[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

// Permissions lists every permission in the table, sorted.
func Permissions() []Permission {
	out := make([]Permission, 0, len(table))
	for perm := range table {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllRoles returns the roles from most to least privileged.
func AllRoles() []Role {
	return append([]Role(nil), allRoles...)
}

func ParseRole(value string) (Role, bool) {
	switch role := Role(strings.ToUpper(strings.TrimSpace(value))); role {
	case RoleAdmin, RoleManager, RoleLead, RoleEmployee:
		return role, true
	default:
		return "", false
	}
}

func Normalize(value string) Role {
	if role, ok := ParseRole(value); ok {
		return role
	}
	return RoleEmployee
}

// Home is the landing page for a role.
func Home(role Role) string {
	switch role {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleManager:
		return "/dashboard/manager"
	case RoleLead:
		return "/dashboard/lead"
	default:
		return "/dashboard/employee"
	}
}
