package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stride/api/internal/auth"
	"stride/api/internal/rbac"
)

func session(role rbac.Role) *auth.Session {
	return &auth.Session{UserID: "u1", Role: role, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestRequireRoleWithoutSessionGoesToLogin(t *testing.T) {
	d := RequireAdmin(nil, "/dashboard/admin")
	assert.Equal(t, Login, d.Outcome)
	assert.Equal(t, "/login?next=%2Fdashboard%2Fadmin", d.Redirect)
	assert.Nil(t, d.Session)
}

func TestRequireRoleExpiredSessionGoesToLogin(t *testing.T) {
	expired := &auth.Session{UserID: "u1", Role: rbac.RoleAdmin, ExpiresAt: time.Now().Add(-time.Second)}
	d := RequireAdmin(expired, "")
	assert.Equal(t, Login, d.Outcome)
	assert.Equal(t, "/login", d.Redirect)
}

func TestNamedSpecializations(t *testing.T) {
	type guardFn func(*auth.Session, string) Decision
	cases := []struct {
		name    string
		fn      guardFn
		allowed []rbac.Role
	}{
		{"admin", RequireAdmin, []rbac.Role{rbac.RoleAdmin}},
		{"manager", RequireManager, []rbac.Role{rbac.RoleAdmin, rbac.RoleManager}},
		{"lead", RequireLead, []rbac.Role{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleLead}},
	}

	for _, tc := range cases {
		for _, role := range rbac.AllRoles() {
			t.Run(tc.name+"/"+string(role), func(t *testing.T) {
				s := session(role)
				d := tc.fn(s, "/dashboard")
				if contains(tc.allowed, role) {
					assert.Equal(t, Allow, d.Outcome)
					assert.Same(t, s, d.Session)
					assert.Empty(t, d.Redirect)
				} else {
					assert.Equal(t, Forbidden, d.Outcome)
					assert.Equal(t, rbac.Home(role), d.Redirect)
				}
			})
		}
	}
}

func TestRequirePermissionFollowsTable(t *testing.T) {
	assert.True(t, RequirePermission(session(rbac.RoleLead), "", rbac.PermTimesheetReview).Allowed())
	assert.False(t, RequirePermission(session(rbac.RoleLead), "", rbac.PermPTOReview).Allowed())
	assert.Equal(t, Forbidden, RequirePermission(session(rbac.RoleAdmin), "", "unknown.perm").Outcome)
}

func contains(roles []rbac.Role, role rbac.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
