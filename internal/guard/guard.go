// Package guard decides whether a session may enter a role-gated area. It never
// fails: a caller without a session is sent to login, a caller with the wrong
// role is sent to their own dashboard.
package guard

import (
	"net/url"
	"time"

	"stride/api/internal/auth"
	"stride/api/internal/rbac"
)

type Outcome int

const (
	Allow Outcome = iota
	Login
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Login:
		return "login"
	default:
		return "forbidden"
	}
}

type Decision struct {
	Outcome Outcome
	Session *auth.Session
	// Redirect is set for Login and Forbidden.
	Redirect string
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Clock is swapped in tests.
var Clock = time.Now

// RequireRole checks session against allowed. next is the path to return to after login.
func RequireRole(session *auth.Session, next string, allowed ...rbac.Role) Decision {
	if session == nil || session.Expired(Clock()) {
		return Decision{Outcome: Login, Redirect: LoginURL(next)}
	}
	for _, role := range allowed {
		if session.Role == role {
			return Decision{Outcome: Allow, Session: session}
		}
	}
	return Decision{Outcome: Forbidden, Session: session, Redirect: rbac.Home(session.Role)}
}

func RequireAdmin(session *auth.Session, next string) Decision {
	return RequireRole(session, next, rbac.RoleAdmin)
}

func RequireManager(session *auth.Session, next string) Decision {
	return RequireRole(session, next, rbac.RoleAdmin, rbac.RoleManager)
}

func RequireLead(session *auth.Session, next string) Decision {
	return RequireRole(session, next, rbac.RoleAdmin, rbac.RoleManager, rbac.RoleLead)
}

// RequirePermission is RequireRole over the roles granted perm.
func RequirePermission(session *auth.Session, next string, perm rbac.Permission) Decision {
	return RequireRole(session, next, rbac.Roles(perm)...)
}

func LoginURL(next string) string {
	if next == "" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}
