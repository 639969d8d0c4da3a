package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"stride/api/internal/async"
	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/authpw"
	"stride/api/internal/cache"
	"stride/api/internal/integration"
	"stride/api/internal/logging"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
)

const genericFailure = "Something went wrong. Please try again."

// ActionResult is what every mutation returns. Callers never see an error value.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`

	kind failureKind
}

// Status is the HTTP status for the result.
func (r ActionResult) Status() int {
	switch r.kind {
	case failUnauthorized:
		return http.StatusForbidden
	case failValidation:
		return http.StatusBadRequest
	case failNotFound:
		return http.StatusNotFound
	case failConflict:
		return http.StatusConflict
	case failUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

type failureKind int

const (
	failNone failureKind = iota
	failUnauthorized
	failValidation
	failNotFound
	failConflict
	failUnexpected
)

func (k failureKind) outcome() string {
	switch k {
	case failNone:
		return "success"
	case failUnauthorized:
		return "unauthorized"
	case failValidation:
		return "invalid"
	case failNotFound:
		return "not_found"
	case failConflict:
		return "conflict"
	default:
		return "error"
	}
}

// actionError is a failure whose message is safe to show the caller.
type actionError struct {
	kind    failureKind
	message string
}

func (e *actionError) Error() string { return e.message }

func errUnauthorized() error { return forbidden("Unauthorized") }

// forbidden is an ownership failure with its own message.
func forbidden(message string) error { return &actionError{kind: failUnauthorized, message: message} }

func invalid(field, message string) error {
	return &actionError{kind: failValidation, message: field + " " + message}
}

func required(field string) error { return invalid(field, "is required") }

func notFound(entity string) error {
	return &actionError{kind: failNotFound, message: entity + " not found"}
}

func conflict(message string) error { return &actionError{kind: failConflict, message: message} }

// hook runs after the response is decided, on its own bounded context.
type hook struct {
	name string
	fn   func(context.Context) error
}

// written is what a mutation's write step reports for the audit entry.
type written struct {
	id     string
	detail string
	// actor overrides the session user, for public actions.
	actor string
}

// mutation is one audited write. Steps run in order: validate, permission,
// check, write, audit, cache invalidation, hooks.
type mutation struct {
	action audit.Action
	entity audit.Entity
	perm   rbac.Permission
	// public skips the permission step.
	public   bool
	validate func() error
	check    func(context.Context) error
	write    func(context.Context) (written, error)
	tags     []string
	hooks    []hook
	message  string
}

func (s *Service) run(ctx context.Context, actor *auth.Session, m mutation) ActionResult {
	result := s.execute(ctx, actor, m)
	s.metrics.Action(string(m.action), result.kind.outcome())
	return result
}

func (s *Service) execute(ctx context.Context, actor *auth.Session, m mutation) ActionResult {
	if m.validate != nil {
		if err := m.validate(); err != nil {
			return s.fail(ctx, actor, m, err)
		}
	}
	if !m.public && (actor == nil || !rbac.IsAllowed(actor.Role, m.perm)) {
		return s.fail(ctx, actor, m, errUnauthorized())
	}
	if m.check != nil {
		if err := m.check(ctx); err != nil {
			return s.fail(ctx, actor, m, err)
		}
	}
	out, err := m.write(ctx)
	if err != nil {
		return s.fail(ctx, actor, m, err)
	}

	actorID := out.actor
	if actorID == "" && actor != nil {
		actorID = actor.UserID
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:  actorID,
		Action:   m.action,
		Entity:   m.entity,
		EntityID: out.id,
		Detail:   out.detail,
	})

	// Every mutation writes an audit entry, so audit views go stale too.
	s.invalidate(ctx, append(m.tags, cache.TagAudit)...)
	for _, h := range m.hooks {
		async.SafeGo(ctx, hookTimeout, string(m.action)+"."+h.name, h.fn)
	}

	return ActionResult{Success: true, Message: m.message, ID: out.id}
}

// fail normalises err into the caller-facing taxonomy.
func (s *Service) fail(ctx context.Context, actor *auth.Session, m mutation, err error) ActionResult {
	var actionErr *actionError
	var fieldErr *authpw.FieldError
	var settingsErr *store.SettingsError
	var configErr *integration.ConfigError
	switch {
	case errors.As(err, &actionErr):
		return ActionResult{Error: actionErr.message, kind: actionErr.kind}
	case errors.As(err, &fieldErr):
		return ActionResult{Error: fieldErr.Error(), kind: failValidation}
	case errors.As(err, &settingsErr):
		return ActionResult{Error: settingsErr.Error(), kind: failValidation}
	case errors.As(err, &configErr):
		return ActionResult{Error: configErr.Error(), kind: failValidation}
	case errors.Is(err, authpw.ErrEmailExists):
		return ActionResult{Error: "Email already exists", kind: failConflict}
	case errors.Is(err, store.ErrNotFound):
		return ActionResult{Error: entityLabel(m.entity) + " not found", kind: failNotFound}
	case errors.Is(err, store.ErrInvalidReference):
		return ActionResult{Error: strings.ToLower(entityLabel(m.entity)) + " references a record that does not exist", kind: failValidation}
	case errors.Is(err, store.ErrConflict):
		return ActionResult{Error: entityLabel(m.entity) + " already exists", kind: failConflict}
	}

	fields := logrus.Fields{"action": m.action, "entity": m.entity}
	if actor != nil {
		fields["actor_id"] = actor.UserID
	}
	logging.FromContext(ctx).WithError(err).WithFields(fields).Error("action failed")
	return ActionResult{Error: genericFailure, kind: failUnexpected}
}

func entityLabel(entity audit.Entity) string {
	switch entity {
	case audit.EntityPTORequest:
		return "PTO request"
	case audit.EntitySettings:
		return "Settings"
	case "":
		return "Record"
	default:
		return string(entity)
	}
}
