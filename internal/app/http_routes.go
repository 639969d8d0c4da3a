package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"stride/api/internal/ai"
	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/logging"
	"stride/api/internal/report"
)

// bodyAction decodes the JSON body, lets bind copy path values in, and runs fn.
func bodyAction[In any](fn func(context.Context, *auth.Session, In) ActionResult, bind func(*http.Request, *In)) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		var in In
		if !decodeOrFail(w, r, &in) {
			return
		}
		if bind != nil {
			bind(r, &in)
		}
		writeAction(w, fn(r.Context(), actor, in))
	}
}

// pathAction runs fn with one path variable.
func pathAction(fn func(context.Context, *auth.Session, string) ActionResult, key string) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		writeAction(w, fn(r.Context(), actor, mux.Vars(r)[key]))
	}
}

func pathID(r *http.Request) string { return mux.Vars(r)["id"] }

func (s *HTTPServer) actionRoutes(r *mux.Router) {
	post, put, del := http.MethodPost, http.MethodPut, http.MethodDelete

	r.HandleFunc("/api/me/profile", s.authed(bodyAction(s.service.UpdateProfile, nil))).Methods(put)
	r.HandleFunc("/api/me/password", s.authed(bodyAction(s.service.ChangePassword, nil))).Methods(post)

	r.HandleFunc("/api/users", s.authed(bodyAction(s.service.CreateUser, nil))).Methods(post)
	r.HandleFunc("/api/users/{id}", s.authed(bodyAction(s.service.UpdateUser, func(r *http.Request, in *UpdateUserInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/users/{id}", s.authed(pathAction(s.service.DeleteUser, "id"))).Methods(del)
	r.HandleFunc("/api/users/{id}/role", s.authed(bodyAction(s.service.ChangeUserRole, func(r *http.Request, in *ChangeRoleInput) {
		in.UserID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/users/{id}/deactivate", s.authed(pathAction(s.service.DeactivateUser, "id"))).Methods(post)
	r.HandleFunc("/api/users/{id}/activate", s.authed(pathAction(s.service.ActivateUser, "id"))).Methods(post)

	r.HandleFunc("/api/departments", s.authed(bodyAction(s.service.CreateDepartment, nil))).Methods(post)
	r.HandleFunc("/api/departments/{id}", s.authed(bodyAction(s.service.UpdateDepartment, func(r *http.Request, in *DepartmentInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/departments/{id}", s.authed(pathAction(s.service.DeleteDepartment, "id"))).Methods(del)

	r.HandleFunc("/api/teams", s.authed(bodyAction(s.service.CreateTeam, nil))).Methods(post)
	r.HandleFunc("/api/teams/{id}", s.authed(bodyAction(s.service.UpdateTeam, func(r *http.Request, in *TeamInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/teams/{id}", s.authed(pathAction(s.service.DeleteTeam, "id"))).Methods(del)
	r.HandleFunc("/api/teams/{id}/members", s.authed(bodyAction(s.service.AddTeamMember, func(r *http.Request, in *TeamMemberInput) {
		in.TeamID = pathID(r)
	}))).Methods(post)
	r.HandleFunc("/api/teams/{id}/members/{userId}", s.authed(func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		vars := mux.Vars(r)
		writeAction(w, s.service.RemoveTeamMember(r.Context(), actor, TeamMemberInput{TeamID: vars["id"], UserID: vars["userId"]}))
	})).Methods(del)

	r.HandleFunc("/api/projects", s.authed(bodyAction(s.service.CreateProject, nil))).Methods(post)
	r.HandleFunc("/api/projects/{id}", s.authed(bodyAction(s.service.UpdateProject, func(r *http.Request, in *ProjectInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/projects/{id}", s.authed(pathAction(s.service.DeleteProject, "id"))).Methods(del)
	r.HandleFunc("/api/projects/{id}/status", s.authed(bodyAction(s.service.ChangeProjectStatus, func(r *http.Request, in *ProjectStatusInput) {
		in.ProjectID = pathID(r)
	}))).Methods(put)

	r.HandleFunc("/api/sprints", s.authed(bodyAction(s.service.CreateSprint, nil))).Methods(post)
	r.HandleFunc("/api/sprints/{id}", s.authed(bodyAction(s.service.UpdateSprint, func(r *http.Request, in *SprintInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/sprints/{id}", s.authed(pathAction(s.service.DeleteSprint, "id"))).Methods(del)
	r.HandleFunc("/api/sprints/{id}/start", s.authed(pathAction(s.service.StartSprint, "id"))).Methods(post)
	r.HandleFunc("/api/sprints/{id}/complete", s.authed(pathAction(s.service.CompleteSprint, "id"))).Methods(post)

	r.HandleFunc("/api/tasks", s.authed(bodyAction(s.service.CreateTask, nil))).Methods(post)
	r.HandleFunc("/api/tasks/{id}", s.authed(bodyAction(s.service.UpdateTask, func(r *http.Request, in *TaskInput) {
		in.ID = pathID(r)
	}))).Methods(put)
	r.HandleFunc("/api/tasks/{id}", s.authed(pathAction(s.service.DeleteTask, "id"))).Methods(del)
	r.HandleFunc("/api/tasks/{id}/status", s.authed(bodyAction(s.service.UpdateTaskStatus, func(r *http.Request, in *TaskStatusInput) {
		in.TaskID = pathID(r)
	}))).Methods(put)

	bindReview := func(r *http.Request, in *ReviewInput) { in.ID = pathID(r) }
	r.HandleFunc("/api/timesheets", s.authed(bodyAction(s.service.SubmitTimesheet, nil))).Methods(post)
	r.HandleFunc("/api/timesheets/{id}/approve", s.authed(bodyAction(s.service.ApproveTimesheet, bindReview))).Methods(post)
	r.HandleFunc("/api/timesheets/{id}/reject", s.authed(bodyAction(s.service.RejectTimesheet, bindReview))).Methods(post)

	r.HandleFunc("/api/pto", s.authed(bodyAction(s.service.RequestPTO, nil))).Methods(post)
	r.HandleFunc("/api/pto/{id}/approve", s.authed(bodyAction(s.service.ApprovePTO, bindReview))).Methods(post)
	r.HandleFunc("/api/pto/{id}/reject", s.authed(bodyAction(s.service.RejectPTO, bindReview))).Methods(post)
	r.HandleFunc("/api/pto/{id}/cancel", s.authed(pathAction(s.service.CancelPTO, "id"))).Methods(post)

	r.HandleFunc("/api/appraisals", s.authed(bodyAction(s.service.CreateAppraisal, nil))).Methods(post)
	r.HandleFunc("/api/appraisals/{id}/submit", s.authed(bodyAction(s.service.SubmitAppraisal, func(r *http.Request, in *AppraisalReviewInput) {
		in.ID = pathID(r)
	}))).Methods(post)
	r.HandleFunc("/api/appraisals/{id}/acknowledge", s.authed(pathAction(s.service.AcknowledgeAppraisal, "id"))).Methods(post)

	r.HandleFunc("/api/integrations/{provider}", s.authed(bodyAction(s.service.UpsertIntegration, func(r *http.Request, in *IntegrationInput) {
		in.Provider = mux.Vars(r)["provider"]
	}))).Methods(put)
	r.HandleFunc("/api/integrations/{provider}", s.authed(pathAction(s.service.RemoveIntegration, "provider"))).Methods(del)
	r.HandleFunc("/api/integrations/{provider}/test", s.authed(pathAction(s.service.TestIntegration, "provider"))).Methods(post)

	r.HandleFunc("/api/settings", s.authed(s.handleUpdateSettings)).Methods(put)
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	writeAction(w, s.service.UpdateSettings(r.Context(), actor, body))
}

// =============================================================================
// Read queries
// =============================================================================

func queryRoute[Q, V any](fn func(context.Context, *auth.Session, Q) (*V, error), parse func(url.Values) (Q, error)) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		q, err := parse(r.URL.Query())
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		view, err := fn(r.Context(), actor, q)
		writeView(w, r, view, err)
	}
}

func viewRoute[V any](fn func(context.Context, *auth.Session) (*V, error)) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		view, err := fn(r.Context(), actor)
		writeView(w, r, view, err)
	}
}

func idRoute[V any](fn func(context.Context, *auth.Session, string) (*V, error)) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		view, err := fn(r.Context(), actor, pathID(r))
		writeView(w, r, view, err)
	}
}

func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(name, "must be a number")
	}
	return n, nil
}

func (s *HTTPServer) queryRoutes(r *mux.Router) {
	get := http.MethodGet

	r.HandleFunc("/api/users", s.authed(queryRoute(s.service.ListUsers, func(v url.Values) (UserQuery, error) {
		return UserQuery{Role: v.Get("role"), Status: v.Get("status"), DepartmentID: v.Get("departmentId"), TeamID: v.Get("teamId")}, nil
	}))).Methods(get)
	r.HandleFunc("/api/users/{id}", s.authed(idRoute(s.service.GetUser))).Methods(get)
	r.HandleFunc("/api/departments", s.authed(viewRoute(s.service.ListDepartments))).Methods(get)
	r.HandleFunc("/api/teams", s.authed(viewRoute(s.service.ListTeams))).Methods(get)

	r.HandleFunc("/api/projects", s.authed(queryRoute(s.service.ListProjects, func(v url.Values) (ProjectQuery, error) {
		return ProjectQuery{Status: v.Get("status"), TeamID: v.Get("teamId")}, nil
	}))).Methods(get)
	r.HandleFunc("/api/projects/{id}", s.authed(idRoute(s.service.GetProject))).Methods(get)
	r.HandleFunc("/api/sprints", s.authed(queryRoute(s.service.ListSprints, func(v url.Values) (SprintQuery, error) {
		return SprintQuery{ProjectID: v.Get("projectId"), Status: v.Get("status")}, nil
	}))).Methods(get)
	r.HandleFunc("/api/tasks", s.authed(queryRoute(s.service.ListTasks, func(v url.Values) (TaskQuery, error) {
		return TaskQuery{ProjectID: v.Get("projectId"), SprintID: v.Get("sprintId"), AssigneeID: v.Get("assigneeId"), Status: v.Get("status")}, nil
	}))).Methods(get)

	r.HandleFunc("/api/timesheets", s.authed(queryRoute(s.service.ListTimesheets, func(v url.Values) (TimesheetQuery, error) {
		return TimesheetQuery{UserID: v.Get("userId"), Status: v.Get("status"), From: v.Get("from"), To: v.Get("to")}, nil
	}))).Methods(get)
	r.HandleFunc("/api/pto", s.authed(queryRoute(s.service.ListPTORequests, func(v url.Values) (PTOQuery, error) {
		return PTOQuery{UserID: v.Get("userId"), Status: v.Get("status")}, nil
	}))).Methods(get)
	r.HandleFunc("/api/pto/balance", s.authed(viewRoute(s.service.PTOBalance))).Methods(get)
	r.HandleFunc("/api/appraisals", s.authed(queryRoute(s.service.ListAppraisals, func(v url.Values) (AppraisalQuery, error) {
		return AppraisalQuery{EmployeeID: v.Get("employeeId"), Status: v.Get("status")}, nil
	}))).Methods(get)

	r.HandleFunc("/api/integrations", s.authed(viewRoute(s.service.ListIntegrations))).Methods(get)
	r.HandleFunc("/api/settings", s.authed(viewRoute(s.service.GetSettings))).Methods(get)
	r.HandleFunc("/api/settings/public", s.authed(viewRoute(s.service.PublicSettings))).Methods(get)
	r.HandleFunc("/api/audit", s.authed(queryRoute(s.service.ListAuditLog, parseAuditQuery))).Methods(get)

	r.HandleFunc("/api/search", s.authed(func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		limit, err := intParam(r.URL.Query(), "limit")
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		view, err := s.service.Search(r.Context(), actor, r.URL.Query().Get("q"), limit)
		writeView(w, r, view, err)
	})).Methods(get)
}

func parseAuditQuery(v url.Values) (AuditQuery, error) {
	limit, err := intParam(v, "limit")
	if err != nil {
		return AuditQuery{}, err
	}
	return AuditQuery{
		ActorID: v.Get("actorId"),
		Entity:  v.Get("entity"),
		Action:  v.Get("action"),
		From:    v.Get("from"),
		To:      v.Get("to"),
		Limit:   limit,
	}, nil
}

// =============================================================================
// Reports and exports
// =============================================================================

func (s *HTTPServer) reportRoutes(r *mux.Router) {
	r.HandleFunc("/api/reports/timesheets.pdf", s.authed(func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		q := r.URL.Query()
		result, err := s.service.TimesheetReport(r.Context(), actor, ReportQuery{From: q.Get("from"), To: q.Get("to"), UserID: q.Get("userId")})
		writeFile(w, r, result, err)
	})).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/appraisals/{id}.pdf", s.authed(func(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
		result, err := s.service.AppraisalReport(r.Context(), actor, pathID(r))
		writeFile(w, r, result, err)
	})).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/export.csv", s.authed(s.handleAuditExport)).Methods(http.MethodGet)
}

func writeFile(w http.ResponseWriter, r *http.Request, result *report.Result, err error) {
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if result == nil {
		writeDomainError(w, errForbidden)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
	q, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	entries, err := s.service.AuditExport(r.Context(), actor, q)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if entries == nil {
		writeDomainError(w, errForbidden)
		return
	}
	filename := "audit-" + time.Now().UTC().Format(dateLayout) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if err := audit.WriteCSV(w, entries); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("audit export write failed")
	}
}

// =============================================================================
// AI
// =============================================================================

func (s *HTTPServer) aiRoutes(r *mux.Router) {
	r.HandleFunc("/"+ai.FeatureTaskBreakdown, aiRoute[ai.TaskBreakdownInput](s)).Methods(http.MethodPost)
	r.HandleFunc("/"+ai.FeatureMeetingSummary, aiRoute[ai.MeetingSummaryInput](s)).Methods(http.MethodPost)
	r.HandleFunc("/"+ai.FeaturePerformanceReview, aiRoute[ai.PerformanceReviewInput](s)).Methods(http.MethodPost)
}

// aiRoute checks the body before the session so a malformed request is a 400
// regardless of who sends it.
func aiRoute[F ai.Feature](s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in F
		if !decodeOrFail(w, r, &in) {
			return
		}
		if field := in.Missing(); field != "" {
			s.service.metrics.AIRequest(in.Name(), "invalid")
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", field+" is required", map[string]string{"field": field})
			return
		}
		actor, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		ctx := logging.WithUserID(r.Context(), actor.UserID)
		out, err := s.service.Assist(ctx, actor, in)
		if err != nil {
			writeFailure(w, r.WithContext(ctx), err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}
