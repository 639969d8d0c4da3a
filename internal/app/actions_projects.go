package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/cache"
	"stride/api/internal/integration"
	"stride/api/internal/rbac"
	"stride/api/internal/search"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

type ProjectInput struct {
	ID          string  `json:"-"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OwnerID     *string `json:"ownerId"`
	TeamID      *string `json:"teamId"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
}

type ProjectStatusInput struct {
	ProjectID string `json:"-"`
	Status    string `json:"status"`
}

type SprintInput struct {
	ID        string `json:"-"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Goal      string `json:"goal"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type TaskInput struct {
	ID            string  `json:"-"`
	ProjectID     string  `json:"projectId"`
	SprintID      *string `json:"sprintId"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Priority      string  `json:"priority"`
	AssigneeID    *string `json:"assigneeId"`
	EstimateHours float64 `json:"estimateHours"`
	DueDate       string  `json:"dueDate"`
}

type TaskStatusInput struct {
	TaskID string `json:"-"`
	Status string `json:"status"`
}

// projectTransitions lists the statuses each project status may move to.
// COMPLETED and CANCELLED only reopen.
var projectTransitions = map[string][]string{
	store.ProjectPlanning:  {store.ProjectActive, store.ProjectCancelled},
	store.ProjectActive:    {store.ProjectOnHold, store.ProjectCompleted, store.ProjectCancelled},
	store.ProjectOnHold:    {store.ProjectActive, store.ProjectCancelled},
	store.ProjectCompleted: {store.ProjectActive},
	store.ProjectCancelled: {store.ProjectActive},
}

func canTransitionProject(from, to string) bool {
	return slices.Contains(projectTransitions[from], to)
}

func projectClosed(status string) bool {
	return status == store.ProjectCompleted || status == store.ProjectCancelled
}

var (
	taskStatuses   = []string{store.TaskTodo, store.TaskInProgress, store.TaskInReview, store.TaskDone}
	taskPriorities = []string{"LOW", "MEDIUM", "HIGH", "URGENT"}
)

func (s *Service) requireProject(ctx context.Context, id string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, notFound("Project")
	}
	return project, err
}

func (s *Service) requireSprint(ctx context.Context, id string) (store.Sprint, error) {
	sprint, err := s.store.GetSprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Sprint{}, notFound("Sprint")
	}
	return sprint, err
}

func (s *Service) requireTask(ctx context.Context, id string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Task{}, notFound("Task")
	}
	return task, err
}

func (s *Service) indexProject(ctx context.Context, p store.Project) error {
	return s.search.IndexProject(ctx, search.ProjectRecord{ID: p.ID, Name: p.Name, Description: p.Description, Status: p.Status})
}

func (s *Service) indexTask(ctx context.Context, t store.Task) error {
	return s.search.IndexTask(ctx, search.TaskRecord{
		ID: t.ID, Title: t.Title, Description: t.Description, ProjectID: t.ProjectID,
		AssigneeID: deref(t.AssigneeID), Status: t.Status,
	})
}

// =============================================================================
// Projects
// =============================================================================

type projectDates struct{ start, end *time.Time }

func validateProject(in ProjectInput) (projectDates, error) {
	if err := validateNamed(in.Name, in.Description); err != nil {
		return projectDates{}, err
	}
	start, err := parseDate("startDate", in.StartDate, false)
	if err != nil {
		return projectDates{}, err
	}
	end, err := parseDate("endDate", in.EndDate, false)
	if err != nil {
		return projectDates{}, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return projectDates{}, invalid("endDate", "must not be before startDate")
	}
	return projectDates{start, end}, nil
}

func (s *Service) checkProjectRefs(ctx context.Context, in ProjectInput) error {
	if err := s.checkUserRef(ctx, "ownerId", optionalID(in.OwnerID)); err != nil {
		return err
	}
	if team := optionalID(in.TeamID); team != nil {
		if _, err := s.store.GetTeam(ctx, *team); errors.Is(err, store.ErrNotFound) {
			return invalid("teamId", "must reference an existing team")
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateProject(ctx context.Context, actor *auth.Session, in ProjectInput) ActionResult {
	var (
		dates   projectDates
		project store.Project
	)
	return s.run(ctx, actor, mutation{
		action: audit.ProjectCreated,
		entity: audit.EntityProject,
		perm:   rbac.PermProjectCreate,
		validate: func() (err error) {
			dates, err = validateProject(in)
			return err
		},
		check: func(ctx context.Context) error { return s.checkProjectRefs(ctx, in) },
		write: func(ctx context.Context) (written, error) {
			owner := optionalID(in.OwnerID)
			if owner == nil {
				owner = &actor.UserID
			}
			project = store.Project{
				ID:          util.NewID("prj"),
				Name:        strings.TrimSpace(in.Name),
				Description: strings.TrimSpace(in.Description),
				Status:      store.ProjectPlanning,
				OwnerID:     owner,
				TeamID:      optionalID(in.TeamID),
				StartDate:   dates.start,
				EndDate:     dates.end,
			}
			if err := s.store.CreateProject(ctx, project); err != nil {
				return written{}, err
			}
			return written{id: project.ID, detail: project.Name}, nil
		},
		tags:    []string{cache.TagProjects},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexProject(ctx, project) }}},
		message: "Project created successfully",
	})
}

func (s *Service) UpdateProject(ctx context.Context, actor *auth.Session, in ProjectInput) ActionResult {
	var (
		dates   projectDates
		project store.Project
	)
	return s.run(ctx, actor, mutation{
		action: audit.ProjectUpdated,
		entity: audit.EntityProject,
		perm:   rbac.PermProjectUpdate,
		validate: func() (err error) {
			if blank(in.ID) {
				return required("id")
			}
			dates, err = validateProject(in)
			return err
		},
		check: func(ctx context.Context) (err error) {
			if project, err = s.requireProject(ctx, in.ID); err != nil {
				return err
			}
			if projectClosed(project.Status) {
				return conflict("Cannot update a " + strings.ToLower(project.Status) + " project; reopen it first")
			}
			return s.checkProjectRefs(ctx, in)
		},
		write: func(ctx context.Context) (written, error) {
			project.Name = strings.TrimSpace(in.Name)
			project.Description = strings.TrimSpace(in.Description)
			project.OwnerID = optionalID(in.OwnerID)
			project.TeamID = optionalID(in.TeamID)
			project.StartDate = dates.start
			project.EndDate = dates.end
			if err := s.store.UpdateProject(ctx, project); err != nil {
				return written{}, err
			}
			return written{id: project.ID}, nil
		},
		tags:    []string{cache.TagProjects},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexProject(ctx, project) }}},
		message: "Project updated successfully",
	})
}

func (s *Service) ChangeProjectStatus(ctx context.Context, actor *auth.Session, in ProjectStatusInput) ActionResult {
	var project store.Project
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	return s.run(ctx, actor, mutation{
		action: audit.ProjectStatusChanged,
		entity: audit.EntityProject,
		perm:   rbac.PermProjectUpdate,
		validate: func() error {
			if blank(in.ProjectID) {
				return required("projectId")
			}
			if status == "" {
				return required("status")
			}
			if _, ok := projectTransitions[status]; !ok {
				return invalid("status", "must be one of PLANNING, ACTIVE, ON_HOLD, COMPLETED, CANCELLED")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if project, err = s.requireProject(ctx, in.ProjectID); err != nil {
				return err
			}
			if !canTransitionProject(project.Status, status) {
				return conflict(fmt.Sprintf("Cannot change project status from %s to %s", project.Status, status))
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.SetProjectStatus(ctx, project.ID, project.Status, status)
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Project status has changed; reload and try again")
			}
			from := project.Status
			project.Status = status
			return written{id: project.ID, detail: from + " -> " + status}, nil
		},
		tags:    []string{cache.TagProjects},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexProject(ctx, project) }}},
		message: "Project status updated successfully",
	})
}

func (s *Service) DeleteProject(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var project store.Project
	return s.run(ctx, actor, mutation{
		action: audit.ProjectDeleted,
		entity: audit.EntityProject,
		perm:   rbac.PermProjectDelete,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			project, err = s.requireProject(ctx, id)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteProject(ctx, id)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("Project")
			}
			return written{id: id, detail: project.Name}, nil
		},
		tags: []string{cache.TagProjects, cache.TagSprints, cache.TagTasks},
		hooks: []hook{{name: "search", fn: func(ctx context.Context) error {
			return s.search.Remove(ctx, search.ResultProject, id)
		}}},
		message: "Project deleted successfully",
	})
}

// =============================================================================
// Sprints
// =============================================================================

func validateSprint(in SprintInput) (start, end time.Time, err error) {
	if blank(in.Name) {
		return start, end, required("name")
	}
	if err := maxLen("goal", in.Goal, 1000); err != nil {
		return start, end, err
	}
	startDate, err := parseDate("startDate", in.StartDate, true)
	if err != nil {
		return start, end, err
	}
	endDate, err := parseDate("endDate", in.EndDate, true)
	if err != nil {
		return start, end, err
	}
	if !endDate.After(*startDate) {
		return start, end, invalid("endDate", "must be after startDate")
	}
	return *startDate, *endDate, nil
}

func (s *Service) CreateSprint(ctx context.Context, actor *auth.Session, in SprintInput) ActionResult {
	var start, end time.Time
	return s.run(ctx, actor, mutation{
		action: audit.SprintCreated,
		entity: audit.EntitySprint,
		perm:   rbac.PermSprintCreate,
		validate: func() (err error) {
			if blank(in.ProjectID) {
				return required("projectId")
			}
			start, end, err = validateSprint(in)
			return err
		},
		check: func(ctx context.Context) error {
			project, err := s.requireProject(ctx, in.ProjectID)
			if err != nil {
				return err
			}
			if projectClosed(project.Status) {
				return conflict("Cannot add a sprint to a " + strings.ToLower(project.Status) + " project")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			sprint := store.Sprint{
				ID:        util.NewID("spr"),
				ProjectID: in.ProjectID,
				Name:      strings.TrimSpace(in.Name),
				Goal:      strings.TrimSpace(in.Goal),
				Status:    store.SprintPlanned,
				StartDate: start,
				EndDate:   end,
			}
			if err := s.store.CreateSprint(ctx, sprint); err != nil {
				return written{}, err
			}
			return written{id: sprint.ID, detail: sprint.Name}, nil
		},
		tags:    []string{cache.TagSprints},
		message: "Sprint created successfully",
	})
}

func (s *Service) UpdateSprint(ctx context.Context, actor *auth.Session, in SprintInput) ActionResult {
	var (
		start, end time.Time
		sprint     store.Sprint
	)
	return s.run(ctx, actor, mutation{
		action: audit.SprintUpdated,
		entity: audit.EntitySprint,
		perm:   rbac.PermSprintUpdate,
		validate: func() (err error) {
			if blank(in.ID) {
				return required("id")
			}
			start, end, err = validateSprint(in)
			return err
		},
		check: func(ctx context.Context) (err error) {
			if sprint, err = s.requireSprint(ctx, in.ID); err != nil {
				return err
			}
			if sprint.Status == store.SprintCompleted {
				return conflict("Completed sprints cannot be edited")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			sprint.Name = strings.TrimSpace(in.Name)
			sprint.Goal = strings.TrimSpace(in.Goal)
			sprint.StartDate = start
			sprint.EndDate = end
			if err := s.store.UpdateSprint(ctx, sprint); err != nil {
				return written{}, err
			}
			return written{id: sprint.ID}, nil
		},
		tags:    []string{cache.TagSprints},
		message: "Sprint updated successfully",
	})
}

func (s *Service) StartSprint(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var sprint store.Sprint
	return s.run(ctx, actor, mutation{
		action: audit.SprintStarted,
		entity: audit.EntitySprint,
		perm:   rbac.PermSprintTransition,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if sprint, err = s.requireSprint(ctx, id); err != nil {
				return err
			}
			if sprint.Status != store.SprintPlanned {
				return conflict("Only planned sprints can be started")
			}
			active, err := s.store.ListSprints(ctx, store.SprintFilter{ProjectID: sprint.ProjectID, Status: store.SprintActive})
			if err != nil {
				return err
			}
			if len(active) > 0 {
				return conflict("Project already has an active sprint")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.SetSprintStatus(ctx, id, store.SprintPlanned, store.SprintActive)
			if errors.Is(err, store.ErrConflict) {
				return written{}, conflict("Project already has an active sprint")
			}
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Only planned sprints can be started")
			}
			return written{id: id, detail: sprint.Name}, nil
		},
		tags:    []string{cache.TagSprints},
		message: "Sprint started successfully",
	})
}

// CompleteSprint closes an active sprint, returns its unfinished tasks to the
// backlog and notifies webhook integrations.
func (s *Service) CompleteSprint(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var (
		sprint store.Sprint
		moved  int
	)
	return s.run(ctx, actor, mutation{
		action: audit.SprintCompleted,
		entity: audit.EntitySprint,
		perm:   rbac.PermSprintTransition,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if sprint, err = s.requireSprint(ctx, id); err != nil {
				return err
			}
			if sprint.Status != store.SprintActive {
				return conflict("Only active sprints can be completed")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			var (
				completed bool
				err       error
			)
			if moved, completed, err = s.store.CompleteSprint(ctx, id); err != nil {
				return written{}, err
			}
			if !completed {
				return written{}, conflict("Only active sprints can be completed")
			}
			return written{id: id, detail: fmt.Sprintf("%d unfinished tasks moved to backlog", moved)}, nil
		},
		tags: []string{cache.TagSprints, cache.TagTasks, cache.TagProjects},
		hooks: []hook{{name: "broadcast", fn: func(ctx context.Context) error {
			integrations, err := s.store.ListIntegrations(ctx)
			if err != nil {
				return err
			}
			s.integrations.Broadcast(ctx, integrations, integration.Event{
				Name: integration.EventSprintCompleted,
				Text: fmt.Sprintf("Sprint %q completed; %d unfinished tasks moved to backlog", sprint.Name, moved),
				Data: map[string]any{"sprintId": sprint.ID, "projectId": sprint.ProjectID, "movedToBacklog": moved},
				At:   s.now().UTC(),
			})
			return nil
		}}},
		message: "Sprint completed successfully",
	})
}

func (s *Service) DeleteSprint(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var sprint store.Sprint
	return s.run(ctx, actor, mutation{
		action: audit.SprintDeleted,
		entity: audit.EntitySprint,
		perm:   rbac.PermSprintDelete,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if sprint, err = s.requireSprint(ctx, id); err != nil {
				return err
			}
			if sprint.Status == store.SprintActive {
				return conflict("Cannot delete an active sprint")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteSprint(ctx, id)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, conflict("Cannot delete an active sprint")
			}
			return written{id: id, detail: sprint.Name}, nil
		},
		tags:    []string{cache.TagSprints, cache.TagTasks},
		message: "Sprint deleted successfully",
	})
}

// =============================================================================
// Tasks
// =============================================================================

type taskFields struct {
	priority string
	due      *time.Time
}

func validateTask(in TaskInput) (taskFields, error) {
	if blank(in.Title) {
		return taskFields{}, required("title")
	}
	if err := maxLen("title", strings.TrimSpace(in.Title), 200); err != nil {
		return taskFields{}, err
	}
	priority := strings.ToUpper(strings.TrimSpace(in.Priority))
	if priority == "" {
		priority = "MEDIUM"
	}
	if !slices.Contains(taskPriorities, priority) {
		return taskFields{}, invalid("priority", "must be one of LOW, MEDIUM, HIGH, URGENT")
	}
	if in.EstimateHours < 0 || in.EstimateHours > 1000 {
		return taskFields{}, invalid("estimateHours", "must be between 0 and 1000")
	}
	due, err := parseDate("dueDate", in.DueDate, false)
	if err != nil {
		return taskFields{}, err
	}
	return taskFields{priority: priority, due: due}, nil
}

func (s *Service) checkTaskRefs(ctx context.Context, projectID string, in TaskInput) error {
	if sprintID := optionalID(in.SprintID); sprintID != nil {
		sprint, err := s.store.GetSprint(ctx, *sprintID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && sprint.ProjectID != projectID) {
			return invalid("sprintId", "must reference a sprint of the same project")
		}
		if err != nil {
			return err
		}
	}
	return s.checkUserRef(ctx, "assigneeId", optionalID(in.AssigneeID))
}

func (s *Service) CreateTask(ctx context.Context, actor *auth.Session, in TaskInput) ActionResult {
	var (
		fields taskFields
		task   store.Task
	)
	return s.run(ctx, actor, mutation{
		action: audit.TaskCreated,
		entity: audit.EntityTask,
		perm:   rbac.PermTaskCreate,
		validate: func() (err error) {
			if blank(in.ProjectID) {
				return required("projectId")
			}
			fields, err = validateTask(in)
			return err
		},
		check: func(ctx context.Context) error {
			if _, err := s.requireProject(ctx, in.ProjectID); err != nil {
				return err
			}
			return s.checkTaskRefs(ctx, in.ProjectID, in)
		},
		write: func(ctx context.Context) (written, error) {
			task = store.Task{
				ID:            util.NewID("tsk"),
				ProjectID:     in.ProjectID,
				SprintID:      optionalID(in.SprintID),
				Title:         strings.TrimSpace(in.Title),
				Description:   strings.TrimSpace(in.Description),
				Status:        store.TaskTodo,
				Priority:      fields.priority,
				AssigneeID:    optionalID(in.AssigneeID),
				ReporterID:    &actor.UserID,
				EstimateHours: in.EstimateHours,
				DueDate:       fields.due,
			}
			if err := s.store.CreateTask(ctx, task); err != nil {
				return written{}, err
			}
			return written{id: task.ID, detail: task.Title}, nil
		},
		tags:    []string{cache.TagTasks, cache.TagProjects, cache.TagSprints},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexTask(ctx, task) }}},
		message: "Task created successfully",
	})
}

func (s *Service) UpdateTask(ctx context.Context, actor *auth.Session, in TaskInput) ActionResult {
	var (
		fields taskFields
		task   store.Task
	)
	return s.run(ctx, actor, mutation{
		action: audit.TaskUpdated,
		entity: audit.EntityTask,
		perm:   rbac.PermTaskUpdate,
		validate: func() (err error) {
			if blank(in.ID) {
				return required("id")
			}
			fields, err = validateTask(in)
			return err
		},
		check: func(ctx context.Context) (err error) {
			if task, err = s.requireTask(ctx, in.ID); err != nil {
				return err
			}
			return s.checkTaskRefs(ctx, task.ProjectID, in)
		},
		write: func(ctx context.Context) (written, error) {
			task.SprintID = optionalID(in.SprintID)
			task.Title = strings.TrimSpace(in.Title)
			task.Description = strings.TrimSpace(in.Description)
			task.Priority = fields.priority
			task.AssigneeID = optionalID(in.AssigneeID)
			task.EstimateHours = in.EstimateHours
			task.DueDate = fields.due
			if err := s.store.UpdateTask(ctx, task); err != nil {
				return written{}, err
			}
			return written{id: task.ID}, nil
		},
		tags:    []string{cache.TagTasks, cache.TagSprints},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexTask(ctx, task) }}},
		message: "Task updated successfully",
	})
}

// UpdateTaskStatus lets employees move only the tasks assigned to them.
func (s *Service) UpdateTaskStatus(ctx context.Context, actor *auth.Session, in TaskStatusInput) ActionResult {
	var task store.Task
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	return s.run(ctx, actor, mutation{
		action: audit.TaskStatusChanged,
		entity: audit.EntityTask,
		perm:   rbac.PermTaskUpdateStatus,
		validate: func() error {
			if blank(in.TaskID) {
				return required("taskId")
			}
			if status == "" {
				return required("status")
			}
			if !slices.Contains(taskStatuses, status) {
				return invalid("status", "must be one of TODO, IN_PROGRESS, IN_REVIEW, DONE")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if task, err = s.requireTask(ctx, in.TaskID); err != nil {
				return err
			}
			if actor.Role == rbac.RoleEmployee && deref(task.AssigneeID) != actor.UserID {
				return forbidden("You can only update your own tasks")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			if err := s.store.SetTaskStatus(ctx, task.ID, status); err != nil {
				return written{}, err
			}
			from := task.Status
			task.Status = status
			return written{id: task.ID, detail: from + " -> " + status}, nil
		},
		tags:    []string{cache.TagTasks, cache.TagProjects, cache.TagSprints},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexTask(ctx, task) }}},
		message: "Task status updated successfully",
	})
}

func (s *Service) DeleteTask(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var task store.Task
	return s.run(ctx, actor, mutation{
		action: audit.TaskDeleted,
		entity: audit.EntityTask,
		perm:   rbac.PermTaskDelete,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			task, err = s.requireTask(ctx, id)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteTask(ctx, id)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("Task")
			}
			return written{id: id, detail: task.Title}, nil
		},
		tags: []string{cache.TagTasks, cache.TagProjects, cache.TagSprints},
		hooks: []hook{{name: "search", fn: func(ctx context.Context) error {
			return s.search.Remove(ctx, search.ResultTask, id)
		}}},
		message: "Task deleted successfully",
	})
}
