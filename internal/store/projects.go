package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, owner_id, team_id, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, project.ID, project.Name, project.Description, project.Status, project.OwnerID, project.TeamID, project.StartDate, project.EndDate)
	return classify("insert project", err)
}

// UpdateProject writes descriptive fields. Status changes go through SetProjectStatus.
func (s *PostgresStore) UpdateProject(ctx context.Context, project Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, description=$3, owner_id=$4, team_id=$5, start_date=$6, end_date=$7, updated_at=NOW()
		WHERE id=$1
	`, project.ID, project.Name, project.Description, project.OwnerID, project.TeamID, project.StartDate, project.EndDate)
	return requireRow("update project", result, err)
}

func (s *PostgresStore) SetProjectStatus(ctx context.Context, projectID, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2
	`, projectID, from, to)
	return affected("set project status", result, err)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	return affected("delete project", result, err)
}

const projectSelect = `
	SELECT p.id, p.name, p.description, p.status, p.owner_id, p.team_id, p.start_date, p.end_date, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id),
		(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id AND t.status = 'DONE')
	FROM projects p`

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.OwnerID, &p.TeamID, &p.StartDate, &p.EndDate,
		&p.CreatedAt, &p.UpdatedAt, &p.TaskCount, &p.DoneCount)
	return p, err
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx, projectSelect+` WHERE p.id=$1`, projectID))
	if err != nil {
		return Project{}, classify("lookup project", err)
	}
	return project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	var w where
	if filter.Status != "" {
		w.add("p.status=?", filter.Status)
	}
	if filter.TeamID != "" {
		w.add("p.team_id=?", filter.TeamID)
	}
	rows, err := s.db.QueryContext(ctx, projectSelect+w.clause()+` ORDER BY p.updated_at DESC, p.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) ProjectStats(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, "project stats", `SELECT status, COUNT(*) FROM projects GROUP BY status`)
}

func (s *PostgresStore) countBy(ctx context.Context, op, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CreateSprint(ctx context.Context, sprint Sprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sprints (id, project_id, name, goal, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sprint.ID, sprint.ProjectID, sprint.Name, sprint.Goal, sprint.Status, sprint.StartDate, sprint.EndDate)
	return classify("insert sprint", err)
}

func (s *PostgresStore) UpdateSprint(ctx context.Context, sprint Sprint) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET name=$2, goal=$3, start_date=$4, end_date=$5, updated_at=NOW() WHERE id=$1
	`, sprint.ID, sprint.Name, sprint.Goal, sprint.StartDate, sprint.EndDate)
	return requireRow("update sprint", result, err)
}

// SetSprintStatus is conditional on from. Activating a second sprint in a project
// violates sprints_one_active_per_project and returns ErrConflict.
func (s *PostgresStore) SetSprintStatus(ctx context.Context, sprintID, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2
	`, sprintID, from, to)
	return affected("set sprint status", result, err)
}

func (s *PostgresStore) DeleteSprint(ctx context.Context, sprintID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sprints WHERE id=$1 AND status <> 'ACTIVE'`, sprintID)
	return affected("delete sprint", result, err)
}

const sprintColumns = `id, project_id, name, goal, status, start_date, end_date, created_at, updated_at`

func scanSprint(row rowScanner) (Sprint, error) {
	var sp Sprint
	err := row.Scan(&sp.ID, &sp.ProjectID, &sp.Name, &sp.Goal, &sp.Status, &sp.StartDate, &sp.EndDate, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

func (s *PostgresStore) GetSprint(ctx context.Context, sprintID string) (Sprint, error) {
	sprint, err := scanSprint(s.db.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=$1`, sprintID))
	if err != nil {
		return Sprint{}, classify("lookup sprint", err)
	}
	return sprint, nil
}

func (s *PostgresStore) ListSprints(ctx context.Context, filter SprintFilter) ([]Sprint, error) {
	var w where
	if filter.ProjectID != "" {
		w.add("project_id=?", filter.ProjectID)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints`+w.clause()+` ORDER BY start_date DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	sprints := make([]Sprint, 0)
	for rows.Next() {
		sprint, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sprint)
	}
	return sprints, rows.Err()
}

// CompleteSprint closes an ACTIVE sprint and clears the sprint on its tasks
// that are not DONE, in one statement. completed is false when the sprint was
// not ACTIVE; nothing is written then.
func (s *PostgresStore) CompleteSprint(ctx context.Context, sprintID string) (moved int, completed bool, err error) {
	var closed int
	err = s.db.QueryRowContext(ctx, `
		WITH closed AS (
			UPDATE sprints SET status='COMPLETED', updated_at=NOW()
			WHERE id=$1 AND status='ACTIVE'
			RETURNING id
		), moved AS (
			UPDATE tasks SET sprint_id=NULL, updated_at=NOW()
			WHERE sprint_id IN (SELECT id FROM closed) AND status <> 'DONE'
			RETURNING id
		)
		SELECT (SELECT COUNT(*) FROM closed), (SELECT COUNT(*) FROM moved)
	`, sprintID).Scan(&closed, &moved)
	if err != nil {
		return 0, false, classify("complete sprint", err)
	}
	return moved, closed > 0, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, sprint_id, title, description, status, priority, assignee_id, reporter_id, estimate_hours, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, task.ID, task.ProjectID, task.SprintID, task.Title, task.Description, task.Status, task.Priority,
		task.AssigneeID, task.ReporterID, task.EstimateHours, task.DueDate)
	return classify("insert task", err)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET sprint_id=$2, title=$3, description=$4, priority=$5, assignee_id=$6, estimate_hours=$7, due_date=$8, updated_at=NOW()
		WHERE id=$1
	`, task.ID, task.SprintID, task.Title, task.Description, task.Priority, task.AssigneeID, task.EstimateHours, task.DueDate)
	return requireRow("update task", result, err)
}

func (s *PostgresStore) SetTaskStatus(ctx context.Context, taskID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=$2, updated_at=NOW() WHERE id=$1`, taskID, status)
	return requireRow("set task status", result, err)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	return affected("delete task", result, err)
}

const taskColumns = `id, project_id, sprint_id, title, description, status, priority, assignee_id, reporter_id, estimate_hours::float8, due_date, created_at, updated_at`

func scanTask(row rowScanner) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.SprintID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &t.ReporterID, &t.EstimateHours, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID))
	if err != nil {
		return Task{}, classify("lookup task", err)
	}
	return task, nil
}

func taskWhere(filter TaskFilter) *where {
	w := &where{}
	if filter.ProjectID != "" {
		w.add("project_id=?", filter.ProjectID)
	}
	if filter.SprintID != "" {
		w.add("sprint_id=?", filter.SprintID)
	}
	if filter.AssigneeID != "" {
		w.add("assignee_id=?", filter.AssigneeID)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	if filter.OpenOnly {
		w.clauses = append(w.clauses, "status <> 'DONE'")
	}
	if filter.VisibleTo != "" {
		w.add("(assignee_id=? OR assignee_id IS NULL)", filter.VisibleTo)
	}
	return w
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	w := taskWhere(filter)
	query := `SELECT ` + taskColumns + ` FROM tasks` + w.clause() + ` ORDER BY updated_at DESC, id` + w.limit(filter.Limit)
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) TaskStatusCounts(ctx context.Context, filter TaskFilter) (map[string]int, error) {
	w := taskWhere(filter)
	return s.countBy(ctx, "task status counts", `SELECT status, COUNT(*) FROM tasks`+w.clause()+` GROUP BY status`, w.args...)
}
