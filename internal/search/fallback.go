package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Postgres implements Searcher with ILIKE over trigram-indexed columns. It is the
// fallback when Meilisearch is not configured or unhealthy.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *Postgres) Healthy() bool {
	return true
}

// likePattern escapes LIKE metacharacters so user input matches literally.
func likePattern(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(text)) + "%"
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	args := []any{likePattern(q.Text)}
	taskWhere := "(t.title ILIKE $1 OR t.description ILIKE $1)"
	if q.VisibleTo != "" {
		args = append(args, q.VisibleTo)
		taskWhere += fmt.Sprintf(" AND (t.assignee_id = $%d OR t.assignee_id IS NULL)", len(args))
	}

	subQueries := []string{
		`SELECT 'project'::text AS type, p.id, p.name AS title, p.description AS snippet, p.id AS project_id, p.updated_at
			FROM projects p WHERE p.name ILIKE $1 OR p.description ILIKE $1`,
		`SELECT 'task'::text AS type, t.id, t.title, t.description AS snippet, t.project_id, t.updated_at
			FROM tasks t WHERE ` + taskWhere,
	}
	if q.IncludeUsers {
		subQueries = append(subQueries,
			`SELECT 'user'::text AS type, u.id, u.name AS title, u.email AS snippet, ''::text AS project_id, u.updated_at
			FROM users u WHERE u.name ILIKE $1 OR u.email ILIKE $1`)
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search fallback count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT type, id, title, snippet, project_id FROM (%s) sub ORDER BY updated_at DESC LIMIT %d`, union, q.limit()), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search fallback query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("search fallback scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable row for a full reindex.
func (p *Postgres) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []TaskRecord, []UserRecord, error) {
	projects := make([]ProjectRecord, 0)
	if err := p.each(ctx, `SELECT id, name, description, status FROM projects`, func(rows *sql.Rows) error {
		var r ProjectRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Status); err != nil {
			return err
		}
		projects = append(projects, r)
		return nil
	}); err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}

	tasks := make([]TaskRecord, 0)
	if err := p.each(ctx, `SELECT id, title, description, project_id, COALESCE(assignee_id, ''), status FROM tasks`, func(rows *sql.Rows) error {
		var r TaskRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.ProjectID, &r.AssigneeID, &r.Status); err != nil {
			return err
		}
		tasks = append(tasks, r)
		return nil
	}); err != nil {
		return nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}

	users := make([]UserRecord, 0)
	if err := p.each(ctx, `SELECT id, name, email, title, role, status FROM users`, func(rows *sql.Rows) error {
		var r UserRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Title, &r.Role, &r.Status); err != nil {
			return err
		}
		users = append(users, r)
		return nil
	}); err != nil {
		return nil, nil, nil, fmt.Errorf("load users: %w", err)
	}

	return projects, tasks, users, nil
}

func (p *Postgres) each(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
