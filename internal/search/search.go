package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultTask    ResultType = "task"
	ResultUser    ResultType = "user"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text string
	// IncludeUsers is set only for callers holding user.list.
	IncludeUsers bool
	// VisibleTo restricts task hits to tasks assigned to that user or unassigned.
	VisibleTo string
	Limit     int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 50 {
		return 20
	}
	return q.Limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// TaskRecord is the data we index for a task. AssigneeID is empty for unassigned tasks.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	AssigneeID  string `json:"assigneeId"`
	Status      string `json:"status"`
}

// UserRecord is the data we index for a user.
type UserRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Title  string `json:"title"`
	Role   string `json:"role"`
	Status string `json:"status"`
}
