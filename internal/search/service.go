package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Index is a search backend that also accepts documents. *Meili implements it.
type Index interface {
	Searcher
	IndexProjects(projects ...ProjectRecord) error
	IndexTasks(tasks ...TaskRecord) error
	IndexUsers(users ...UserRecord) error
	Delete(kind ResultType, id string) error
}

// RecordLoader reads every searchable row; *Postgres implements it.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ProjectRecord, []TaskRecord, []UserRecord, error)
}

// Service tries the index first and falls back to Postgres.
type Service struct {
	index    Index
	fallback Searcher
	loader   RecordLoader
	logger   *logrus.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is not configured.
func NewService(index Index, fallback *Postgres, logger *logrus.Logger) *Service {
	s := &Service{index: index, logger: logger}
	if fallback != nil {
		s.fallback = fallback
		s.loader = fallback
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("search: index error, falling back to postgres")
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("search: postgres fallback failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject is a no-op while the index is absent or unhealthy; the nightly
// reindex catches up.
func (s *Service) IndexProject(_ context.Context, record ProjectRecord) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.IndexProjects(record)
}

func (s *Service) IndexTask(_ context.Context, record TaskRecord) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.IndexTasks(record)
}

func (s *Service) IndexUser(_ context.Context, record UserRecord) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.IndexUsers(record)
}

func (s *Service) Remove(_ context.Context, kind ResultType, id string) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.Delete(kind, id)
}

// ReindexAll pushes every searchable row from Postgres into the index and
// returns the number of records sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.indexReady() || s.loader == nil {
		return 0, nil
	}
	projects, tasks, users, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.index.IndexProjects(projects...); err != nil {
		return 0, fmt.Errorf("reindex projects: %w", err)
	}
	if err := s.index.IndexTasks(tasks...); err != nil {
		return len(projects), fmt.Errorf("reindex tasks: %w", err)
	}
	if err := s.index.IndexUsers(users...); err != nil {
		return len(projects) + len(tasks), fmt.Errorf("reindex users: %w", err)
	}
	return len(projects) + len(tasks) + len(users), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
