// Package cache holds rendered read-query views. Entries are tagged by the entity
// sets they were built from so a mutation can drop every view it made stale.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrCacheMiss = errors.New("cache miss")

// Tags group views by the entities they read.
const (
	TagUsers        = "users"
	TagDepartments  = "departments"
	TagTeams        = "teams"
	TagProjects     = "projects"
	TagSprints      = "sprints"
	TagTasks        = "tasks"
	TagTimesheets   = "timesheets"
	TagPTO          = "pto"
	TagAppraisals   = "appraisals"
	TagIntegrations = "integrations"
	TagSettings     = "settings"
	TagAudit        = "audit"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, tags ...string) error
	Invalidate(ctx context.Context, tags ...string) error
}

// LRU is the in-process Cache used when Redis is not configured.
type LRU struct {
	entries *lru.LRU[string, []byte]

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 1024
	}
	c := &LRU{tags: make(map[string]map[string]struct{})}
	c.entries = lru.NewLRU[string, []byte](size, c.onEvict, ttl)
	return c
}

func (c *LRU) onEvict(key string, _ []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tag, keys := range c.tags {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte, tags ...string) error {
	c.entries.Add(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *LRU) Invalidate(_ context.Context, tags ...string) error {
	var stale []string
	c.mu.Lock()
	for _, tag := range tags {
		for key := range c.tags[tag] {
			stale = append(stale, key)
		}
		delete(c.tags, tag)
	}
	c.mu.Unlock()

	// Remove fires onEvict, which takes the lock.
	for _, key := range stale {
		c.entries.Remove(key)
	}
	return nil
}

func (c *LRU) Len() int { return c.entries.Len() }
