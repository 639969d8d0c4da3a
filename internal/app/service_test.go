package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/api/internal/cache"
	"stride/api/internal/rbac"
)

type countView struct {
	Count int `json:"count"`
}

func TestCachedServesRepeatReadsFromCache(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	actor := sessionFor(ms.addUser("admin", rbac.RoleAdmin))

	loads := 0
	load := func(context.Context) (*countView, error) {
		loads++
		return &countView{Count: loads}, nil
	}
	tags := []string{cache.TagUsers}

	first, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	second, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assert.Equal(t, first.Count, second.Count)

	svc.invalidate(ctx, cache.TagUsers)
	third, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, third.Count)
}

// A mutation that lands while a view is loading must not leave the view that
// was read before it in the cache.
func TestCachedDropsViewLoadedAcrossInvalidation(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	actor := sessionFor(ms.addUser("admin", rbac.RoleAdmin))

	loads := 0
	load := func(ctx context.Context) (*countView, error) {
		loads++
		view := &countView{Count: loads}
		if loads == 1 {
			svc.invalidate(ctx, cache.TagUsers)
		}
		return view, nil
	}
	tags := []string{cache.TagUsers}

	stale, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Count)

	fresh, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "view read across an invalidation was cached")
	assert.Equal(t, 2, fresh.Count)

	again, err := cached(ctx, svc, actor, "user_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, again.Count)
}

func TestMutationInvalidatesCachedViews(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	svc := newTestService(t, ms)
	admin := sessionFor(ms.addUser("admin", rbac.RoleAdmin))

	loads := 0
	load := func(context.Context) (*countView, error) {
		loads++
		return &countView{Count: len(ms.departments)}, nil
	}
	tags := []string{cache.TagDepartments}

	before, err := cached(ctx, svc, admin, "department_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Count)

	result := svc.CreateDepartment(ctx, admin, DepartmentInput{Name: "Ops"})
	require.True(t, result.Success, result.Error)

	after, err := cached(ctx, svc, admin, "department_count", nil, tags, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 1, after.Count)
}
