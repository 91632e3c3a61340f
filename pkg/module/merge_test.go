package module

import (
	"context"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
	"github.com/fluxcd/circles/pkg/store/storetest"
)

func TestMergeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := sqlstore.OpenTestDB(t)
	m := NewMerger(s, log.NewNopLogger())

	first := []circle.Module{{ID: "shop", Name: "shop", Components: []circle.ModuleComponent{
		{ID: "api", Name: "api"},
		{ID: "api", Name: "api again"},
	}, CreatedAt: storetest.Epoch}}
	require.NoError(t, m.Merge(ctx, first))

	more := []circle.Module{
		{ID: "shop", Name: "shop", Components: []circle.ModuleComponent{
			{ID: "web", Name: "web"},
			{ID: "api", Name: "renamed"},
		}},
		{ID: "blog", Name: "blog", Components: []circle.ModuleComponent{{ID: "cms", Name: "cms"}}},
	}
	require.NoError(t, m.Merge(ctx, more))
	once, err := s.GetModule(ctx, "shop")
	require.NoError(t, err)

	require.NoError(t, m.Merge(ctx, more))
	twice, err := s.GetModule(ctx, "shop")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, []circle.ModuleComponent{
		{ID: "api", Name: "api"},
		{ID: "web", Name: "web"},
	}, twice.Components)
	assert.True(t, storetest.Epoch.Equal(twice.CreatedAt))

	blog, err := s.GetModule(ctx, "blog")
	require.NoError(t, err)
	assert.Len(t, blog.Components, 1)
	assert.False(t, blog.CreatedAt.IsZero())
}

func TestMergeConcurrently(t *testing.T) {
	ctx := context.Background()
	s := sqlstore.OpenTestDB(t)
	m := NewMerger(s, log.NewNopLogger())

	var wg sync.WaitGroup
	for _, id := range []circle.ComponentID{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(id circle.ComponentID) {
			defer wg.Done()
			assert.NoError(t, m.Merge(ctx, []circle.Module{{
				ID:         "shop",
				Name:       "shop",
				Components: []circle.ModuleComponent{{ID: id, Name: string(id)}},
			}}))
		}(id)
	}
	wg.Wait()

	got, err := s.GetModule(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, got.Components, 5)
}

func TestMergeNothing(t *testing.T) {
	m := NewMerger(sqlstore.OpenTestDB(t), log.NewNopLogger())
	assert.NoError(t, m.Merge(context.Background(), nil))
}
