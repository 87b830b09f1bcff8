package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	added, err := s.Add(ctx, BasicObject{ID: 1, Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, &BasicObject{ID: 1, Name: "first"}, added)

	_, err = s.Add(ctx, BasicObject{ID: 1, Name: "again"})
	assert.ErrorIs(t, err, ErrExists)

	updated, err := s.Update(ctx, BasicObject{ID: 1, Name: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Name)

	missing, err := s.Update(ctx, BasicObject{ID: 9, Name: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &BasicObject{ID: 1, Name: "updated"}, got)
}

func TestStoreGetManyKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, o := range []BasicObject{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}} {
		_, err := s.Add(ctx, o)
		require.NoError(t, err)
	}

	objs, err := s.GetMany(ctx, []int{2, 3, 1, 2})
	require.NoError(t, err)
	require.Len(t, objs, 4)
	assert.Equal(t, "b", objs[0].Name)
	assert.Nil(t, objs[1])
	assert.Equal(t, "a", objs[2].Name)
	assert.Equal(t, "b", objs[3].Name)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*BasicObject{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, list)
}

func TestStoreListEmpty(t *testing.T) {
	list, err := openStore(t).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
