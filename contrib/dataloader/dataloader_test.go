package dataloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   any
	Body string
}

type pivot struct {
	ID    int
	TagID any
}

func TestOrderByKeys(t *testing.T) {
	t.Parallel()

	keyFn := func(n *note) any { return n.ID }

	t.Run("all keys found", func(t *testing.T) {
		t.Parallel()
		keys := []any{int64(1), "b2", int64(3)}
		values := []*note{
			{ID: int64(3), Body: "third"},
			{ID: int64(1), Body: "first"},
			{ID: "b2", Body: "second"},
		}

		result, errs := OrderByKeys(keys, values, keyFn)

		require.Len(t, result, 3)
		require.Len(t, errs, 3)
		assert.Equal(t, "first", result[0].Body)
		assert.Equal(t, "second", result[1].Body)
		assert.Equal(t, "third", result[2].Body)
		for _, err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("some keys missing", func(t *testing.T) {
		t.Parallel()
		keys := []any{int64(1), int64(2)}
		values := []*note{{ID: int64(1), Body: "first"}}

		result, errs := OrderByKeys(keys, values, keyFn)

		require.Len(t, result, 2)
		assert.Equal(t, "first", result[0].Body)
		assert.Nil(t, result[1])
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], ErrNotFound)
	})

	t.Run("key types must match", func(t *testing.T) {
		t.Parallel()
		_, errs := OrderByKeys([]any{1}, []*note{{ID: int64(1)}}, keyFn)
		assert.ErrorIs(t, errs[0], ErrNotFound)
	})

	t.Run("empty keys", func(t *testing.T) {
		t.Parallel()
		result, errs := OrderByKeys([]any{}, []*note{{ID: int64(1)}}, keyFn)
		assert.Empty(t, result)
		assert.Empty(t, errs)
	})
}

func TestGroupByKey(t *testing.T) {
	t.Parallel()

	keyFn := func(p *pivot) any { return p.TagID }

	t.Run("groups by key", func(t *testing.T) {
		t.Parallel()
		pivots := []*pivot{
			{ID: 1, TagID: int64(10)},
			{ID: 2, TagID: int64(10)},
			{ID: 3, TagID: int64(20)},
			{ID: 4, TagID: int64(10)},
		}

		grouped := GroupByKey(pivots, keyFn)

		require.Len(t, grouped[int64(10)], 3)
		require.Len(t, grouped[int64(20)], 1)
		assert.Equal(t, 1, grouped[int64(10)][0].ID)
		assert.Equal(t, 2, grouped[int64(10)][1].ID)
		assert.Equal(t, 4, grouped[int64(10)][2].ID)
		assert.Equal(t, 3, grouped[int64(20)][0].ID)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, GroupByKey([]*pivot{}, keyFn))
	})
}

func TestKeys(t *testing.T) {
	t.Parallel()

	pivots := []*pivot{
		{ID: 1, TagID: int64(20)},
		{ID: 2, TagID: int64(10)},
		{ID: 3, TagID: int64(20)},
	}
	assert.Equal(t, []any{int64(20), int64(10)}, Keys(pivots, func(p *pivot) any { return p.TagID }))
	assert.Empty(t, Keys([]*pivot{}, func(p *pivot) any { return p.TagID }))
}
