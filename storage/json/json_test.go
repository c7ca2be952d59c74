package json

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Counter int               `json:"counter"`
	Tags    map[string]string `json:"tags"`
}

func (r *record) Init() {
	if r.Tags == nil {
		r.Tags = map[string]string{}
	}
}

func newTestStore(t *testing.T) *Store[record] {
	t.Helper()
	dir := t.TempDir()
	return New[record](filepath.Join(dir, "data.lock"), filepath.Join(dir, "data.json"))
}

func TestWithMissingFile(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.With(context.Background(), func(r *record) error {
		assert.Zero(t, r.Counter)
		assert.NotNil(t, r.Tags) // Init ran on the zero value
		return nil
	}))
}

func TestUpdateRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(r *record) error {
		r.Counter = 7
		r.Tags["env"] = "test"
		return nil
	}))

	require.NoError(t, store.With(ctx, func(r *record) error {
		assert.Equal(t, 7, r.Counter)
		assert.Equal(t, "test", r.Tags["env"])
		return nil
	}))
}

func TestUpdateErrorDiscardsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(r *record) error {
		r.Counter = 1
		return nil
	}))

	boom := errors.New("boom")
	err := store.Update(ctx, func(r *record) error {
		r.Counter = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.With(ctx, func(r *record) error {
		assert.Equal(t, 1, r.Counter)
		return nil
	}))
}

func TestCorruptFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.filePath, []byte("{not json"), 0o644))

	err := store.With(context.Background(), func(*record) error { return nil })
	assert.Error(t, err)
}

func TestConcurrentUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, func(r *record) error {
				r.Counter++
				return nil
			}))
		}()
	}
	wg.Wait()

	require.NoError(t, store.With(ctx, func(r *record) error {
		assert.Equal(t, n, r.Counter)
		return nil
	}))
}
