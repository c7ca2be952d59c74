package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResources is a concurrency-safe set of live resource ids.
type fakeResources struct {
	mu   sync.Mutex
	live map[string]struct{}
}

func newFakeResources(ids ...string) *fakeResources {
	f := &fakeResources{live: map[string]struct{}{}}
	for _, id := range ids {
		f.live[id] = struct{}{}
	}
	return f
}

func (f *fakeResources) scan(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.live {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeResources) remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
	return nil
}

func TestRunRemovesOnlyOrphans(t *testing.T) {
	procs := newFakeResources("vm-a", "vm-orphan")
	disks := newFakeResources("vm-a", "vm-orphan", "vm-b")

	r := NewRunner(4)
	r.Register(Module{
		Name: "process",
		Scan: procs.scan,
		Keep: map[string]struct{}{"vm-a": {}},
		Remove: procs.remove,
	})
	r.Register(Module{
		Name: "disk",
		Scan: disks.scan,
		Keep: map[string]struct{}{"vm-a": {}, "vm-b": {}},
		Remove: disks.remove,
	})

	actions, err := r.Run(context.Background())
	require.NoError(t, err)

	// Exactly one action per orphaned resource.
	require.Len(t, actions, 2)
	got := map[string]string{}
	for _, a := range actions {
		require.NoError(t, a.Err)
		got[a.Module] = a.ID
	}
	assert.Equal(t, map[string]string{"process": "vm-orphan", "disk": "vm-orphan"}, got)

	// Owned resources survive.
	left, _ := procs.scan(context.Background())
	assert.Equal(t, []string{"vm-a"}, left)
	left, _ = disks.scan(context.Background())
	assert.Equal(t, []string{"vm-a", "vm-b"}, left)
}

func TestRunScanFailureSkipsModuleOnly(t *testing.T) {
	disks := newFakeResources("vm-orphan")

	r := NewRunner(2)
	r.Register(Module{
		Name: "process",
		Scan: func(context.Context) ([]string, error) { return nil, fmt.Errorf("proc unavailable") },
	})
	r.Register(Module{
		Name: "disk",
		Scan: disks.scan,
		Keep: map[string]struct{}{},
		Remove: disks.remove,
	})

	actions, err := r.Run(context.Background())
	require.Error(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "disk", actions[0].Module)
	left, _ := disks.scan(context.Background())
	assert.Empty(t, left)
}

func TestRunCollectsRemoveErrors(t *testing.T) {
	r := NewRunner(2)
	r.Register(Module{
		Name: "disk",
		Scan: func(context.Context) ([]string, error) { return []string{"bad"}, nil },
		Remove: func(context.Context, string) error { return fmt.Errorf("busy") },
	})

	actions, err := r.Run(context.Background())
	require.Error(t, err)
	require.Len(t, actions, 1)
	assert.Error(t, actions[0].Err)
}
