package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/burrow/types"
)

func TestPortAllocateDeterministic(t *testing.T) {
	a := NewPortAllocator(42000, 50)
	p1, err := a.AllocateFor("vm-x")
	require.NoError(t, err)
	a.Release(p1)
	p2, err := a.AllocateFor("vm-x")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, a.PreferredPort("vm-x"), p1)
}

func TestPortProbeAdvancesOnCollision(t *testing.T) {
	a := NewPortAllocator(42000, 50)
	p1, err := a.AllocateFor("vm-x")
	require.NoError(t, err)

	// Same id again: preferred port is taken, probe yields the next in range.
	p2, err := a.AllocateFor("vm-x")
	require.NoError(t, err)
	want := 42000 + (p1-42000+1)%50
	assert.Equal(t, want, p2)
}

func TestPortProbeWrapsAtBoundary(t *testing.T) {
	a := NewPortAllocator(42000, 4)
	// Occupy the top of the range so a probe starting there must wrap.
	a.Mark(42003)
	a.Mark(42002)

	var id string
	for _, candidate := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		if a.PreferredPort(candidate) == 42003 {
			id = candidate
			break
		}
	}
	if id == "" {
		t.Skip("no candidate id hashes to the range top")
	}
	p, err := a.AllocateFor(id)
	require.NoError(t, err)
	assert.Equal(t, 42000, p)
}

func TestPortExhaustion(t *testing.T) {
	a := NewPortAllocator(42000, 3)
	for range 3 {
		_, err := a.AllocateFor("vm-x")
		require.NoError(t, err)
	}
	_, err := a.AllocateFor("vm-x")
	require.ErrorIs(t, err, types.ErrExhausted)
}

func TestPortReleaseMakesPortReusable(t *testing.T) {
	a := NewPortAllocator(42000, 1)
	p, err := a.AllocateFor("vm-x")
	require.NoError(t, err)
	_, err = a.AllocateFor("vm-y")
	require.ErrorIs(t, err, types.ErrExhausted)

	a.Release(p)
	p2, err := a.AllocateFor("vm-y")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}
