package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/burrow/types"
)

func TestIPAllocateSkipsReserved(t *testing.T) {
	a, err := NewIPAllocator("172.30.0.0/24")
	require.NoError(t, err)

	assert.Equal(t, "172.30.0.1", a.Gateway().String())

	ip, err := a.Allocate()
	require.NoError(t, err)
	// Network and gateway are reserved; the first free host is .2.
	assert.Equal(t, "172.30.0.2", ip.String())
}

func TestIPAllocateFirstFree(t *testing.T) {
	a, err := NewIPAllocator("172.30.0.0/29")
	require.NoError(t, err)

	first, err := a.Allocate()
	require.NoError(t, err)
	second, err := a.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, first.String(), second.String())

	// Releasing the first address makes it the next allocation again.
	a.Release(first)
	third, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, first.String(), third.String())
}

func TestIPExhaustion(t *testing.T) {
	// /30 has 4 addresses: network, gateway, one host, broadcast.
	a, err := NewIPAllocator("172.30.0.0/30")
	require.NoError(t, err)

	_, err = a.Allocate()
	require.NoError(t, err)
	_, err = a.Allocate()
	require.ErrorIs(t, err, types.ErrExhausted)
}

func TestIPMarkRebuildsState(t *testing.T) {
	a, err := NewIPAllocator("172.30.0.0/24")
	require.NoError(t, err)

	ip, err := a.Allocate()
	require.NoError(t, err)

	rebuilt, err := NewIPAllocator("172.30.0.0/24")
	require.NoError(t, err)
	rebuilt.Mark(ip)

	next, err := rebuilt.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, ip.String(), next.String())
}

func TestIPRejectsIPv6(t *testing.T) {
	_, err := NewIPAllocator("fd00::/64")
	require.ErrorIs(t, err, types.ErrInvalid)
}
