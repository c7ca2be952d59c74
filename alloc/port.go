package alloc

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/projecteru2/burrow/types"
)

// PortAllocator hands out host forwarding ports using deterministic
// hash-then-probe: the same VM id always prefers the same port, and when
// that port is taken the probe walks forward (wrapping at the range
// boundary) to the next free one. Deterministic assignment keeps port
// layouts debuggable without a persisted port table.
type PortAllocator struct {
	mu    sync.Mutex
	base  int
	count int
	used  map[int]struct{}
}

// NewPortAllocator creates an allocator over [base, base+count).
func NewPortAllocator(base, count int) *PortAllocator {
	return &PortAllocator{base: base, count: count, used: map[int]struct{}{}}
}

// PreferredPort returns the port the given VM id hashes to. Pure; exported
// for debuggability.
func (a *PortAllocator) PreferredPort(vmID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(vmID))
	return a.base + int(h.Sum32()%uint32(a.count)) //nolint:gosec
}

// AllocateFor probes from the id's preferred port until a free port is
// found. Returns ErrExhausted when the probe wraps back to its start.
func (a *PortAllocator) AllocateFor(vmID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.PreferredPort(vmID)
	for i := 0; i < a.count; i++ {
		port := a.base + (start-a.base+i)%a.count
		if _, taken := a.used[port]; taken {
			continue
		}
		a.used[port] = struct{}{}
		return port, nil
	}
	return 0, fmt.Errorf("no free port in [%d,%d): %w", a.base, a.base+a.count, types.ErrExhausted)
}

// Release returns a port to the pool.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, port)
}

// Mark records a port as in use. Used to rebuild allocator state from the
// registry at startup.
func (a *PortAllocator) Mark(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used[port] = struct{}{}
}
