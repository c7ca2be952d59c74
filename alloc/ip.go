// Package alloc holds the host resource allocators. Allocators are pure,
// lock-protected registries: they make no OS calls, and their state is
// rebuilt from the VM registry at startup rather than persisted separately,
// so the allocators can never diverge from the registry.
package alloc

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/projecteru2/burrow/types"
)

// IPAllocator hands out addresses from a private IPv4 range. The network
// address, the gateway (first host), and the broadcast address are never
// allocated.
type IPAllocator struct {
	mu      sync.Mutex
	network *net.IPNet
	gateway net.IP
	used    map[uint32]struct{}
}

// NewIPAllocator creates an allocator over the given CIDR range.
func NewIPAllocator(cidr string) (*IPAllocator, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet %q: %w", cidr, err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("subnet %q: %w: IPv4 required", cidr, types.ErrInvalid)
	}
	gw := ipFromUint(ipToUint(network.IP) + 1)
	return &IPAllocator{
		network: network,
		gateway: gw,
		used:    map[uint32]struct{}{},
	}, nil
}

// Gateway returns the reserved gateway address of the range.
func (a *IPAllocator) Gateway() net.IP { return a.gateway }

// Netmask returns the range's mask.
func (a *IPAllocator) Netmask() net.IPMask { return a.network.Mask }

// Allocate scans the range for the first free address.
func (a *IPAllocator) Allocate() (net.IP, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	base := ipToUint(a.network.IP)
	ones, bits := a.network.Mask.Size()
	size := uint32(1) << (bits - ones)

	// Skip network (+0), gateway (+1); stop before broadcast.
	for off := uint32(2); off < size-1; off++ {
		candidate := base + off
		if _, taken := a.used[candidate]; taken {
			continue
		}
		a.used[candidate] = struct{}{}
		return ipFromUint(candidate), nil
	}
	return nil, fmt.Errorf("no free IP in %s: %w", a.network, types.ErrExhausted)
}

// Release returns an address to the pool.
func (a *IPAllocator) Release(ip net.IP) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, ipToUint(ip))
}

// Mark records an address as in use. Used to rebuild allocator state from
// the registry at startup.
func (a *IPAllocator) Mark(ip net.IP) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used[ipToUint(ip)] = struct{}{}
}

func ipToUint(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func ipFromUint(v uint32) net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
