// Package orchestrator composes the allocators, the hypervisor controller,
// and the access layer into the VM lifecycle: create, delete, snapshot,
// startup recovery. It owns the VM registry; all shared mutable state is
// reached through its methods only.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/projecteru2/burrow/alloc"
	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/storage"
	"github.com/projecteru2/burrow/types"
)

// Machines drives the per-VM hypervisor process.
type Machines interface {
	Start(ctx context.Context, vm *types.VM, boot types.BootSpec) (pid int, socketPath string, err error)
	Pause(ctx context.Context, vm *types.VM) error
	Resume(ctx context.Context, vm *types.VM) error
	Halt(ctx context.Context, vm *types.VM) error
}

// NetDevices manages host-side TAP devices.
type NetDevices interface {
	Create(name string, hostAddr net.IP, mask net.IPMask) error
	Delete(name string) error
	Exists(name string) (bool, error)
	ListOwned() ([]string, error)
}

// TCPForwarders runs the per-VM TCP forwarding listeners.
type TCPForwarders interface {
	Start(vmID string, port int, target string) error
	Stop(vmID string)
}

// UDPRules manages the kernel NAT rules for UDP forwarding.
type UDPRules interface {
	Add(ctx context.Context, vmID string, port int, ip net.IP) error
	Remove(ctx context.Context, vmID string) error
}

// Templates answers template queries.
type Templates interface {
	Exists(name string) bool
	IsProtected(name string) bool
	Stat(name string) (types.TemplateInfo, error)
}

// Index is the persisted registry snapshot, sufficient to rebuild the
// allocators and the access layer after a restart.
type Index struct {
	VMs   map[string]*types.VM `json:"vms"`
	Names map[string]string    `json:"names"` // name → VM ID
}

// Init implements storage.Initer — initializes nil maps after deserialization.
func (idx *Index) Init() {
	if idx.VMs == nil {
		idx.VMs = make(map[string]*types.VM)
	}
	if idx.Names == nil {
		idx.Names = make(map[string]string)
	}
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Machines  Machines
	NetDevs   NetDevices
	TCP       TCPForwarders
	UDP       UDPRules
	Images    storage.Images
	Templates Templates
	Store     storage.Store[Index]
}

// Orchestrator is the aggregate root for all VMs on this host.
type Orchestrator struct {
	conf *config.Config
	deps Deps

	ips   *alloc.IPAllocator
	ports *alloc.PortAllocator

	// mu guards vms and names. createMu serializes creations only:
	// deletions and reads are not blocked by it, but two concurrent
	// creations are strictly ordered so the same IP, port, name, or
	// interface can never be allocated twice.
	mu       sync.RWMutex
	vms      map[string]*types.VM
	names    map[string]string
	createMu sync.Mutex

	// snapshotMu makes the template conflict check and the clone atomic
	// against other snapshots.
	snapshotMu sync.Mutex

	subsMu sync.RWMutex
	subs   []func(Event)
}

// New creates an Orchestrator. Call Restore before serving requests.
func New(conf *config.Config, deps Deps) (*Orchestrator, error) {
	ips, err := alloc.NewIPAllocator(conf.Subnet)
	if err != nil {
		return nil, fmt.Errorf("ip allocator: %w", err)
	}
	return &Orchestrator{
		conf:  conf,
		deps:  deps,
		ips:   ips,
		ports: alloc.NewPortAllocator(conf.PortBase, conf.PortCount),
		vms:   map[string]*types.VM{},
		names: map[string]string{},
	}, nil
}

// newID returns a fresh VM id: a UUID rendered as 32 hex chars, so derived
// interface names stay within IFNAMSIZ.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// persist writes the current registry through the store.
func (o *Orchestrator) persist(ctx context.Context) error {
	o.mu.RLock()
	snapshot := Index{
		VMs:   make(map[string]*types.VM, len(o.vms)),
		Names: make(map[string]string, len(o.names)),
	}
	for id, vm := range o.vms {
		copied := *vm
		snapshot.VMs[id] = &copied
	}
	for name, id := range o.names {
		snapshot.Names[name] = id
	}
	o.mu.RUnlock()

	return o.deps.Store.Update(ctx, func(idx *Index) error {
		*idx = snapshot
		return nil
	})
}

// guestTarget returns the "ip:port" the TCP forwarder dials inside the VM.
func (o *Orchestrator) guestTarget(vm *types.VM) string {
	return fmt.Sprintf("%s:%d", vm.IP, o.conf.GuestPort)
}
