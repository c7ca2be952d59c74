package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/burrow/names"
	"github.com/projecteru2/burrow/netdev"
	"github.com/projecteru2/burrow/types"
)

// CreateRequest carries the caller's input for a new VM.
type CreateRequest struct {
	Template  string
	Name      string // optional; generated when empty
	PublicKey string
	Sizing    types.Sizing // zero values filled from config defaults
}

// CreateVM provisions a new VM: allocate host resources, clone the
// template's disk, start the hypervisor, wire up forwarding, and register.
// The operation is all-or-nothing: any failure rolls back every resource
// acquired so far, and the VM is only visible to listers on full success.
//
// The creation lock is held through allocation, disk cloning, and
// hypervisor start. Releasing it earlier would raise creation throughput,
// but holding it end to end makes allocation races structurally impossible.
func (o *Orchestrator) CreateVM(ctx context.Context, req CreateRequest) (types.VMView, error) {
	o.createMu.Lock()
	defer o.createMu.Unlock()

	// Validation first — nothing below runs before the request is sound.
	if err := types.ValidateName(req.Template); err != nil {
		return types.VMView{}, err
	}
	if !o.deps.Templates.Exists(req.Template) {
		return types.VMView{}, fmt.Errorf("template %s: %w", req.Template, types.ErrNotFound)
	}
	name, err := o.resolveName(req.Name)
	if err != nil {
		return types.VMView{}, err
	}

	id := newID()
	sizing := o.fillSizing(req.Sizing)

	// Compensating rollback: undo steps accumulate as resources are
	// acquired and run in reverse on any failure.
	var undo []func()
	rollback := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return cause
	}

	ip, err := o.ips.Allocate()
	if err != nil {
		return types.VMView{}, err
	}
	undo = append(undo, func() { o.ips.Release(ip) })

	port, err := o.ports.AllocateFor(id)
	if err != nil {
		return types.VMView{}, rollback(err)
	}
	undo = append(undo, func() { o.ports.Release(port) })

	tapName := netdev.TapName(id)
	if live, existsErr := o.deps.NetDevs.Exists(tapName); existsErr != nil {
		return types.VMView{}, rollback(fmt.Errorf("check tap %s: %w", tapName, existsErr))
	} else if live {
		return types.VMView{}, rollback(fmt.Errorf("tap %s: %w", tapName, types.ErrConflict))
	}

	vm := &types.VM{
		ID:        id,
		Name:      name,
		Template:  req.Template,
		State:     types.VMStateRunning,
		IP:        ip,
		Port:      port,
		TapName:   tapName,
		DiskPath:  o.conf.VMDiskPath(id),
		Sizing:    sizing,
		CreatedAt: time.Now(),
	}

	if err := o.deps.Images.CloneTemplate(ctx, req.Template, vm.DiskPath); err != nil {
		return types.VMView{}, rollback(fmt.Errorf("clone template: %w", err))
	}
	undo = append(undo, func() { _ = o.deps.Images.DeleteImage(ctx, vm.DiskPath) })

	if err := o.deps.Images.InjectKey(ctx, vm.DiskPath, req.PublicKey); err != nil {
		return types.VMView{}, rollback(fmt.Errorf("inject key: %w", err))
	}

	if err := o.deps.NetDevs.Create(tapName, o.ips.Gateway(), o.ips.Netmask()); err != nil {
		return types.VMView{}, rollback(fmt.Errorf("create tap: %w", err))
	}
	undo = append(undo, func() { _ = o.deps.NetDevs.Delete(tapName) })

	pid, socketPath, err := o.deps.Machines.Start(ctx, vm, types.BootSpec{
		KernelPath: o.conf.KernelPath,
		DiskPath:   vm.DiskPath,
		TapName:    tapName,
		MAC:        netdev.MACAddr(id),
		IP:         ip,
		Gateway:    o.ips.Gateway(),
		Netmask:    o.ips.Netmask(),
		Sizing:     sizing,
	})
	if err != nil {
		return types.VMView{}, rollback(fmt.Errorf("start hypervisor: %w", err))
	}
	vm.PID = pid
	vm.SocketPath = socketPath
	undo = append(undo, func() { _ = o.deps.Machines.Halt(ctx, vm) })

	if err := o.deps.TCP.Start(id, port, o.guestTarget(vm)); err != nil {
		return types.VMView{}, rollback(fmt.Errorf("start forwarding: %w", err))
	}
	undo = append(undo, func() { o.deps.TCP.Stop(id) })

	if err := o.deps.UDP.Add(ctx, id, port, ip); err != nil {
		return types.VMView{}, rollback(fmt.Errorf("install UDP rules: %w", err))
	}
	undo = append(undo, func() { _ = o.deps.UDP.Remove(ctx, id) })

	// Registry insertion makes the VM visible; persist before announcing.
	o.mu.Lock()
	o.vms[id] = vm
	o.names[name] = id
	o.mu.Unlock()

	if err := o.persist(ctx); err != nil {
		o.mu.Lock()
		delete(o.vms, id)
		delete(o.names, name)
		o.mu.Unlock()
		return types.VMView{}, rollback(fmt.Errorf("persist registry: %w", err))
	}

	log.WithFunc("orchestrator.CreateVM").Infof(ctx, "VM %s (%s) created: ip=%s port=%d", id, name, ip, port)
	o.emit(Event{Kind: EventVMCreated, VMID: id, Name: name})
	return vm.View(), nil
}

// resolveName validates a caller-supplied name or generates a free one.
// Called with createMu held, so uniqueness cannot race another creation.
func (o *Orchestrator) resolveName(requested string) (string, error) {
	if requested != "" {
		if err := types.ValidateName(requested); err != nil {
			return "", err
		}
		if o.HasName(requested) {
			return "", fmt.Errorf("VM name %q: %w", requested, types.ErrConflict)
		}
		return requested, nil
	}
	return names.Generate(o.HasName), nil
}

func (o *Orchestrator) fillSizing(s types.Sizing) types.Sizing {
	if s.VCPUs <= 0 {
		s.VCPUs = o.conf.DefaultVCPUs
	}
	if s.MemoryMB <= 0 {
		s.MemoryMB = o.conf.DefaultMemoryMB
	}
	return s
}
