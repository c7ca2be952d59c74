package orchestrator

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/burrow/types"
)

// DeleteVM tears down a VM and releases every resource it held. Cleanup is
// best-effort and per-step idempotent: an OS-level failure is logged and
// the sequence continues, because an un-deletable VM is worse than one
// stray resource. Release completes synchronously, so a subsequent create
// can immediately reuse the freed IP and port.
func (o *Orchestrator) DeleteVM(ctx context.Context, id string) error {
	// Claim the VM atomically: a second delete of the same id finds the
	// registry entry gone and performs no OS-level side effects.
	o.mu.Lock()
	vm, ok := o.vms[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("VM %s: %w", id, types.ErrNotFound)
	}
	delete(o.vms, id)
	delete(o.names, vm.Name)
	o.mu.Unlock()

	logger := log.WithFunc("orchestrator.DeleteVM")

	// Forwarding first: tracked connections are forcibly closed before the
	// listener so no established session outlives the VM.
	o.deps.TCP.Stop(id)
	if err := o.deps.UDP.Remove(ctx, id); err != nil {
		logger.Warnf(ctx, "remove UDP rules for VM %s: %v", id, err)
	}
	if err := o.deps.Machines.Halt(ctx, vm); err != nil {
		logger.Warnf(ctx, "halt VM %s: %v", id, err)
	}
	if err := o.deps.NetDevs.Delete(vm.TapName); err != nil {
		logger.Warnf(ctx, "delete tap %s: %v", vm.TapName, err)
	}
	if err := o.deps.Images.DeleteImage(ctx, vm.DiskPath); err != nil {
		logger.Warnf(ctx, "delete image %s: %v", vm.DiskPath, err)
	}

	o.ips.Release(vm.IP)
	o.ports.Release(vm.Port)

	if err := o.persist(ctx); err != nil {
		logger.Warnf(ctx, "persist registry after deleting VM %s: %v", id, err)
	}

	logger.Infof(ctx, "VM %s (%s) deleted", id, vm.Name)
	o.emit(Event{Kind: EventVMDeleted, VMID: id, Name: vm.Name})
	return nil
}
