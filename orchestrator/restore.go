package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/burrow/netdev"
	"github.com/projecteru2/burrow/reconcile"
	"github.com/projecteru2/burrow/types"
	"github.com/projecteru2/burrow/utils"
)

// Restore runs at process startup: load the persisted registry and rebuild
// the allocators and the access layer from it. It never touches host
// resources, so it is safe to run from any command while other processes
// are mid-creation. Sweeping orphans is ReconcileHost's job.
func (o *Orchestrator) Restore(ctx context.Context) error {
	logger := log.WithFunc("orchestrator.Restore")

	if err := o.deps.Store.With(ctx, func(idx *Index) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		for id, vm := range idx.VMs {
			copied := *vm
			o.vms[id] = &copied
		}
		for name, id := range idx.Names {
			o.names[name] = id
		}
		return nil
	}); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	// Allocators and the access layer are never persisted: both are
	// rebuilt from the registry, so they cannot diverge from it.
	o.mu.RLock()
	restored := make([]*types.VM, 0, len(o.vms))
	for _, vm := range o.vms {
		restored = append(restored, vm)
		o.ips.Mark(vm.IP)
		o.ports.Mark(vm.Port)
	}
	o.mu.RUnlock()

	for _, vm := range restored {
		if err := o.deps.TCP.Start(vm.ID, vm.Port, o.guestTarget(vm)); err != nil {
			logger.Warnf(ctx, "restore forwarding for VM %s: %v", vm.ID, err)
		}
		if err := o.deps.UDP.Add(ctx, vm.ID, vm.Port, vm.IP); err != nil {
			logger.Warnf(ctx, "restore UDP rules for VM %s: %v", vm.ID, err)
		}
	}
	logger.Infof(ctx, "restored %d VM(s) from registry", len(restored))

	return nil
}

// ReconcileHost sweeps live OS resources against the recovered registry:
// orphaned hypervisor processes, TAP devices, and disk images left behind
// by a crash are terminated and removed. A resource is an orphan only from
// the registry's point of view, and a creation in another process clones
// its disk before the registry records it, so only long-running or
// explicitly invoked commands may sweep.
func (o *Orchestrator) ReconcileHost(ctx context.Context) ([]reconcile.Action, error) {
	o.mu.RLock()
	ownedIDs := make(map[string]struct{}, len(o.vms))
	ownedTaps := make(map[string]struct{}, len(o.vms))
	for id := range o.vms {
		ownedIDs[id] = struct{}{}
		ownedTaps[netdev.TapName(id)] = struct{}{}
	}
	o.mu.RUnlock()

	runner := reconcile.NewRunner(4)

	// Hypervisor processes, identified by their per-VM runtime directory.
	runner.Register(reconcile.Module{
		Name: "process",
		Scan: func(context.Context) ([]string, error) {
			return utils.ScanSubdirs(o.conf.VMsRunDir()), nil
		},
		Keep: ownedIDs,
		Remove: func(ctx context.Context, id string) error {
			if pid, err := utils.ReadPIDFile(o.conf.VMPIDFile(id)); err == nil &&
				utils.VerifyProcess(pid, filepath.Base(o.conf.FirecrackerBinary)) {
				if err := utils.TerminateProcess(ctx, pid, 5*time.Second); err != nil {
					return fmt.Errorf("terminate pid %d: %w", pid, err)
				}
			}
			return os.RemoveAll(o.conf.VMRunDir(id))
		},
	})

	// TAP devices carrying the orchestrator prefix.
	runner.Register(reconcile.Module{
		Name: "tap",
		Scan: func(context.Context) ([]string, error) {
			return o.deps.NetDevs.ListOwned()
		},
		Keep: ownedTaps,
		Remove: func(_ context.Context, name string) error {
			return o.deps.NetDevs.Delete(name)
		},
	})

	// Private disk images.
	runner.Register(reconcile.Module{
		Name: "disk",
		Scan: func(context.Context) ([]string, error) {
			return utils.ScanFileStems(o.conf.DisksDir(), ".ext4"), nil
		},
		Keep: ownedIDs,
		Remove: func(ctx context.Context, id string) error {
			return o.deps.Images.DeleteImage(ctx, o.conf.VMDiskPath(id))
		},
	})

	return runner.Run(ctx)
}
