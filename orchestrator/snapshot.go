package orchestrator

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/burrow/types"
)

// SnapshotVM clones a running VM's disk into a new template. The VM is
// paused only for the duration of the copy-on-write clone and resumed on
// every exit path — a failed clone must never leave the VM paused. The
// resulting template has the source VM's injected credentials stripped so
// it is reusable without leaking the key.
func (o *Orchestrator) SnapshotVM(ctx context.Context, id, templateName string) (types.TemplateInfo, error) {
	if err := types.ValidateName(templateName); err != nil {
		return types.TemplateInfo{}, err
	}

	// Serialized: the name conflict check and the clone must be one unit,
	// or two concurrent snapshots to the same name both pass Exists.
	o.snapshotMu.Lock()
	defer o.snapshotMu.Unlock()

	if o.deps.Templates.IsProtected(templateName) || o.deps.Templates.Exists(templateName) {
		return types.TemplateInfo{}, fmt.Errorf("template %s: %w", templateName, types.ErrConflict)
	}

	o.mu.RLock()
	vm, ok := o.vms[id]
	o.mu.RUnlock()
	if !ok {
		return types.TemplateInfo{}, fmt.Errorf("VM %s: %w", id, types.ErrNotFound)
	}

	cloneErr := o.withPaused(ctx, vm, func() error {
		return o.deps.Images.CloneToTemplate(ctx, vm.DiskPath, templateName)
	})
	if cloneErr != nil {
		return types.TemplateInfo{}, fmt.Errorf("clone to template %s: %w", templateName, cloneErr)
	}

	if err := o.deps.Images.ClearInjectedKey(ctx, templateName); err != nil {
		return types.TemplateInfo{}, fmt.Errorf("strip credentials from template %s: %w", templateName, err)
	}

	info, err := o.deps.Templates.Stat(templateName)
	if err != nil {
		return types.TemplateInfo{}, err
	}
	log.WithFunc("orchestrator.SnapshotVM").Infof(ctx, "VM %s snapshotted to template %s", id, templateName)
	o.emit(Event{Kind: EventTemplateCreated, VMID: id, Name: templateName})
	return info, nil
}

// withPaused runs fn between Pause and Resume. Resume is attempted
// unconditionally, even when fn fails; a resume failure is surfaced only
// when fn itself succeeded.
func (o *Orchestrator) withPaused(ctx context.Context, vm *types.VM, fn func() error) (err error) {
	if pauseErr := o.deps.Machines.Pause(ctx, vm); pauseErr != nil {
		return fmt.Errorf("pause: %w", pauseErr)
	}
	o.setState(vm.ID, types.VMStatePaused)

	defer func() {
		resumeErr := o.deps.Machines.Resume(ctx, vm)
		o.setState(vm.ID, types.VMStateRunning)
		if resumeErr != nil {
			log.WithFunc("orchestrator.withPaused").Warnf(ctx, "resume VM %s: %v", vm.ID, resumeErr)
			if err == nil {
				err = fmt.Errorf("resume: %w", resumeErr)
			}
		}
	}()

	return fn()
}

func (o *Orchestrator) setState(id string, state types.VMState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if vm, ok := o.vms[id]; ok {
		vm.State = state
	}
}
