package orchestrator

import (
	"fmt"
	"sort"

	"github.com/projecteru2/burrow/types"
)

// ListVMs returns sanitized views of all live VMs, oldest first. A VM mid
// creation is not listed until its creation fully completes.
func (o *Orchestrator) ListVMs() []types.VMView {
	o.mu.RLock()
	defer o.mu.RUnlock()

	views := make([]types.VMView, 0, len(o.vms))
	for _, vm := range o.vms {
		views = append(views, vm.View())
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// GetVM returns the sanitized view of one VM by id or name.
func (o *Orchestrator) GetVM(ref string) (types.VMView, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if vm, ok := o.vms[ref]; ok {
		return vm.View(), nil
	}
	if id, ok := o.names[ref]; ok {
		if vm, ok := o.vms[id]; ok {
			return vm.View(), nil
		}
	}
	return types.VMView{}, fmt.Errorf("VM %s: %w", ref, types.ErrNotFound)
}

// HasName reports whether a live VM carries the given name. Used by the
// gateway to gate on-demand certificate issuance; O(1) and side-effect-free.
func (o *Orchestrator) HasName(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.names[name]
	return ok
}
