package orchestrator

// EventKind identifies a state transition the orchestrator announces.
type EventKind string

const (
	EventVMCreated       EventKind = "vm-created"
	EventVMDeleted       EventKind = "vm-deleted"
	EventTemplateCreated EventKind = "template-created"
)

// Event is emitted after a state transition has fully succeeded. The
// gateway collaborator subscribes to refresh its routes; making the
// notification explicit keeps that coupling visible.
type Event struct {
	Kind EventKind
	VMID string
	Name string
}

// Subscribe registers fn to receive all future events. Delivery is
// synchronous, in emission order; subscribers must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	o.subs = append(o.subs, fn)
}

func (o *Orchestrator) emit(ev Event) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, fn := range o.subs {
		fn(ev)
	}
}
