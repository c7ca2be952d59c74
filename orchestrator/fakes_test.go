package orchestrator_test

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/projecteru2/burrow/orchestrator"
	"github.com/projecteru2/burrow/types"
)

// memStore is an in-memory storage.Store[orchestrator.Index].
type memStore struct {
	mu  sync.Mutex
	idx orchestrator.Index
}

func newMemStore() *memStore {
	s := &memStore{}
	s.idx.Init()
	return s
}

func (s *memStore) With(_ context.Context, fn func(*orchestrator.Index) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.idx)
}

func (s *memStore) Update(ctx context.Context, fn func(*orchestrator.Index) error) error {
	return s.With(ctx, fn)
}

type fakeMachines struct {
	mu       sync.Mutex
	nextPID  int
	startErr error
	pauses   map[string]int
	resumes  map[string]int
	halts    map[string]int
}

func newFakeMachines() *fakeMachines {
	return &fakeMachines{
		nextPID: 1000,
		pauses:  map[string]int{},
		resumes: map[string]int{},
		halts:   map[string]int{},
	}
}

func (m *fakeMachines) Start(_ context.Context, vm *types.VM, _ types.BootSpec) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return 0, "", m.startErr
	}
	m.nextPID++
	return m.nextPID, "/run/test/" + vm.ID + "/api.sock", nil
}

func (m *fakeMachines) Pause(_ context.Context, vm *types.VM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses[vm.ID]++
	return nil
}

func (m *fakeMachines) Resume(_ context.Context, vm *types.VM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[vm.ID]++
	return nil
}

func (m *fakeMachines) Halt(_ context.Context, vm *types.VM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halts[vm.ID]++
	return nil
}

type fakeNetDevs struct {
	mu   sync.Mutex
	live map[string]struct{}
}

func newFakeNetDevs(existing ...string) *fakeNetDevs {
	f := &fakeNetDevs{live: map[string]struct{}{}}
	for _, name := range existing {
		f.live[name] = struct{}{}
	}
	return f
}

func (f *fakeNetDevs) Create(name string, _ net.IP, _ net.IPMask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[name]; ok {
		return fmt.Errorf("tap %s exists", name)
	}
	f.live[name] = struct{}{}
	return nil
}

func (f *fakeNetDevs) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, name)
	return nil
}

func (f *fakeNetDevs) Exists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[name]
	return ok, nil
}

func (f *fakeNetDevs) ListOwned() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.live {
		names = append(names, name)
	}
	return names, nil
}

type fakeTCP struct {
	mu      sync.Mutex
	active  map[string]int // vmID → port
	stopped map[string]int
}

func newFakeTCP() *fakeTCP {
	return &fakeTCP{active: map[string]int{}, stopped: map[string]int{}}
}

func (f *fakeTCP) Start(vmID string, port int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[vmID]; ok {
		return fmt.Errorf("forwarder for %s exists", vmID)
	}
	f.active[vmID] = port
	return nil
}

func (f *fakeTCP) Stop(vmID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, vmID)
	f.stopped[vmID]++
}

type fakeUDP struct {
	mu    sync.Mutex
	rules map[string]string
}

func newFakeUDP() *fakeUDP { return &fakeUDP{rules: map[string]string{}} }

func (f *fakeUDP) Add(_ context.Context, vmID string, port int, ip net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[vmID] = fmt.Sprintf("%d→%s", port, ip)
	return nil
}

func (f *fakeUDP) Remove(_ context.Context, vmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rules, vmID)
	return nil
}

type fakeImages struct {
	mu          sync.Mutex
	cloned      map[string]string // destPath → source template
	injected    map[string]string // imagePath → key
	templates   *fakeTemplates
	cloneTplErr error
	deletes     map[string]int

	// Optional hooks for concurrency tests: CloneToTemplate signals
	// cloneStarted and then blocks until cloneGate is closed.
	cloneStarted chan struct{}
	cloneGate    chan struct{}
}

func newFakeImages(tpls *fakeTemplates) *fakeImages {
	return &fakeImages{
		cloned:    map[string]string{},
		injected:  map[string]string{},
		templates: tpls,
		deletes:   map[string]int{},
	}
}

func (f *fakeImages) CloneTemplate(_ context.Context, templateName, destPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cloned[destPath] = templateName
	return nil
}

func (f *fakeImages) InjectKey(_ context.Context, imagePath, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected[imagePath] = publicKey
	return nil
}

func (f *fakeImages) CloneToTemplate(_ context.Context, _, templateName string) error {
	if f.cloneStarted != nil {
		select {
		case f.cloneStarted <- struct{}{}:
		default:
		}
	}
	if f.cloneGate != nil {
		<-f.cloneGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cloneTplErr != nil {
		return f.cloneTplErr
	}
	f.templates.add(templateName, true)
	return nil
}

func (f *fakeImages) ClearInjectedKey(_ context.Context, templateName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates.add(templateName, false)
	return nil
}

func (f *fakeImages) DeleteImage(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cloned, path)
	f.deletes[path]++
	return nil
}

type fakeTemplates struct {
	mu        sync.Mutex
	existing  map[string]bool // name → credentials still present
	protected map[string]struct{}
}

func newFakeTemplates(existing ...string) *fakeTemplates {
	f := &fakeTemplates{existing: map[string]bool{}, protected: map[string]struct{}{}}
	for _, name := range existing {
		f.existing[name] = false
	}
	return f
}

func (f *fakeTemplates) add(name string, withKey bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[name] = withKey
}

func (f *fakeTemplates) Exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.existing[name]
	return ok
}

func (f *fakeTemplates) IsProtected(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.protected[name]
	return ok
}

func (f *fakeTemplates) Stat(name string) (types.TemplateInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.existing[name]; !ok {
		return types.TemplateInfo{}, fmt.Errorf("template %s: %w", name, types.ErrNotFound)
	}
	return types.TemplateInfo{Name: name, Size: 1 << 20}, nil
}
