// Package reconcile implements the startup orphan sweep: after the VM
// registry is restored, every live OS resource (hypervisor process, TAP
// device, disk image) that no recovered VM accounts for is forcibly removed.
// After the most pathological crash the host carries no abandoned resources,
// while VMs meant to outlive an orchestrator restart are left alone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/projecteru2/core/log"
)

// Module describes one class of OS resource that participates in the sweep.
type Module struct {
	Name string

	// Scan enumerates the live resource identifiers of this class.
	Scan func(ctx context.Context) ([]string, error)

	// Keep holds the identifiers owned by recovered VM records.
	Keep map[string]struct{}

	// Remove forcibly cleans up one orphaned resource.
	Remove func(ctx context.Context, id string) error
}

// Action records one reconciliation step taken, for logging and tests.
type Action struct {
	Module string
	ID     string
	Err    error
}

// Runner sweeps all registered modules.
type Runner struct {
	poolSize int
	modules  []Module
}

// NewRunner creates a Runner whose removals run on a pool of poolSize workers.
func NewRunner(poolSize int) *Runner {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Runner{poolSize: poolSize}
}

// Register adds a module to the sweep.
func (r *Runner) Register(m Module) {
	r.modules = append(r.modules, m)
}

// Run executes one sweep: scan each module, diff against its Keep set, and
// remove every orphan. Removals across modules run concurrently on a worker
// pool; each action is logged exactly once. Scan failures abort only the
// failing module — a host with a broken /proc should still get its TAPs and
// disks cleaned.
func (r *Runner) Run(ctx context.Context) ([]Action, error) {
	logger := log.WithFunc("reconcile.Run")

	pool, err := ants.NewPool(r.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		actions []Action
		errs    []error
	)

	for _, m := range r.modules {
		live, scanErr := m.Scan(ctx)
		if scanErr != nil {
			logger.Warnf(ctx, "scan %s: %v", m.Name, scanErr)
			errs = append(errs, fmt.Errorf("scan %s: %w", m.Name, scanErr))
			continue
		}
		for _, id := range live {
			if _, owned := m.Keep[id]; owned {
				continue
			}
			wg.Add(1)
			if submitErr := pool.Submit(func() {
				defer wg.Done()
				removeErr := m.Remove(ctx, id)
				if removeErr != nil {
					logger.Warnf(ctx, "remove orphan %s/%s: %v", m.Name, id, removeErr)
				} else {
					logger.Infof(ctx, "removed orphan %s/%s", m.Name, id)
				}
				mu.Lock()
				actions = append(actions, Action{Module: m.Name, ID: id, Err: removeErr})
				if removeErr != nil {
					errs = append(errs, fmt.Errorf("%s/%s: %w", m.Name, id, removeErr))
				}
				mu.Unlock()
			}); submitErr != nil {
				wg.Done()
				errs = append(errs, fmt.Errorf("submit %s/%s: %w", m.Name, id, submitErr))
			}
		}
	}

	wg.Wait()
	return actions, errors.Join(errs...)
}
