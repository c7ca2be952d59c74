package forward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// NATManager maintains the kernel NAT rules that forward UDP traffic to
// VMs. UDP session semantics are simpler as stateless kernel rules than as
// a forwarding process. The in-memory rule map exists only so rules can be
// deterministically removed on VM deletion — it is disposable, never
// authoritative.
type NATManager struct {
	mu        sync.Mutex
	guestPort int
	rules     map[string][][]string
	// run executes one iptables invocation; replaceable in tests.
	run func(ctx context.Context, args ...string) error
}

// NewNATManager creates a manager rewriting UDP destinations to guestPort.
func NewNATManager(guestPort int) *NATManager {
	return &NATManager{
		guestPort: guestPort,
		rules:     map[string][][]string{},
		run:       runIptables,
	}
}

func runIptables(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "iptables", args...).CombinedOutput() //nolint:gosec
	if err != nil {
		return fmt.Errorf("iptables %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Add installs the DNAT rule (host port → VM ip:guestPort) and the
// return-path rule for a VM. Idempotent: kernel rules survive orchestrator
// restarts, so a rule that is already installed (probed with -C) is
// recorded but never appended a second time.
func (n *NATManager) Add(ctx context.Context, vmID string, port int, ip net.IP) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	specs := [][]string{
		{
			"-t", "nat", "PREROUTING", "-p", "udp",
			"--dport", strconv.Itoa(port),
			"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", ip, n.guestPort),
		},
		{
			"-t", "nat", "POSTROUTING", "-p", "udp",
			"-d", ip.String(), "--dport", strconv.Itoa(n.guestPort),
			"-j", "MASQUERADE",
		},
	}

	var applied [][]string
	for _, spec := range specs {
		if n.run(ctx, withOp(spec, "-C")...) == nil {
			continue // already in the kernel from a previous process
		}
		if err := n.run(ctx, withOp(spec, "-A")...); err != nil {
			// Roll back only what this call appended, never pre-existing rules.
			for _, a := range applied {
				_ = n.run(ctx, withOp(a, "-D")...)
			}
			return fmt.Errorf("install UDP rule for VM %s: %w", vmID, err)
		}
		applied = append(applied, spec)
	}
	n.rules[vmID] = specs
	return nil
}

// Remove deletes a VM's rules. Best-effort: every rule is attempted and
// errors are joined. Unknown ids are a no-op. Each spec is deleted until
// the kernel reports no more instances, draining duplicates an older
// process may have left behind.
func (n *NATManager) Remove(ctx context.Context, vmID string) error {
	n.mu.Lock()
	specs, ok := n.rules[vmID]
	delete(n.rules, vmID)
	n.mu.Unlock()
	if !ok {
		return nil
	}

	var errs []error
	for _, spec := range specs {
		if err := n.run(ctx, withOp(spec, "-D")...); err != nil {
			errs = append(errs, err)
			continue
		}
		for n.run(ctx, withOp(spec, "-D")...) == nil { //nolint:revive // drain duplicates
		}
	}
	return errors.Join(errs...)
}

// withOp inserts the iptables operation (-A/-D) before the chain name,
// which follows the "-t nat" table selector in every stored spec.
func withOp(spec []string, op string) []string {
	out := make([]string, 0, len(spec)+1)
	out = append(out, spec[:2]...)
	out = append(out, op)
	out = append(out, spec[2:]...)
	return out
}
