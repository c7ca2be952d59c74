package forward

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKernel simulates the kernel NAT table: -C succeeds only when the rule
// is present, -A appends (duplicates allowed, as in the real kernel), -D
// removes one matching instance.
type fakeKernel struct {
	rules []string
	calls int
	fail  func(args []string) error
}

func (k *fakeKernel) run(_ context.Context, args ...string) error {
	k.calls++
	if k.fail != nil {
		if err := k.fail(args); err != nil {
			return err
		}
	}
	op := args[2]
	spec := strings.Join(slices.Concat(args[:2], args[3:]), " ")
	switch op {
	case "-C":
		if slices.Contains(k.rules, spec) {
			return nil
		}
		return fmt.Errorf("iptables: no such rule")
	case "-A":
		k.rules = append(k.rules, spec)
		return nil
	case "-D":
		for i, rule := range k.rules {
			if rule == spec {
				k.rules = slices.Delete(k.rules, i, i+1)
				return nil
			}
		}
		return fmt.Errorf("iptables: no such rule")
	}
	return fmt.Errorf("unexpected op %s", op)
}

func newTestNAT(guestPort int, k *fakeKernel) *NATManager {
	n := NewNATManager(guestPort)
	n.run = k.run
	return n
}

func TestNATAddInstallsRewriteAndReturnPath(t *testing.T) {
	k := &fakeKernel{}
	n := newTestNAT(60000, k)

	require.NoError(t, n.Add(context.Background(), "vm-1", 42007, net.ParseIP("172.30.0.5")))
	require.Len(t, k.rules, 2)

	assert.Contains(t, k.rules[0], "PREROUTING")
	assert.Contains(t, k.rules[0], "--dport 42007")
	assert.Contains(t, k.rules[0], "--to-destination 172.30.0.5:60000")

	assert.Contains(t, k.rules[1], "POSTROUTING")
	assert.Contains(t, k.rules[1], "MASQUERADE")
}

func TestNATAddIdempotentAcrossRestart(t *testing.T) {
	ctx := context.Background()
	k := &fakeKernel{}

	// First process installs the rules.
	require.NoError(t, newTestNAT(60000, k).Add(ctx, "vm-1", 42007, net.ParseIP("172.30.0.5")))
	require.Len(t, k.rules, 2)

	// A later process restores the same VM: the kernel rules survived, so
	// nothing may be appended twice.
	restarted := newTestNAT(60000, k)
	require.NoError(t, restarted.Add(ctx, "vm-1", 42007, net.ParseIP("172.30.0.5")))
	assert.Len(t, k.rules, 2)

	// Deleting through the restarted process leaves no stale rule behind.
	require.NoError(t, restarted.Remove(ctx, "vm-1"))
	assert.Empty(t, k.rules)
}

func TestNATRemoveDrainsDuplicates(t *testing.T) {
	ctx := context.Background()
	k := &fakeKernel{}
	n := newTestNAT(60000, k)

	require.NoError(t, n.Add(ctx, "vm-1", 42007, net.ParseIP("172.30.0.5")))
	// An older process left a second instance of each rule behind.
	k.rules = append(k.rules, k.rules[0], k.rules[1])
	require.Len(t, k.rules, 4)

	require.NoError(t, n.Remove(ctx, "vm-1"))
	assert.Empty(t, k.rules)

	// Second remove finds no recorded rules: no invocations.
	k.calls = 0
	require.NoError(t, n.Remove(ctx, "vm-1"))
	assert.Zero(t, k.calls)
}

func TestNATAddRollsBackOnFailure(t *testing.T) {
	k := &fakeKernel{}
	k.fail = func(args []string) error {
		if args[2] == "-A" && strings.Contains(strings.Join(args, " "), "POSTROUTING") {
			return fmt.Errorf("boom")
		}
		return nil
	}
	n := newTestNAT(60000, k)

	err := n.Add(context.Background(), "vm-1", 42007, net.ParseIP("172.30.0.5"))
	require.Error(t, err)

	// The already-applied PREROUTING rule must have been deleted again.
	assert.Empty(t, k.rules)

	// Nothing recorded: Remove is a no-op.
	k.calls = 0
	require.NoError(t, n.Remove(context.Background(), "vm-1"))
	assert.Zero(t, k.calls)
}
