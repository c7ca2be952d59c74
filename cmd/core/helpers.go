package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/forward"
	"github.com/projecteru2/burrow/hypervisor/firecracker"
	"github.com/projecteru2/burrow/netdev"
	"github.com/projecteru2/burrow/orchestrator"
	storejson "github.com/projecteru2/burrow/storage/json"
	"github.com/projecteru2/burrow/storage/local"
	"github.com/projecteru2/burrow/template"
	"github.com/projecteru2/burrow/types"
)

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// InitOrchestrator wires the full dependency graph and runs startup
// recovery: registry load and allocator rebuild. It does NOT sweep the
// host for orphans; a concurrent creation in another process holds
// resources the registry does not record yet, so only serve and reconcile
// call Orchestrator.ReconcileHost explicitly.
func InitOrchestrator(ctx context.Context, conf *config.Config) (*orchestrator.Orchestrator, error) {
	if err := conf.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	orch, err := orchestrator.New(conf, orchestrator.Deps{
		Machines:  firecracker.New(conf),
		NetDevs:   netdev.NewManager(),
		TCP:       forward.NewTCPForwarder(),
		UDP:       forward.NewNATManager(conf.GuestUDPPort),
		Images:    local.New(conf),
		Templates: template.New(conf),
		Store:     storejson.New[orchestrator.Index](conf.RegistryLock(), conf.RegistryFile()),
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	if err := orch.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return orch, nil
}

// SizingFromFlags parses --cpu and --memory into a Sizing. Zero values
// are filled from config defaults by the orchestrator.
func SizingFromFlags(cmd *cobra.Command) (types.Sizing, error) {
	cpu, _ := cmd.Flags().GetInt("cpu")
	memStr, _ := cmd.Flags().GetString("memory")

	var memoryMB int64
	if memStr != "" {
		memBytes, err := units.RAMInBytes(memStr)
		if err != nil {
			return types.Sizing{}, fmt.Errorf("invalid --memory %q: %w", memStr, err)
		}
		memoryMB = memBytes >> 20 //nolint:mnd
	}
	return types.Sizing{VCPUs: cpu, MemoryMB: memoryMB}, nil
}

// Confirm prompts for interactive confirmation of a destructive operation.
// A non-terminal stdin refuses, so scripts must pass --yes explicitly.
func Confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func FormatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}
