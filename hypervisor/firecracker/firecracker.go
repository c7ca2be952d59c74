// Package firecracker owns the full lifecycle of one Firecracker process per
// VM: launch, configuration over the control socket, pause/resume for
// snapshots, and halt with forced-termination fallback.
package firecracker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/hypervisor"
	"github.com/projecteru2/burrow/types"
	"github.com/projecteru2/burrow/utils"
)

const (
	socketWaitTimeout = 5 * time.Second
	socketPollEvery   = 50 * time.Millisecond
)

// Controller launches and drives Firecracker processes.
type Controller struct {
	conf *config.Config
}

// New creates a Controller.
func New(conf *config.Config) *Controller {
	return &Controller{conf: conf}
}

// Start launches a hypervisor process for vm and configures it over the
// control socket: boot source, root drive, network device, machine sizing,
// then the start action. Any failure kills the process and propagates the
// original error — Start never leaves a half-configured process behind.
func (c *Controller) Start(ctx context.Context, vm *types.VM, boot types.BootSpec) (pid int, socketPath string, err error) {
	if err := c.conf.EnsureVMDirs(vm.ID); err != nil {
		return 0, "", fmt.Errorf("ensure dirs: %w", err)
	}
	socketPath = c.conf.VMSocketPath(vm.ID)

	// Stale socket or PID file from a previous run would confuse the launch.
	_ = os.Remove(socketPath)
	_ = os.Remove(c.conf.VMPIDFile(vm.ID))

	pid, err = c.launch(ctx, vm.ID, socketPath)
	if err != nil {
		return 0, "", fmt.Errorf("launch firecracker: %w", err)
	}

	steps := []struct {
		name string
		call func() error
	}{
		{"boot-source", func() error {
			return putBootSource(ctx, socketPath, boot.KernelPath, bootArgs(boot.IP, boot.Gateway, boot.Netmask))
		}},
		{"root-drive", func() error { return putRootDrive(ctx, socketPath, boot.DiskPath) }},
		{"network-interface", func() error { return putNetworkInterface(ctx, socketPath, boot.TapName, boot.MAC) }},
		{"machine-config", func() error { return putMachineConfig(ctx, socketPath, boot.Sizing.VCPUs, boot.Sizing.MemoryMB) }},
		{"instance-start", func() error { return putAction(ctx, socketPath, "InstanceStart") }},
	}
	for _, step := range steps {
		if stepErr := step.call(); stepErr != nil {
			c.killProcess(vm.ID, pid)
			return 0, "", fmt.Errorf("%s: %w", step.name, stepErr)
		}
	}
	return pid, socketPath, nil
}

// Pause suspends the guest's vCPUs. Used only to obtain
// filesystem-consistent snapshots; callers must guarantee Resume.
func (c *Controller) Pause(ctx context.Context, vm *types.VM) error {
	return patchVMState(ctx, vm.SocketPath, "Paused")
}

// Resume restarts the guest's vCPUs.
func (c *Controller) Resume(ctx context.Context, vm *types.VM) error {
	return patchVMState(ctx, vm.SocketPath, "Resumed")
}

// Halt stops the hypervisor process: ask the guest to shut down via
// Ctrl-Alt-Del, wait out the configured grace period, then SIGTERM→SIGKILL.
// Best-effort — the goal is resource reclamation, not process cooperation.
func (c *Controller) Halt(ctx context.Context, vm *types.VM) error {
	defer c.cleanupRuntimeFiles(vm.ID)

	pid := vm.PID
	if !utils.IsProcessAlive(pid) {
		return nil
	}

	grace := time.Duration(c.conf.HaltTimeoutSeconds) * time.Second
	if err := putAction(ctx, vm.SocketPath, "SendCtrlAltDel"); err != nil {
		log.WithFunc("firecracker.Halt").Warnf(ctx, "ctrl-alt-del VM %s: %v — escalating", vm.ID, err)
		return c.terminate(ctx, pid, grace)
	}
	if err := utils.WaitFor(ctx, grace, socketPollEvery*10, func() (bool, error) {
		return !utils.IsProcessAlive(pid), nil
	}); err == nil {
		return nil
	}

	log.WithFunc("firecracker.Halt").Warnf(ctx, "VM %s did not shut down within %s — escalating", vm.ID, grace)
	return c.terminate(ctx, pid, grace)
}

// terminate force-stops pid after verifying it still belongs to the
// hypervisor binary, so a recycled PID is never signalled.
func (c *Controller) terminate(ctx context.Context, pid int, grace time.Duration) error {
	if !utils.VerifyProcess(pid, filepath.Base(c.conf.FirecrackerBinary)) {
		return nil
	}
	return utils.TerminateProcess(ctx, pid, grace)
}

// launch starts the firecracker binary, writes the PID file, and waits for
// the control socket to become connectable. The process handle is released
// so the hypervisor lives independently of this process.
func (c *Controller) launch(ctx context.Context, vmID, socketPath string) (int, error) {
	logFile, _ := os.Create(c.conf.VMProcessLog(vmID)) //nolint:gosec

	cmd := exec.Command(c.conf.FirecrackerBinary, "--api-sock", socketPath, "--id", vmID) //nolint:gosec
	// Detached process group: the VM survives an orchestrator restart.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		defer logFile.Close() //nolint:errcheck
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("exec %s: %w", c.conf.FirecrackerBinary, err)
	}
	pid := cmd.Process.Pid

	if err := utils.WritePIDFile(c.conf.VMPIDFile(vmID), pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return 0, fmt.Errorf("write PID file: %w", err)
	}

	if err := c.waitForSocket(ctx, socketPath, pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = os.Remove(c.conf.VMPIDFile(vmID))
		return 0, err
	}

	_ = cmd.Process.Release()
	return pid, nil
}

// waitForSocket polls until the control socket is connectable, the process
// exits, or the timeout/context fires.
func (c *Controller) waitForSocket(ctx context.Context, socketPath string, pid int) error {
	return utils.WaitFor(ctx, socketWaitTimeout, socketPollEvery, func() (bool, error) {
		if !utils.IsProcessAlive(pid) {
			return false, fmt.Errorf("firecracker exited before socket %s was ready", socketPath)
		}
		if err := hypervisor.CheckSocket(socketPath); err != nil {
			return false, nil //nolint:nilerr // not ready yet, keep polling
		}
		return true, nil
	})
}

// killProcess terminates the hypervisor as cleanup after a failed
// configuration sequence.
func (c *Controller) killProcess(vmID string, pid int) {
	c.cleanupRuntimeFiles(vmID)
	if pid > 0 && utils.IsProcessAlive(pid) {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Kill()
		}
	}
}

func (c *Controller) cleanupRuntimeFiles(vmID string) {
	_ = os.Remove(c.conf.VMSocketPath(vmID))
	_ = os.Remove(c.conf.VMPIDFile(vmID))
}
