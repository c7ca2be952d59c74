package config

import (
	"path/filepath"

	"github.com/projecteru2/burrow/utils"
)

// EnsureDirs creates all static directories. Per-VM runtime and log
// directories are created on demand via EnsureVMDirs.
func (c *Config) EnsureDirs() error {
	return utils.EnsureDirs(
		c.TemplatesDir(),
		c.DisksDir(),
		c.dbDir(),
		c.VMsRunDir(),
		c.vmLogDir(),
	)
}

// EnsureVMDirs creates per-VM runtime and log directories.
func (c *Config) EnsureVMDirs(vmID string) error {
	return utils.EnsureDirs(
		c.VMRunDir(vmID),
		c.VMLogDir(vmID),
	)
}

// TemplatesDir holds one copy-on-write base image per template name.
func (c *Config) TemplatesDir() string { return filepath.Join(c.RootDir, "templates") }

// TemplatePath returns the backing file for a template name.
func (c *Config) TemplatePath(name string) string {
	return filepath.Join(c.TemplatesDir(), name+".ext4")
}

// DisksDir holds the private per-VM disk images.
func (c *Config) DisksDir() string { return filepath.Join(c.RootDir, "disks") }

// VMDiskPath returns the private disk image path for a VM.
func (c *Config) VMDiskPath(vmID string) string {
	return filepath.Join(c.DisksDir(), vmID+".ext4")
}

func (c *Config) dbDir() string { return filepath.Join(c.RootDir, "db") }

// RegistryFile and RegistryLock are the VM registry store paths.
func (c *Config) RegistryFile() string { return filepath.Join(c.dbDir(), "vms.json") }
func (c *Config) RegistryLock() string { return filepath.Join(c.dbDir(), "vms.lock") }

// VMsRunDir is the parent of all per-VM runtime directories.
func (c *Config) VMsRunDir() string { return filepath.Join(c.RunDir, "vms") }

// VMRunDir holds a VM's control socket and PID file.
func (c *Config) VMRunDir(vmID string) string { return filepath.Join(c.VMsRunDir(), vmID) }

// VMSocketPath is the per-VM hypervisor control socket.
func (c *Config) VMSocketPath(vmID string) string {
	return filepath.Join(c.VMRunDir(vmID), "api.sock")
}

// VMPIDFile is the per-VM hypervisor PID file.
func (c *Config) VMPIDFile(vmID string) string {
	return filepath.Join(c.VMRunDir(vmID), "firecracker.pid")
}

func (c *Config) vmLogDir() string { return filepath.Join(c.LogDir, "vms") }

// VMLogDir holds a VM's hypervisor output.
func (c *Config) VMLogDir(vmID string) string { return filepath.Join(c.vmLogDir(), vmID) }

// VMProcessLog captures the hypervisor's stdout/stderr.
func (c *Config) VMProcessLog(vmID string) string {
	return filepath.Join(c.VMLogDir(vmID), "firecracker.log")
}
