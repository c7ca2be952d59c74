package config

import (
	coretypes "github.com/projecteru2/core/types"
)

// Config holds global burrow configuration.
type Config struct {
	// RootDir is the base directory for persistent data (templates, disks, registry).
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// RunDir is the base directory for per-VM runtime files (sockets, PID files).
	RunDir string `json:"run_dir" mapstructure:"run_dir"`
	// LogDir is the base directory for per-VM hypervisor logs.
	LogDir string `json:"log_dir" mapstructure:"log_dir"`

	// FirecrackerBinary is the hypervisor binary launched per VM.
	FirecrackerBinary string `json:"firecracker_binary" mapstructure:"firecracker_binary"`
	// KernelPath is the uncompressed guest kernel used for every VM.
	KernelPath string `json:"kernel_path" mapstructure:"kernel_path"`

	// Subnet is the private range VM addresses are allocated from.
	// The first host address is reserved for the gateway.
	Subnet string `json:"subnet" mapstructure:"subnet"`
	// PortBase/PortCount define the host port range for TCP forwarding.
	PortBase  int `json:"port_base" mapstructure:"port_base"`
	PortCount int `json:"port_count" mapstructure:"port_count"`
	// GuestPort is the fixed in-guest port TCP connections are forwarded to.
	GuestPort int `json:"guest_port" mapstructure:"guest_port"`
	// GuestUDPPort is the fixed in-guest port UDP NAT rules rewrite to.
	GuestUDPPort int `json:"guest_udp_port" mapstructure:"guest_udp_port"`

	// DefaultVCPUs/DefaultMemoryMB size VMs when the caller does not.
	DefaultVCPUs    int   `json:"default_vcpus" mapstructure:"default_vcpus"`
	DefaultMemoryMB int64 `json:"default_memory_mb" mapstructure:"default_memory_mb"`

	// HaltTimeoutSeconds is the grace period between asking a hypervisor to
	// stop and killing it.
	HaltTimeoutSeconds int `json:"halt_timeout_seconds" mapstructure:"halt_timeout_seconds"`

	// ProtectedTemplates can never be deleted or overwritten by a snapshot.
	ProtectedTemplates []string `json:"protected_templates" mapstructure:"protected_templates"`

	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:            "/var/lib/burrow",
		RunDir:             "/run/burrow",
		LogDir:             "/var/log/burrow",
		FirecrackerBinary:  "firecracker",
		KernelPath:         "/var/lib/burrow/kernel/vmlinux",
		Subnet:             "172.30.0.0/24",
		PortBase:           42000,
		PortCount:          250,
		GuestPort:          22,
		GuestUDPPort:       60000,
		DefaultVCPUs:       1,
		DefaultMemoryMB:    512,
		HaltTimeoutSeconds: 10,
		ProtectedTemplates: []string{"base", "base-min"},
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}
