package firecracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/projecteru2/burrow/hypervisor"
)

// Wire types for the Firecracker machine configuration API.

type fcBootSource struct {
	KernelImagePath string `json:"kernel_image_path"`
	BootArgs        string `json:"boot_args"`
}

type fcDrive struct {
	DriveID      string `json:"drive_id"`
	PathOnHost   string `json:"path_on_host"`
	IsRootDevice bool   `json:"is_root_device"`
	IsReadOnly   bool   `json:"is_read_only"`
}

type fcNetworkInterface struct {
	IfaceID     string `json:"iface_id"`
	GuestMAC    string `json:"guest_mac"`
	HostDevName string `json:"host_dev_name"`
}

type fcMachineConfig struct {
	VCPUCount  int   `json:"vcpu_count"`
	MemSizeMib int64 `json:"mem_size_mib"`
}

type fcAction struct {
	ActionType string `json:"action_type"`
}

type fcVMState struct {
	State string `json:"state"`
}

func putJSON(ctx context.Context, socketPath, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return hypervisor.DoWithRetry(ctx, func() error {
		return hypervisor.DoPut(ctx, socketPath, path, body)
	})
}

func putBootSource(ctx context.Context, socketPath, kernelPath, bootArgs string) error {
	return putJSON(ctx, socketPath, "/boot-source", fcBootSource{
		KernelImagePath: kernelPath,
		BootArgs:        bootArgs,
	})
}

func putRootDrive(ctx context.Context, socketPath, diskPath string) error {
	return putJSON(ctx, socketPath, "/drives/rootfs", fcDrive{
		DriveID:      "rootfs",
		PathOnHost:   diskPath,
		IsRootDevice: true,
		IsReadOnly:   false,
	})
}

func putNetworkInterface(ctx context.Context, socketPath, tapName, mac string) error {
	return putJSON(ctx, socketPath, "/network-interfaces/eth0", fcNetworkInterface{
		IfaceID:     "eth0",
		GuestMAC:    mac,
		HostDevName: tapName,
	})
}

func putMachineConfig(ctx context.Context, socketPath string, vcpus int, memMB int64) error {
	return putJSON(ctx, socketPath, "/machine-config", fcMachineConfig{
		VCPUCount:  vcpus,
		MemSizeMib: memMB,
	})
}

func putAction(ctx context.Context, socketPath, action string) error {
	return putJSON(ctx, socketPath, "/actions", fcAction{ActionType: action})
}

func patchVMState(ctx context.Context, socketPath, state string) error {
	body, err := json.Marshal(fcVMState{State: state})
	if err != nil {
		return fmt.Errorf("marshal /vm: %w", err)
	}
	return hypervisor.DoWithRetry(ctx, func() error {
		return hypervisor.DoPatch(ctx, socketPath, "/vm", body)
	})
}

// bootArgs builds the kernel command line, embedding the VM's static network
// configuration so the guest needs no DHCP.
// Format: ip=<client-IP>:<server>:<gw-IP>:<netmask>:<hostname>:<device>:<autoconf>
func bootArgs(ip, gateway net.IP, mask net.IPMask) string {
	return fmt.Sprintf(
		"console=ttyS0 reboot=k panic=1 pci=off ip=%s::%s:%s::eth0:off",
		ip, gateway, net.IP(mask),
	)
}
