package types

import (
	"net"
	"time"
)

// VMState represents the lifecycle state of a VM.
// There is no stopped-but-retained state: a VM that is not running does not
// exist. Paused is a transient sub-state used only inside the snapshot
// operation and is never externally observable.
type VMState string

const (
	VMStateRunning VMState = "running"
	VMStatePaused  VMState = "paused"
)

// Sizing describes the machine dimensions requested for a VM.
type Sizing struct {
	VCPUs    int   `json:"vcpus"`
	MemoryMB int64 `json:"memory_mb"`
}

// VM is the aggregate record for one running machine. Owned exclusively by
// the orchestrator's registry; all fields except State are immutable after
// creation.
type VM struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Template string  `json:"template"`
	State    VMState `json:"state"`

	IP      net.IP `json:"ip"`
	Port    int    `json:"port"`
	TapName string `json:"tap_name"`

	// Runtime — identify the live hypervisor process.
	PID        int    `json:"pid"`
	SocketPath string `json:"socket_path"`

	DiskPath string `json:"disk_path"`
	Sizing   Sizing `json:"sizing"`

	CreatedAt time.Time `json:"created_at"`
}

// VMView is the sanitized external projection of a VM. Process ID, control
// socket, and raw disk path never leave the orchestrator.
type VMView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	State     VMState   `json:"state"`
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	Sizing    Sizing    `json:"sizing"`
	CreatedAt time.Time `json:"created_at"`
}

// View returns the sanitized projection of vm.
func (vm *VM) View() VMView {
	return VMView{
		ID:        vm.ID,
		Name:      vm.Name,
		Template:  vm.Template,
		State:     vm.State,
		IP:        vm.IP.String(),
		Port:      vm.Port,
		Sizing:    vm.Sizing,
		CreatedAt: vm.CreatedAt,
	}
}

// TemplateInfo is the metadata of a disk template, derived from its backing file.
type TemplateInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// BootSpec carries everything the hypervisor controller needs to configure
// and boot a machine over its control socket.
type BootSpec struct {
	KernelPath string
	DiskPath   string
	TapName    string
	MAC        string
	IP         net.IP
	Gateway    net.IP
	Netmask    net.IPMask
	Sizing     Sizing
}
