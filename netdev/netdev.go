// Package netdev manages the host-side TAP devices that bridge VMs to the
// host network. Names and MAC addresses are derived deterministically from
// the VM id, so neither needs a pool: while ids are unique they cannot
// collide, and a liveness check against the OS is the only state required.
package netdev

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Prefix marks all TAP devices owned by this host's orchestrator.
const Prefix = "bw-"

// TapName derives the interface name for a VM id. The result stays within
// IFNAMSIZ (15 chars).
func TapName(vmID string) string {
	if len(vmID) > 8 {
		vmID = vmID[:8]
	}
	return Prefix + vmID
}

// MACAddr derives a locally-administered unicast MAC from a VM id.
func MACAddr(vmID string) string {
	sum := sha256.Sum256([]byte(vmID))
	// 0x06: locally administered, unicast.
	return fmt.Sprintf("06:%02x:%02x:%02x:%02x:%02x", sum[0], sum[1], sum[2], sum[3], sum[4])
}

// Manager creates and removes TAP devices via netlink.
type Manager struct{}

// NewManager returns a netlink-backed Manager.
func NewManager() *Manager { return &Manager{} }

// Create adds a TAP device with the given name, assigns the gateway address
// to the host side, and brings it up.
func (m *Manager) Create(name string, hostAddr net.IP, mask net.IPMask) error {
	tap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TAP,
	}
	if err := netlink.LinkAdd(tap); err != nil {
		return fmt.Errorf("add tap %s: %w", name, err)
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: hostAddr, Mask: mask}}
	if err := netlink.AddrAdd(tap, addr); err != nil {
		_ = netlink.LinkDel(tap)
		return fmt.Errorf("address tap %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(tap); err != nil {
		_ = netlink.LinkDel(tap)
		return fmt.Errorf("up tap %s: %w", name, err)
	}
	return nil
}

// Delete removes a TAP device. A missing device is not an error.
func (m *Manager) Delete(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("lookup tap %s: %w", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete tap %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a device with the given name is present.
func (m *Manager) Exists(name string) (bool, error) {
	_, err := netlink.LinkByName(name)
	if err == nil {
		return true, nil
	}
	var notFound netlink.LinkNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup tap %s: %w", name, err)
}

// ListOwned returns the names of all devices carrying the orchestrator
// prefix. Used by startup reconciliation to find orphaned TAPs.
func (m *Manager) ListOwned() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	var names []string
	for _, link := range links {
		name := link.Attrs().Name
		if len(name) > len(Prefix) && name[:len(Prefix)] == Prefix {
			names = append(names, name)
		}
	}
	return names, nil
}
