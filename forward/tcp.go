// Package forward is the access layer: a TCP forwarding engine with one
// listener per VM, and a kernel-level UDP NAT rule manager.
package forward

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"
)

const dialTimeout = 5 * time.Second

// TCPForwarder runs one listener per VM and pipes each accepted connection
// to the VM's private address. Every socket (inbound and its paired
// outbound) is tracked so Stop can forcibly close live sessions — closing
// the listener alone only stops new connections and would leak established
// ones across VM churn.
type TCPForwarder struct {
	mu  sync.Mutex
	vms map[string]*vmListener
}

type vmListener struct {
	ln    net.Listener
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewTCPForwarder creates an empty forwarder.
func NewTCPForwarder() *TCPForwarder {
	return &TCPForwarder{vms: map[string]*vmListener{}}
}

// Start binds port on all interfaces and forwards connections to target
// ("ip:port"). One forwarder per VM id; starting twice is a conflict.
func (f *TCPForwarder) Start(vmID string, port int, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vms[vmID]; ok {
		return fmt.Errorf("forwarder for VM %s already running", vmID)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen :%d: %w", port, err)
	}
	vl := &vmListener{ln: ln, conns: map[net.Conn]struct{}{}}
	f.vms[vmID] = vl

	go vl.acceptLoop(vmID, target)
	return nil
}

// Stop closes every tracked connection of the VM, then its listener.
// Unknown ids are a no-op.
func (f *TCPForwarder) Stop(vmID string) {
	f.mu.Lock()
	vl, ok := f.vms[vmID]
	delete(f.vms, vmID)
	f.mu.Unlock()
	if !ok {
		return
	}

	// Connections first: the listener close only prevents new ones.
	vl.mu.Lock()
	for conn := range vl.conns {
		_ = conn.Close()
	}
	vl.conns = map[net.Conn]struct{}{}
	vl.mu.Unlock()

	_ = vl.ln.Close()
}

func (vl *vmListener) acceptLoop(vmID, target string) {
	logger := log.WithFunc("forward.tcp")
	for {
		inbound, err := vl.ln.Accept()
		if err != nil {
			// Listener closed by Stop.
			return
		}
		go func() {
			if err := vl.pipe(inbound, target); err != nil {
				logger.Debugf(context.TODO(), "VM %s session: %v", vmID, err)
			}
		}()
	}
}

// pipe dials the VM side, tracks both sockets, and copies bytes in both
// directions until either side closes. Both sides are untracked and closed
// on the way out.
func (vl *vmListener) pipe(inbound net.Conn, target string) error {
	outbound, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		_ = inbound.Close()
		return fmt.Errorf("dial %s: %w", target, err)
	}

	vl.track(inbound)
	vl.track(outbound)
	defer func() {
		vl.untrack(inbound)
		vl.untrack(outbound)
		_ = inbound.Close()
		_ = outbound.Close()
	}()

	var g errgroup.Group
	g.Go(func() error { return copyHalf(outbound, inbound) })
	g.Go(func() error { return copyHalf(inbound, outbound) })
	return g.Wait()
}

// copyHalf copies one direction, then half-closes the destination so the
// opposite copy sees EOF and the session drains cleanly.
func copyHalf(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return err
}

func (vl *vmListener) track(conn net.Conn) {
	vl.mu.Lock()
	vl.conns[conn] = struct{}{}
	vl.mu.Unlock()
}

func (vl *vmListener) untrack(conn net.Conn) {
	vl.mu.Lock()
	delete(vl.conns, conn)
	vl.mu.Unlock()
}
