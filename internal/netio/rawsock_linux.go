//go:build linux

package netio

import (
	"fmt"
	"net"
	"sync"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxFrameConn — AF_PACKET raw socket bound to the steering EtherType
// -------------------------------------------------------------------------

// LinuxFrameConn implements FrameConn using an AF_PACKET/SOCK_RAW socket
// bound to a single bridge-facing interface and EtherType.
//
// Socket configuration:
//  1. socket(AF_PACKET, SOCK_RAW, htons(Ethertype)) so the kernel only
//     ever queues steering frames to this socket, regardless of what
//     else crosses the interface.
//  2. bind() to a sockaddr_ll naming the interface, so sends go out that
//     interface and receives are limited to it.
//  3. A classic BPF program re-checking the EtherType at a fixed offset,
//     attached with SO_ATTACH_FILTER. This is defensive: a socket placed
//     into promiscuous mode by a monitoring tool elsewhere on the same
//     interface should not cause this socket to see foreign traffic.
type LinuxFrameConn struct {
	fd        int
	ifIndex   int
	ifName    string
	localAddr net.HardwareAddr
	closed    bool
	mu        sync.Mutex
}

// NewFrameConn opens a raw Ethernet socket bound to ifName and the
// steering EtherType (0x8267).
func NewFrameConn(ifName string) (*LinuxFrameConn, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("resolve interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(Ethertype)))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket: %w", err)
	}

	conn := &LinuxFrameConn{
		fd:        fd,
		ifIndex:   ifi.Index,
		ifName:    ifName,
		localAddr: cloneHardwareAddr(ifi.HardwareAddr),
	}

	if err := conn.bindAndFilter(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return conn, nil
}

// bindAndFilter binds the socket to the interface and attaches the
// EtherType verification filter.
func (c *LinuxFrameConn) bindAndFilter() error {
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(Ethertype),
		Ifindex:  c.ifIndex,
	}

	if err := unix.Bind(c.fd, addr); err != nil {
		return fmt.Errorf("bind AF_PACKET socket to %s: %w", c.ifName, err)
	}

	if err := attachEthertypeFilter(c.fd); err != nil {
		return fmt.Errorf("attach bpf filter on %s: %w", c.ifName, err)
	}

	return nil
}

// ReadFrame reads one steering frame and returns its payload (the bytes
// after the 14-byte Ethernet header).
func (c *LinuxFrameConn) ReadFrame(buf []byte) (int, FrameMeta, error) {
	raw := make([]byte, MaxFrameLen)

	n, from, err := unix.Recvfrom(c.fd, raw, 0)
	if err != nil {
		return 0, FrameMeta{}, fmt.Errorf("recvfrom on %s: %w", c.ifName, err)
	}

	src, payloadOff, err := parseEthernetHeader(raw[:n])
	if err != nil {
		return 0, FrameMeta{}, err
	}

	meta := FrameMeta{SrcMAC: src, IfIndex: c.ifIndex, IfName: c.ifName}
	if ll, ok := from.(*unix.SockaddrLinklayer); ok {
		meta.IfIndex = ll.Ifindex
	}

	payload := raw[payloadOff:n]
	copied := copy(buf, payload)

	return copied, meta, nil
}

// WriteFrame wraps payload in an Ethernet II header addressed to dst
// and sends it out the bound interface.
func (c *LinuxFrameConn) WriteFrame(dst net.HardwareAddr, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("write frame to %s: %w", dst, ErrSocketClosed)
	}
	c.mu.Unlock()

	frame := make([]byte, frameHeaderLen+len(payload))
	if _, err := buildEthernetHeader(frame, dst, c.localAddr); err != nil {
		return fmt.Errorf("write frame to %s: %w", dst, err)
	}
	copy(frame[frameHeaderLen:], payload)

	to := &unix.SockaddrLinklayer{
		Protocol: htons(Ethertype),
		Ifindex:  c.ifIndex,
		Halen:    6,
	}
	copy(to.Addr[:6], dst)

	if err := unix.Sendto(c.fd, frame, 0, to); err != nil {
		return fmt.Errorf("sendto %s on %s: %w", dst, c.ifName, err)
	}

	return nil
}

// Close releases the underlying socket.
func (c *LinuxFrameConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := unix.Close(c.fd); err != nil {
		return fmt.Errorf("close frame socket on %s: %w", c.ifName, err)
	}
	return nil
}

// LocalMAC returns the hardware address of the bound interface.
func (c *LinuxFrameConn) LocalMAC() net.HardwareAddr {
	return c.localAddr
}

// -------------------------------------------------------------------------
// BPF EtherType filter
// -------------------------------------------------------------------------

// attachEthertypeFilter assembles and attaches a classic BPF program that
// accepts only frames whose EtherType field (offset 12) equals
// Ethertype, dropping everything else at the kernel boundary.
func attachEthertypeFilter(fd int) error {
	raw, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(Ethertype), SkipFalse: 1},
		bpf.RetConstant{Val: MaxFrameLen},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return fmt.Errorf("assemble bpf program: %w", err)
	}

	//nolint:gosec // G103: bpf.RawInstruction and unix.SockFilter share the
	// same 8-byte layout (uint16, uint8, uint8, uint32); this cast is the
	// standard way to bridge golang.org/x/net/bpf output into SO_ATTACH_FILTER.
	prog := unix.SockFprog{
		Len:    uint16(len(raw)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&raw[0])),
	}

	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog)
}

// htons converts a 16-bit value from host to network byte order.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// cloneHardwareAddr returns a defensive copy of mac, or nil.
func cloneHardwareAddr(mac net.HardwareAddr) net.HardwareAddr {
	if mac == nil {
		return nil
	}
	out := make(net.HardwareAddr, len(mac))
	copy(out, mac)
	return out
}
