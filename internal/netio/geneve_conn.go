package netio

// geneve_conn.go: Geneve tunnel connection for steering control frames
// (RFC 8926, Format A).
//
// GeneveConn implements OverlayConn for peer access points reachable
// only over an IP network rather than a shared bridge. It manages a UDP
// socket bound to port 6081 and handles the encapsulation/decapsulation
// stack:
//
//	Outer UDP (dst 6081) | Geneve Header (8B) | Inner Ethernet Frame
//	                                              (steering TLV payload)
//
// The inner payload is the exact same Ethernet II frame FrameSender
// would have put on the wire locally -- this connection only changes
// how that frame reaches a peer that isn't on the same L2 segment.
//
// Key requirements (RFC 8926 Section 3.4, applied the way RFC 9521
// applies them to BFD):
//   - Geneve O bit (control) set to 1: this is control-plane traffic,
//     not data-plane traffic being bridged.
//   - Geneve C bit (critical) set to 0: no critical options are used.
//   - Protocol Type 0x6558 (Transparent Ethernet Bridging, Format A).
//   - VNI identifies the steering domain for demultiplexing.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// geneveBufSize is the receive buffer size for Geneve packets.
const geneveBufSize = 9000

var (
	// ErrGeneveOBitNotSet indicates the O bit (control) is not set in a
	// received Geneve header.
	ErrGeneveOBitNotSet = errors.New("geneve: O bit (control) not set")

	// ErrGeneveCBitSet indicates the C bit (critical) is set in a
	// received Geneve header.
	ErrGeneveCBitSet = errors.New("geneve: C bit (critical) set, must be 0")

	// ErrGeneveUnexpectedProto indicates the Geneve Protocol Type is not
	// 0x6558 (Transparent Ethernet Bridging) for Format A.
	ErrGeneveUnexpectedProto = errors.New("geneve: unexpected protocol type, expected 0x6558")
)

// GeneveConn implements OverlayConn for steering control frames tunneled
// over Geneve.
//
// Thread safety: SendEncapsulated and RecvDecapsulated may be called
// concurrently. The mu mutex protects only the closed flag.
type GeneveConn struct {
	conn      *net.UDPConn
	vni       uint32
	localAddr netip.Addr
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
}

// NewGeneveConn creates a Geneve tunnel connection for steering frames.
//
// The socket binds to localAddr:6081 (RFC 8926 Section 3.3).
func NewGeneveConn(localAddr netip.Addr, vni uint32, logger *slog.Logger) (*GeneveConn, error) {
	laddr := &net.UDPAddr{IP: localAddr.AsSlice(), Port: int(GenevePort)}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("geneve: bind %s:%d: %w", localAddr, GenevePort, err)
	}

	return &GeneveConn{
		conn:      conn,
		vni:       vni,
		localAddr: localAddr,
		logger: logger.With(
			slog.String("component", "netio.geneve_conn"),
			slog.String("local", localAddr.String()),
			slog.Uint64("vni", uint64(vni)),
		),
	}, nil
}

// SendEncapsulated wraps a steering Ethernet frame in Geneve
// encapsulation and sends it to the remote NVE.
func (c *GeneveConn) SendEncapsulated(_ context.Context, frame []byte, dstAddr netip.Addr) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("geneve send to %s: %w", dstAddr, ErrOverlayRecvClosed)
	}
	c.mu.Unlock()

	buf := make([]byte, GeneveHeaderMinSize+len(frame))

	hdr := GeneveHeader{
		Version:      0,
		OptLen:       0,
		OBit:         true,
		CBit:         false,
		ProtocolType: GeneveProtocolEthernet,
		VNI:          c.vni,
	}
	if _, err := MarshalGeneveHeader(buf[:GeneveHeaderMinSize], hdr); err != nil {
		return fmt.Errorf("geneve marshal header: %w", err)
	}
	copy(buf[GeneveHeaderMinSize:], frame)

	dst := &net.UDPAddr{IP: dstAddr.AsSlice(), Port: int(GenevePort)}
	if _, err := c.conn.WriteToUDP(buf, dst); err != nil {
		return fmt.Errorf("geneve send to %s:%d: %w", dstAddr, GenevePort, err)
	}

	return nil
}

// RecvDecapsulated reads a Geneve packet, strips the Geneve header, and
// returns the inner Ethernet frame with overlay metadata.
func (c *GeneveConn) RecvDecapsulated(_ context.Context) ([]byte, OverlayMeta, error) {
	buf := make([]byte, geneveBufSize)

	n, remoteAddr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, OverlayMeta{}, fmt.Errorf("geneve recv: %w", ErrOverlayRecvClosed)
		}
		return nil, OverlayMeta{}, fmt.Errorf("geneve recv: %w", err)
	}

	frame, hdr, err := c.decapGenevePacket(buf[:n])
	if err != nil {
		return nil, OverlayMeta{}, err
	}

	srcAddr, ok := netip.AddrFromSlice(remoteAddr.IP)
	if !ok {
		return nil, OverlayMeta{}, fmt.Errorf(
			"geneve recv: remote address %s: %w", remoteAddr.IP, ErrOverlayInvalidAddr)
	}

	meta := OverlayMeta{SrcAddr: srcAddr.Unmap(), DstAddr: c.localAddr, VNI: hdr.VNI}

	return frame, meta, nil
}

// decapGenevePacket validates and strips the Geneve header, returning
// the inner Ethernet frame and the parsed header.
func (c *GeneveConn) decapGenevePacket(data []byte) ([]byte, GeneveHeader, error) {
	if len(data) < GeneveHeaderMinSize {
		return nil, GeneveHeader{}, fmt.Errorf(
			"geneve recv: packet %d bytes, need at least %d: %w",
			len(data), GeneveHeaderMinSize, ErrGeneveHeaderTooShort)
	}

	hdr, err := UnmarshalGeneveHeader(data[:GeneveHeaderMinSize])
	if err != nil {
		return nil, GeneveHeader{}, fmt.Errorf("geneve recv: %w", err)
	}

	geneveTotal := hdr.TotalHeaderSize()
	if vErr := c.validateGeneveHeader(hdr, len(data), geneveTotal); vErr != nil {
		return nil, GeneveHeader{}, vErr
	}

	return data[geneveTotal:], hdr, nil
}

// validateGeneveHeader checks the Geneve header fields this tunnel
// requires: packet length, O/C bits, protocol type, and VNI match.
func (c *GeneveConn) validateGeneveHeader(hdr GeneveHeader, pktLen, geneveTotal int) error {
	if pktLen < geneveTotal+frameHeaderLen {
		return fmt.Errorf(
			"geneve recv: packet %d bytes, need at least %d (hdr=%d + eth=%d): %w",
			pktLen, geneveTotal+frameHeaderLen, geneveTotal, frameHeaderLen, ErrFrameTooShort)
	}

	if !hdr.OBit {
		return fmt.Errorf("geneve recv: %w", ErrGeneveOBitNotSet)
	}
	if hdr.CBit {
		return fmt.Errorf("geneve recv: %w", ErrGeneveCBitSet)
	}
	if hdr.ProtocolType != GeneveProtocolEthernet {
		return fmt.Errorf("geneve recv: protocol type 0x%04x: %w", hdr.ProtocolType, ErrGeneveUnexpectedProto)
	}
	if hdr.VNI != c.vni {
		return fmt.Errorf("geneve recv: VNI %d, expected %d: %w", hdr.VNI, c.vni, ErrOverlayVNIMismatch)
	}

	return nil
}

// Close releases the underlying UDP socket.
func (c *GeneveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("geneve close: %w", err)
	}
	return nil
}
