package netio

// overlay.go: Shared overlay tunnel abstractions for steering control
// frames tunneled between access points that do not share an L2
// segment, encapsulated in Geneve (RFC 8926).
//
// Architecture:
//
//	                 OverlayConn (interface)
//	                          |
//	                    GeneveConn (geneve_conn.go)
//
//	OverlaySender adapts OverlayConn -> steering.FrameTransport
//	OverlayReceiver reads from OverlayConn -> steering.Context.HandleFrame
//
// The OverlaySender/OverlayReceiver pattern mirrors the bridge-local
// FrameSender/Receiver pair in sender.go/receiver.go: the steering core
// never knows whether a peer is reached over the shared bridge or
// through a tunnel.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/cococomm/steerd/internal/steering"
)

// -------------------------------------------------------------------------
// OverlayConn — tunnel connection interface
// -------------------------------------------------------------------------

// OverlayConn abstracts a Geneve tunnel connection carrying whole
// steering Ethernet frames as the inner payload (Geneve Format A,
// Protocol Type 0x6558, Transparent Ethernet Bridging).
type OverlayConn interface {
	// SendEncapsulated wraps an Ethernet frame (header + steering TLV
	// payload) in Geneve encapsulation and sends it to the given NVE
	// address.
	SendEncapsulated(ctx context.Context, frame []byte, dstAddr netip.Addr) error

	// RecvDecapsulated reads a tunnel packet, strips the Geneve header,
	// and returns the inner Ethernet frame along with overlay metadata.
	RecvDecapsulated(ctx context.Context) ([]byte, OverlayMeta, error)

	// Close releases the underlying UDP socket.
	Close() error
}

// OverlayMeta holds metadata extracted from a received tunnel packet.
type OverlayMeta struct {
	// SrcAddr is the source NVE IP address from the outer UDP packet.
	SrcAddr netip.Addr

	// DstAddr is this system's own tunnel endpoint address.
	DstAddr netip.Addr

	// VNI is the tunnel's Virtual Network Identifier (24-bit),
	// identifying the steering domain.
	VNI uint32
}

var (
	// ErrOverlayVNIMismatch indicates the received packet's VNI does not
	// match the VNI configured for this steering domain's tunnel.
	ErrOverlayVNIMismatch = errors.New("overlay: VNI mismatch")

	// ErrOverlayRecvClosed indicates the overlay connection was closed
	// during a receive operation.
	ErrOverlayRecvClosed = errors.New("overlay: connection closed")

	// ErrOverlayInvalidAddr indicates the remote address from the outer
	// UDP packet could not be parsed.
	ErrOverlayInvalidAddr = errors.New("overlay: invalid remote address")

	// ErrPeerUnresolved indicates no tunnel endpoint address is known for
	// a destination MAC.
	ErrPeerUnresolved = errors.New("overlay: no tunnel endpoint for peer MAC")
)

// -------------------------------------------------------------------------
// PeerResolver — MAC to tunnel endpoint mapping
// -------------------------------------------------------------------------

// PeerResolver maps a peer access point's BSSID to the IP address of its
// Geneve tunnel endpoint. Peers not present in the resolver are assumed
// to be reachable directly on the shared bridge instead.
type PeerResolver interface {
	ResolveOverlayPeer(bssid net.HardwareAddr) (netip.Addr, bool)
}

// StaticPeerResolver is a fixed BSSID-to-tunnel-endpoint map, built once
// at startup from configuration.
type StaticPeerResolver map[macAddr]netip.Addr

type macAddr [6]byte

// NewStaticPeerResolver builds a StaticPeerResolver from BSSID/address
// pairs.
func NewStaticPeerResolver(entries map[string]netip.Addr) (StaticPeerResolver, error) {
	r := make(StaticPeerResolver, len(entries))
	for bssidStr, addr := range entries {
		mac, err := net.ParseMAC(bssidStr)
		if err != nil {
			return nil, fmt.Errorf("parse overlay peer bssid %q: %w", bssidStr, err)
		}
		var k macAddr
		copy(k[:], mac)
		r[k] = addr
	}
	return r, nil
}

// ResolveOverlayPeer implements PeerResolver.
func (r StaticPeerResolver) ResolveOverlayPeer(bssid net.HardwareAddr) (netip.Addr, bool) {
	var k macAddr
	copy(k[:], bssid)
	addr, ok := r[k]
	return addr, ok
}

// -------------------------------------------------------------------------
// OverlaySender — adapts OverlayConn to steering.FrameTransport
// -------------------------------------------------------------------------

// OverlaySender adapts an OverlayConn into a steering.FrameTransport,
// so Context.floodToPeers can address a peer over a tunnel exactly as
// it would a bridge-local peer.
type OverlaySender struct {
	conn     OverlayConn
	resolver PeerResolver
}

// NewOverlaySender creates a steering.FrameTransport that wraps frames
// destined for tunnel-resident peers in Geneve encapsulation.
func NewOverlaySender(conn OverlayConn, resolver PeerResolver) *OverlaySender {
	return &OverlaySender{conn: conn, resolver: resolver}
}

// Send implements steering.FrameTransport.
func (s *OverlaySender) Send(dst net.HardwareAddr, frame []byte) error {
	addr, ok := s.resolver.ResolveOverlayPeer(dst)
	if !ok {
		return fmt.Errorf("overlay send to %s: %w", dst, ErrPeerUnresolved)
	}

	if err := s.conn.SendEncapsulated(context.Background(), frame, addr); err != nil {
		return fmt.Errorf("overlay send to %s (%s): %w", dst, addr, err)
	}
	return nil
}

var _ steering.FrameTransport = (*OverlaySender)(nil)

// -------------------------------------------------------------------------
// MultiTransport — bridge-local first, overlay fallback
// -------------------------------------------------------------------------

// MultiTransport dispatches each Send to the bridge-local transport if
// the destination is resolvable there, otherwise falls back to the
// overlay transport. Peers reachable on the shared bridge never pay the
// Geneve encapsulation cost; peers that are not get tunneled
// automatically.
type MultiTransport struct {
	local    steering.FrameTransport
	overlay  steering.FrameTransport
	resolver PeerResolver
}

// NewMultiTransport creates a transport that sends to local peers
// directly and overlay peers through the tunnel. overlay may be nil
// when no overlay peers are configured, in which case every Send goes
// to local.
func NewMultiTransport(local steering.FrameTransport, overlay steering.FrameTransport, resolver PeerResolver) *MultiTransport {
	return &MultiTransport{local: local, overlay: overlay, resolver: resolver}
}

// Send implements steering.FrameTransport.
func (m *MultiTransport) Send(dst net.HardwareAddr, frame []byte) error {
	if m.overlay != nil && m.resolver != nil {
		if _, ok := m.resolver.ResolveOverlayPeer(dst); ok {
			return m.overlay.Send(dst, frame)
		}
	}
	return m.local.Send(dst, frame)
}

var _ steering.FrameTransport = (*MultiTransport)(nil)

// -------------------------------------------------------------------------
// OverlayReceiver — reads tunnel packets, delivers inner frames
// -------------------------------------------------------------------------

// OverlayReceiver reads Geneve-encapsulated steering frames from an
// OverlayConn, strips the tunnel header, and hands the inner frame to a
// FrameHandler (typically *steering.Context).
type OverlayReceiver struct {
	conn    OverlayConn
	handler FrameHandler
	logger  *slog.Logger
}

// NewOverlayReceiver creates a receiver that strips Geneve encapsulation
// and delivers inner steering frames to handler.
func NewOverlayReceiver(conn OverlayConn, handler FrameHandler, logger *slog.Logger) *OverlayReceiver {
	return &OverlayReceiver{
		conn:    conn,
		handler: handler,
		logger:  logger.With(slog.String("component", "netio.overlay_receiver")),
	}
}

// Run reads from the overlay connection in a loop until ctx is
// cancelled. Errors from individual packets are logged but do not stop
// the receiver.
func (r *OverlayReceiver) Run(ctx context.Context) error {
	r.logger.Info("overlay receiver started")

	for {
		if ctx.Err() != nil {
			r.logger.Info("overlay receiver stopped")
			return nil //nolint:nilerr // context cancellation is the expected shutdown path
		}

		if err := r.recvOne(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("overlay receiver stopped")
				return nil //nolint:nilerr // context cancellation during recv is expected at shutdown
			}
			r.logger.Warn("overlay recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-decapsulate-handoff cycle.
func (r *OverlayReceiver) recvOne(ctx context.Context) error {
	frame, ometa, err := r.conn.RecvDecapsulated(ctx)
	if err != nil {
		return fmt.Errorf("overlay recv: %w", err)
	}

	src, _, err := parseEthernetHeader(frame)
	if err != nil {
		r.logger.Debug("invalid inner frame in overlay",
			slog.String("src_nve", ometa.SrcAddr.String()),
			slog.Uint64("vni", uint64(ometa.VNI)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	payload := make([]byte, len(frame))
	copy(payload, frame)

	r.handler.HandleFrame(src, payload[frameHeaderLen:])

	return nil
}
