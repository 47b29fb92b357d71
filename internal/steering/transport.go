package steering

import "net"

// FrameTransport sends an encoded steering control frame to a single
// peer BSSID. Implementations live in internal/netio: a raw L2 socket
// bound to the shared bridge, or a Geneve tunnel endpoint for a
// peer that is not on the same L2 segment.
type FrameTransport interface {
	Send(dst net.HardwareAddr, frame []byte) error
}

// floodToPeers sends frame to every configured peer except ourselves,
// mirroring flood_message's iteration over the r0kh peer list. Send
// errors are reported to the logger but do not stop the flood -- one
// unreachable peer should not block delivery to the rest, the same
// tolerance flood_message shows by ignoring l2_packet_send's return
// value.
func (c *Context) floodToPeers(frame []byte) {
	for _, peer := range c.cfg.Peers {
		if macEqual(peer, c.cfg.BSSID) {
			continue
		}
		if err := c.transport.Send(peer, frame); err != nil {
			c.logger.Warn("flood send failed", "peer", peer, "err", err)
		}
	}
}
