//go:build linux

package netio

import (
	"fmt"
	"log/slog"
	"net"
)

// FrameSender implements steering.FrameTransport by sending steering
// control frames over a raw Ethernet socket bound to a single
// bridge-facing interface.
type FrameSender struct {
	conn   *LinuxFrameConn
	logger *slog.Logger
}

// NewFrameSender opens a raw Ethernet socket on ifName and wraps it as a
// steering.FrameTransport.
func NewFrameSender(ifName string, logger *slog.Logger) (*FrameSender, error) {
	conn, err := NewFrameConn(ifName)
	if err != nil {
		return nil, fmt.Errorf("create frame sender on %s: %w", ifName, err)
	}

	return &FrameSender{
		conn: conn,
		logger: logger.With(
			slog.String("component", "netio.sender"),
			slog.String("iface", ifName),
		),
	}, nil
}

// Send satisfies steering.FrameTransport: it wraps frame in an Ethernet
// II header addressed to dst and writes it to the bound interface.
func (s *FrameSender) Send(dst net.HardwareAddr, frame []byte) error {
	if err := s.conn.WriteFrame(dst, frame); err != nil {
		return fmt.Errorf("send steering frame to %s: %w", dst, err)
	}
	return nil
}

// LocalMAC returns the hardware address of the bound interface.
func (s *FrameSender) LocalMAC() net.HardwareAddr {
	return s.conn.LocalMAC()
}

// Close releases the underlying socket.
func (s *FrameSender) Close() error {
	return s.conn.Close()
}
