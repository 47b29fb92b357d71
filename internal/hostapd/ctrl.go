// Package hostapd implements steering.Actuators against a hostapd
// control interface socket, the same UNIX datagram protocol hostapd_cli
// speaks (UDP-style request/reply over SOCK_DGRAM, one command per
// datagram, "OK" or "FAIL" on the simple commands).
package hostapd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// dialSeq numbers the Ctrl connections of this process so each one gets
// its own local socket path.
var dialSeq atomic.Uint64

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrCtrlClosed indicates a command was issued after Close.
	ErrCtrlClosed = errors.New("hostapd control connection closed")

	// ErrCtrlFail indicates hostapd replied FAIL to a command.
	ErrCtrlFail = errors.New("hostapd control command failed")

	// ErrCtrlTimeout indicates no reply arrived within requestTimeout.
	ErrCtrlTimeout = errors.New("hostapd control command timed out")
)

// requestTimeout bounds how long a single control-socket round trip may
// take before the actuator call gives up and logs the failure. Actuators
// methods never return errors to the core engine, so this only affects
// how quickly a stuck socket is detected.
const requestTimeout = 2 * time.Second

// -------------------------------------------------------------------------
// Ctrl — hostapd control interface client
// -------------------------------------------------------------------------

// Ctrl talks to one hostapd BSS control interface socket
// (e.g. /var/run/hostapd/wlan0) using the same local-socket-pair
// request/reply pattern as hostapd_cli.
type Ctrl struct {
	conn      *net.UnixConn
	localPath string
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the hostapd control interface socket at ctrlPath.
// A private client socket is created in os.TempDir() so replies are
// delivered only to this connection, mirroring hostapd_cli's own setup.
func Dial(ctrlPath string, logger *slog.Logger) (*Ctrl, error) {
	localPath := fmt.Sprintf("%s/steerd-%d-%d.sock", os.TempDir(), os.Getpid(), dialSeq.Add(1))

	local, err := net.ResolveUnixAddr("unixgram", localPath)
	if err != nil {
		return nil, fmt.Errorf("resolve local control addr: %w", err)
	}

	remote, err := net.ResolveUnixAddr("unixgram", ctrlPath)
	if err != nil {
		return nil, fmt.Errorf("resolve hostapd control addr %s: %w", ctrlPath, err)
	}

	conn, err := net.DialUnix("unixgram", local, remote)
	if err != nil {
		return nil, fmt.Errorf("dial hostapd control socket %s: %w", ctrlPath, err)
	}

	return &Ctrl{
		conn:      conn,
		localPath: localPath,
		logger:    logger.With(slog.String("component", "hostapd.ctrl"), slog.String("socket", ctrlPath)),
	}, nil
}

// Close closes the control connection and removes the local socket file.
func (c *Ctrl) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	_ = os.Remove(c.localPath)
	return err
}

// request sends cmd and waits for a single-datagram reply, trimmed of
// trailing whitespace.
func (c *Ctrl) request(cmd string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrCtrlClosed
	}
	c.mu.Unlock()

	if err := c.conn.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("write command %q: %w", cmd, err)
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("command %q: %w", cmd, ErrCtrlTimeout)
		}
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}

	return strings.TrimSpace(string(buf[:n])), nil
}

// requestOK sends cmd and treats any reply other than exactly "OK" as a
// failure.
func (c *Ctrl) requestOK(cmd string) error {
	reply, err := c.request(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("command %q: reply %q: %w", cmd, reply, ErrCtrlFail)
	}
	return nil
}

// -------------------------------------------------------------------------
// steering.Actuators implementation
// -------------------------------------------------------------------------

// BlacklistAdd issues "BLACKLIST ADD <mac>". Failures are logged, not
// returned, since Actuators methods run inline in the steering event
// loop and must not block on error propagation.
func (c *Ctrl) BlacklistAdd(sta net.HardwareAddr) {
	if err := c.requestOK(fmt.Sprintf("BLACKLIST ADD %s", sta)); err != nil {
		c.logger.Warn("blacklist add failed", slog.String("sta", sta.String()), slog.String("error", err.Error()))
	}
}

// BlacklistRemove issues "BLACKLIST DEL <mac>".
func (c *Ctrl) BlacklistRemove(sta net.HardwareAddr) {
	if err := c.requestOK(fmt.Sprintf("BLACKLIST DEL %s", sta)); err != nil {
		c.logger.Warn("blacklist remove failed", slog.String("sta", sta.String()), slog.String("error", err.Error()))
	}
}

// Disassociate issues "DEAUTHENTICATE <mac>", matching the reference
// implementation's use of deauthentication (not disassociation) to move
// a station off the BSS immediately.
func (c *Ctrl) Disassociate(sta net.HardwareAddr) {
	if err := c.requestOK(fmt.Sprintf("DEAUTHENTICATE %s", sta)); err != nil {
		c.logger.Warn("deauthenticate failed", slog.String("sta", sta.String()), slog.String("error", err.Error()))
	}
}

// BSSTransitionRequest issues "BSS_TM_REQ <mac> pref=1
// neighbor=<bssid>,<bssid_info>,<op_class>,<channel>,<phy_type>", with
// bssid_info, op_class and phy_type set to 0.
func (c *Ctrl) BSSTransitionRequest(sta net.HardwareAddr, targetBSSID net.HardwareAddr, channel uint8) {
	cmd := fmt.Sprintf("BSS_TM_REQ %s pref=1 neighbor=%s,0,0,%d,0", sta, targetBSSID, channel)
	if err := c.requestOK(cmd); err != nil {
		c.logger.Warn("bss transition request failed",
			slog.String("sta", sta.String()),
			slog.String("target_bssid", targetBSSID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// SupportsBSSTransition issues "STA <mac>" and looks for the
// "wnm_bss_trans=1" field in the reply (hostapd reports this only when
// the association request's Extended Capabilities element set the BSS
// Transition Management bit).
func (c *Ctrl) SupportsBSSTransition(sta net.HardwareAddr) bool {
	reply, err := c.request(fmt.Sprintf("STA %s", sta))
	if err != nil {
		c.logger.Warn("sta query failed", slog.String("sta", sta.String()), slog.String("error", err.Error()))
		return false
	}
	return strings.Contains(reply, "wnm_bss_trans=1")
}

// -------------------------------------------------------------------------
// Unsolicited Event Pump — station association/disassociation/probe
// -------------------------------------------------------------------------

// EventHandler receives decoded hostapd unsolicited control events.
// Implemented by *steering.Context (OnAssociate/OnDisassociate/OnProbe
// have matching signatures).
type EventHandler interface {
	OnAssociate(sta net.HardwareAddr, rssi int)
	OnDisassociate(sta net.HardwareAddr)
	OnProbe(sta, bssid net.HardwareAddr, rssi int)
}

// RunEvents attaches to unsolicited hostapd events ("ATTACH" command)
// and dispatches AP-STA-CONNECTED / AP-STA-DISCONNECTED /
// RX-PROBE-REQUEST lines to handler until ctx is cancelled.
func (c *Ctrl) RunEvents(ctx context.Context, handler EventHandler) error {
	if err := c.requestOK("ATTACH"); err != nil {
		return fmt.Errorf("attach to hostapd events: %w", err)
	}
	defer func() {
		if err := c.requestOK("DETACH"); err != nil {
			c.logger.Warn("detach from hostapd events failed", slog.String("error", err.Error()))
		}
	}()

	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return fmt.Errorf("read hostapd event: %w", err)
		}

		dispatchEvent(handler, string(buf[:n]))
	}
}

// dispatchEvent parses one hostapd unsolicited event line and invokes
// the matching EventHandler method. Lines that do not match a known
// event prefix are ignored.
func dispatchEvent(handler EventHandler, line string) {
	line = strings.TrimSpace(line)
	// Unsolicited messages are prefixed with "<3>" (a syslog-style
	// priority tag); strip it before matching.
	if idx := strings.Index(line, ">"); idx >= 0 && idx < 4 && strings.HasPrefix(line, "<") {
		line = line[idx+1:]
	}

	switch {
	case strings.HasPrefix(line, "AP-STA-CONNECTED "):
		mac := strings.TrimPrefix(line, "AP-STA-CONNECTED ")
		if sta, err := net.ParseMAC(strings.TrimSpace(mac)); err == nil {
			handler.OnAssociate(sta, parseRSSIField(line))
		}
	case strings.HasPrefix(line, "AP-STA-DISCONNECTED "):
		mac := strings.TrimPrefix(line, "AP-STA-DISCONNECTED ")
		if sta, err := net.ParseMAC(strings.TrimSpace(mac)); err == nil {
			handler.OnDisassociate(sta)
		}
	case strings.HasPrefix(line, "RX-PROBE-REQUEST "):
		fields := strings.Fields(line)
		var sta, bssid net.HardwareAddr
		for _, f := range fields {
			if v, ok := strings.CutPrefix(f, "sa="); ok {
				sta, _ = net.ParseMAC(v)
			}
			if v, ok := strings.CutPrefix(f, "da="); ok {
				bssid, _ = net.ParseMAC(v)
			}
		}
		if sta != nil && bssid != nil {
			handler.OnProbe(sta, bssid, parseRSSIField(line))
		}
	}
}

// parseRSSIField extracts "rssi=<n>" from a hostapd event line. Returns
// -0xFFFF if absent, which the steering score clamps to the worst
// non-sentinel score, matching the reference implementation's treatment
// of a missing signal field as "unknown, assume worst".
func parseRSSIField(line string) int {
	for _, f := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(f, "rssi="); ok {
			var rssi int
			if _, err := fmt.Sscanf(v, "%d", &rssi); err == nil {
				return rssi
			}
		}
	}
	return -0xFFFF
}
