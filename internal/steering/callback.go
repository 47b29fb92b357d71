package steering

import "net"

// Actuators is implemented by the AP control-plane glue and invoked by
// the core engine to perform the physical side effects of a steering
// decision. None of these calls are expected to block; implementations
// should hand off to their own I/O and return quickly since they are
// invoked from the single context event loop.
//
// Kept as a separate interface, rather than a concrete dependency, so
// the core package stays free of any import on the AP control plane it
// is embedded in.
type Actuators interface {
	// BlacklistAdd instructs the control plane to blacklist the station.
	// A no-op unless the context mode is ModeForce.
	BlacklistAdd(sta net.HardwareAddr)

	// BlacklistRemove removes the station from the blacklist.
	BlacklistRemove(sta net.HardwareAddr)

	// Disassociate forcibly disassociates the station.
	Disassociate(sta net.HardwareAddr)

	// BSSTransitionRequest issues an 802.11v BSS Transition Management
	// request steering the station toward targetBSSID on the given
	// channel.
	BSSTransitionRequest(sta net.HardwareAddr, targetBSSID net.HardwareAddr, channel uint8)

	// SupportsBSSTransition reports whether the station advertised
	// 802.11v BSS Transition Management support at association.
	SupportsBSSTransition(sta net.HardwareAddr) bool
}

// StateChange describes one FSM transition, delivered to StateCallback
// subscribers for logging, metrics, or external notification fan-out.
type StateChange struct {
	Client   net.HardwareAddr
	OldState State
	NewState State
	Event    Event
}

// StateCallback receives every steering state transition. Decoupled from
// Context to avoid an import cycle between the core engine and anything
// consuming transitions (metrics, the admin event stream, external
// notifiers).
type StateCallback func(change StateChange)
