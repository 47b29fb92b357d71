package steering

import (
	"net"
	"time"
)

// macKey is a comparable map key for a station MAC address.
type macKey [6]byte

func keyOf(mac net.HardwareAddr) macKey {
	var k macKey
	copy(k[:], mac)
	return k
}

// ClientEntry tracks one station's steering state for one context. An
// entry exists for every station this context has ever associated,
// heard probe from, or heard mentioned in a peer's score/close frame --
// mirroring net_steering_client in the reference implementation, which
// is created lazily by client_find/client_create and is never torn down
// except when the owning context is deinitialized.
type ClientEntry struct {
	// Addr is the station MAC address. Always populated, whether the
	// entry originated from a local association, a local probe, or a
	// peer's TLV.
	Addr net.HardwareAddr

	// State is the current steering FSM state.
	State State

	// Score is the locally observed score. MaxScore means unknown/unset.
	Score uint16

	// RemoteBSSID is the BSSID this context currently believes owns the
	// client, as last reported by a TLV_SCORE. Nil when unset.
	RemoteBSSID net.HardwareAddr

	// RemoteAdjustedTime is the locally-corrected "owns since" instant
	// derived from the last accepted TLV_SCORE's assoc_msecs field. The
	// zero Time sorts before any real instant, so it behaves correctly
	// as "no remote info yet" without a separate boolean.
	RemoteAdjustedTime time.Time

	// CloseBSSID is the BSSID that most recently asked this context (via
	// TLV_CLOSE_CLIENT) to give up the client.
	CloseBSSID net.HardwareAddr

	// AssociationTime is when the client last associated locally. The
	// zero Time means not currently locally associated.
	AssociationTime time.Time

	// RemoteChannel is the channel hint carried on the most recent
	// TLV_CLOSE_CLIENT, used for 802.11v BSS Transition Management.
	RemoteChannel uint8

	timers timerSet
}

// newClientEntry creates an entry in StateIdle with an unknown score, the
// same defaults client_create zero-initializes in the reference
// implementation.
func newClientEntry(addr net.HardwareAddr) *ClientEntry {
	a := make(net.HardwareAddr, 6)
	copy(a, addr)
	return &ClientEntry{
		Addr:  a,
		State: StateIdle,
		Score: MaxScore,
	}
}

// isLocallyAssociated reports whether the client is both Associated and
// has a nonzero AssociationTime, matching client_is_associated's
// sta-pointer-and-state check.
func (e *ClientEntry) isLocallyAssociated() bool {
	return e.State == StateAssociated && !e.AssociationTime.IsZero()
}
