package steering

// State is a steering state machine state for one client entry.
type State uint8

const (
	// StateIdle is the initial state: the AP will allow the client to
	// associate and has no opinion about who else owns it.
	StateIdle State = iota

	// StateConfirming means this AP has asked a peer to close the client
	// and is waiting for that peer to confirm (ClosedClient).
	StateConfirming

	// StateAssociating means a peer confirmed it closed the client and
	// this AP is now waiting for a local association.
	StateAssociating

	// StateAssociated means the client is actively using this AP.
	StateAssociated

	// StateRejecting means this AP has blacklisted the client and is
	// waiting for the local disassociation to complete.
	StateRejecting

	// StateRejected means the client is blacklisted and disassociated.
	StateRejected
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfirming:
		return "Confirming"
	case StateAssociating:
		return "Associating"
	case StateAssociated:
		return "Associated"
	case StateRejecting:
		return "Rejecting"
	case StateRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Event is a steering state machine input.
type Event uint8

const (
	// EventAssociated fires when the station associates to this AP.
	EventAssociated Event = iota

	// EventDisassociated fires when the station leaves this AP (or is
	// presumed gone).
	EventDisassociated

	// EventPeerIsWorse fires when a peer's flooded score is worse
	// (numerically larger) than the locally known score.
	EventPeerIsWorse

	// EventPeerNotWorse fires when a peer's flooded score is equal to or
	// better than the locally known score.
	EventPeerNotWorse

	// EventPeerLostClient fires when a peer floods the maximum possible
	// score (0xFFFF), meaning it no longer hears the client.
	EventPeerLostClient

	// EventCloseClient fires when a peer asks this AP to give up the
	// client (TLV_CLOSE_CLIENT addressed to this AP's BSSID).
	EventCloseClient

	// EventClosedClient fires when a peer confirms it gave up the client
	// (TLV_CLOSED_CLIENT addressed to this AP's BSSID).
	EventClosedClient

	// EventTimeout fires when the per-entry state timer, armed on entering
	// Rejecting or Rejected, expires.
	EventTimeout
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventAssociated:
		return "Associated"
	case EventDisassociated:
		return "Disassociated"
	case EventPeerIsWorse:
		return "PeerIsWorse"
	case EventPeerNotWorse:
		return "PeerNotWorse"
	case EventPeerLostClient:
		return "PeerLostClient"
	case EventCloseClient:
		return "CloseClient"
	case EventClosedClient:
		return "ClosedClient"
	case EventTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Action is a side effect the caller must execute after a transition.
// The FSM itself never performs I/O; Context.applyEvent executes the
// actions returned by ApplyEvent.
type Action uint8

const (
	// ActionStartFloodTimer (re)arms the 1s score-flood timer. Every
	// transition that returns this action fires on EventAssociated, whose
	// handler already floods the new score immediately before applying
	// the event, so the timer's own first flood lands one interval later.
	ActionStartFloodTimer Action = iota + 1

	// ActionStopFloodTimer cancels the score-flood timer.
	ActionStopFloodTimer

	// ActionUnicastCloseClient sends a TLV_CLOSE_CLIENT to the entry's
	// remote BSSID.
	ActionUnicastCloseClient

	// ActionUnicastClosedClient sends a TLV_CLOSED_CLIENT to the entry's
	// close BSSID.
	ActionUnicastClosedClient

	// ActionBlacklistAdd instructs the control plane to blacklist the
	// station (no-op unless mode is force).
	ActionBlacklistAdd

	// ActionBlacklistRemove instructs the control plane to remove the
	// station from the blacklist (no-op unless mode is force).
	ActionBlacklistRemove

	// ActionDisassociateOrTransition issues a BSS Transition Management
	// request when the mode is suggest or the client supports it, and
	// disassociates the station otherwise.
	ActionDisassociateOrTransition

	// ActionStartStateTimer starts the 10s state timer, which bounds the
	// Rejecting/Rejected blacklist window and fires Timeout.
	ActionStartStateTimer

	// ActionStopStateTimer cancels the state timer.
	ActionStopStateTimer

	// ActionRestartStateTimer stops then restarts the state timer. Used
	// only on the Rejecting->Rejected transition, where the blacklist
	// window spans both states.
	ActionRestartStateTimer

	// ActionFloodPeerLostClient floods a TLV_SCORE carrying MaxScore,
	// telling peers this AP no longer hears the client at all. Used only
	// on the Associated->Idle transition.
	ActionFloodPeerLostClient
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionStartFloodTimer:
		return "StartFloodTimer"
	case ActionStopFloodTimer:
		return "StopFloodTimer"
	case ActionUnicastCloseClient:
		return "UnicastCloseClient"
	case ActionUnicastClosedClient:
		return "UnicastClosedClient"
	case ActionBlacklistAdd:
		return "BlacklistAdd"
	case ActionBlacklistRemove:
		return "BlacklistRemove"
	case ActionDisassociateOrTransition:
		return "DisassociateOrTransition"
	case ActionStartStateTimer:
		return "StartStateTimer"
	case ActionStopStateTimer:
		return "StopStateTimer"
	case ActionRestartStateTimer:
		return "RestartStateTimer"
	case ActionFloodPeerLostClient:
		return "FloodPeerLostClient"
	default:
		return "Unknown"
	}
}
