package steering

// This file implements the steering finite state machine as a pure
// function over a transition table: no side effects, no Context
// dependency, trivially testable. The table below is ported unchanged
// from the Alloy-derived design in hostapd's net_steering module (see
// net_steering.c comment block "From original Alloy specification").

// stateEvent is the FSM transition table key: current state + incoming
// event.
type stateEvent struct {
	state State
	event Event
}

// transition describes the target state and side effects for a single
// FSM transition.
type transition struct {
	newState State
	actions  []Action
}

// FSMResult holds the outcome of applying an event to the FSM.
type FSMResult struct {
	// OldState is the state before the event was applied.
	OldState State

	// NewState is the state after the event was applied. Equal to
	// OldState when the event is ignored or is a same-state transition.
	NewState State

	// Actions lists the side effects the caller must execute, in order.
	Actions []Action

	// Changed is true when NewState differs from OldState.
	Changed bool
}

// fsmTable is the complete steering FSM transition table.
//
//nolint:gochecknoglobals // transition table is intentionally package-level
var fsmTable = map[stateEvent]transition{
	// ===================================================================
	// Idle
	// ===================================================================
	{StateIdle, EventAssociated}: {
		newState: StateAssociated,
		actions:  []Action{ActionStartFloodTimer},
	},
	{StateIdle, EventPeerIsWorse}: {
		newState: StateConfirming,
		actions:  []Action{ActionUnicastCloseClient},
	},
	{StateIdle, EventPeerNotWorse}: {
		newState: StateRejected,
		actions:  []Action{ActionBlacklistAdd, ActionStartStateTimer},
	},
	// Idle + PeerLostClient -> Associating is a same-effect transition:
	// there is nothing locally associated yet, so no action is needed.
	{StateIdle, EventPeerLostClient}: {
		newState: StateAssociating,
		actions:  nil,
	},
	{StateIdle, EventCloseClient}: {
		newState: StateRejected,
		actions:  []Action{ActionUnicastClosedClient, ActionBlacklistAdd, ActionStartStateTimer},
	},

	// ===================================================================
	// Confirming
	// ===================================================================
	{StateConfirming, EventClosedClient}: {
		newState: StateAssociating,
		actions:  nil,
	},
	{StateConfirming, EventAssociated}: {
		newState: StateAssociated,
		actions:  []Action{ActionStartFloodTimer},
	},
	{StateConfirming, EventTimeout}: {
		newState: StateIdle,
		actions:  nil,
	},
	{StateConfirming, EventPeerIsWorse}: {
		newState: StateConfirming,
		actions:  []Action{ActionUnicastCloseClient},
	},
	// Confirming + PeerNotWorse is deliberately absent: this AP has
	// already sent CloseClient and is waiting on ClosedClient. Acting on
	// PeerNotWorse here would blacklist via Rejected while a ClosedClient
	// reply is still in flight, double-processing the handoff.

	// ===================================================================
	// Associating
	// ===================================================================
	{StateAssociating, EventAssociated}: {
		newState: StateAssociated,
		actions:  []Action{ActionStartFloodTimer},
	},
	{StateAssociating, EventDisassociated}: {
		newState: StateIdle,
		actions:  nil,
	},
	{StateAssociating, EventPeerIsWorse}: {
		newState: StateAssociating,
		actions:  []Action{ActionUnicastCloseClient},
	},
	{StateAssociating, EventCloseClient}: {
		newState: StateRejected,
		actions:  []Action{ActionUnicastClosedClient, ActionBlacklistAdd, ActionStartStateTimer},
	},

	// ===================================================================
	// Associated
	// ===================================================================
	{StateAssociated, EventCloseClient}: {
		newState: StateRejecting,
		actions: []Action{
			ActionBlacklistAdd,
			ActionDisassociateOrTransition,
			ActionStartStateTimer,
			ActionStopFloodTimer,
		},
	},
	// Floods a MaxScore announcement before the flood timer stops, so
	// peers waiting to reclaim the client learn it's gone rather than
	// inferring it from silence alone. The reference implementation's
	// Alloy design comment calls for this (flood_peer_lost_client on
	// this exact transition) but its generated C never wires it up.
	{StateAssociated, EventDisassociated}: {
		newState: StateIdle,
		actions:  []Action{ActionFloodPeerLostClient, ActionStopFloodTimer},
	},
	{StateAssociated, EventPeerIsWorse}: {
		newState: StateAssociated,
		actions:  []Action{ActionUnicastCloseClient},
	},

	// ===================================================================
	// Rejecting
	// ===================================================================
	//
	// The Disassociated transition restarts (not merely stops) the state
	// timer: the blacklist window started on entry to Rejecting continues
	// unbroken through the hop to Rejected.
	{StateRejecting, EventDisassociated}: {
		newState: StateRejected,
		actions:  []Action{ActionUnicastClosedClient, ActionRestartStateTimer},
	},
	{StateRejecting, EventPeerIsWorse}: {
		newState: StateConfirming,
		actions:  []Action{ActionBlacklistRemove, ActionUnicastCloseClient, ActionStopStateTimer},
	},
	{StateRejecting, EventPeerLostClient}: {
		newState: StateConfirming,
		actions:  []Action{ActionBlacklistRemove, ActionStopStateTimer},
	},
	{StateRejecting, EventTimeout}: {
		newState: StateAssociating,
		actions:  []Action{ActionBlacklistRemove, ActionStopStateTimer},
	},

	// ===================================================================
	// Rejected
	// ===================================================================
	{StateRejected, EventPeerIsWorse}: {
		newState: StateConfirming,
		actions:  []Action{ActionBlacklistRemove, ActionUnicastCloseClient, ActionStopStateTimer},
	},
	{StateRejected, EventPeerLostClient}: {
		newState: StateConfirming,
		actions:  []Action{ActionBlacklistRemove, ActionUnicastCloseClient, ActionStopStateTimer},
	},
	{StateRejected, EventCloseClient}: {
		newState: StateRejected,
		actions:  []Action{ActionUnicastClosedClient},
	},
	{StateRejected, EventTimeout}: {
		newState: StateAssociating,
		actions:  []Action{ActionBlacklistRemove, ActionStopStateTimer},
	},
}

// ApplyEvent applies an FSM event to the given state and returns the
// result. This is a pure function with no side effects; the caller
// executes the returned actions. Any (state, event) pair absent from the
// table is a no-op: state is unchanged and no actions run. This is by
// design -- e.g. a MAP in Confirming that receives a second CloseClient
// before its own ClosedClient round-trips should not re-run side effects.
func ApplyEvent(currentState State, event Event) FSMResult {
	key := stateEvent{state: currentState, event: event}

	tr, ok := fsmTable[key]
	if !ok {
		return FSMResult{
			OldState: currentState,
			NewState: currentState,
			Actions:  nil,
			Changed:  false,
		}
	}

	return FSMResult{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
