package steering_test

import (
	"slices"
	"testing"

	"github.com/cococomm/steerd/internal/steering"
)

// TestFSMTransitionTable verifies every transition in the steering FSM
// table against the Alloy-derived design in the reference
// implementation's net_steering.c, including the two deliberate
// departures from that design: Confirming+PeerNotWorse has no
// transition, and Rejecting+Disassociated restarts rather than merely
// stops the state timer.
func TestFSMTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       steering.State
		event       steering.Event
		wantState   steering.State
		wantChanged bool
		wantActions []steering.Action
	}{
		// ===============================================================
		// Idle
		// ===============================================================
		{
			name:        "Idle+Associated->Associated",
			state:       steering.StateIdle,
			event:       steering.EventAssociated,
			wantState:   steering.StateAssociated,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionStartFloodTimer},
		},
		{
			name:        "Idle+PeerIsWorse->Confirming",
			state:       steering.StateIdle,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateConfirming,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionUnicastCloseClient},
		},
		{
			name:        "Idle+PeerNotWorse->Rejected",
			state:       steering.StateIdle,
			event:       steering.EventPeerNotWorse,
			wantState:   steering.StateRejected,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionBlacklistAdd, steering.ActionStartStateTimer},
		},
		{
			name:        "Idle+PeerLostClient->Associating is a no-op transition",
			state:       steering.StateIdle,
			event:       steering.EventPeerLostClient,
			wantState:   steering.StateAssociating,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "Idle+CloseClient->Rejected",
			state:       steering.StateIdle,
			event:       steering.EventCloseClient,
			wantState:   steering.StateRejected,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionUnicastClosedClient,
				steering.ActionBlacklistAdd,
				steering.ActionStartStateTimer,
			},
		},

		// ===============================================================
		// Confirming
		// ===============================================================
		{
			name:        "Confirming+ClosedClient->Associating",
			state:       steering.StateConfirming,
			event:       steering.EventClosedClient,
			wantState:   steering.StateAssociating,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "Confirming+Associated->Associated",
			state:       steering.StateConfirming,
			event:       steering.EventAssociated,
			wantState:   steering.StateAssociated,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionStartFloodTimer},
		},
		{
			name:        "Confirming+Timeout->Idle",
			state:       steering.StateConfirming,
			event:       steering.EventTimeout,
			wantState:   steering.StateIdle,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "Confirming+PeerIsWorse->Confirming (self-loop)",
			state:       steering.StateConfirming,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateConfirming,
			wantChanged: false,
			wantActions: []steering.Action{steering.ActionUnicastCloseClient},
		},
		{
			name:        "Confirming+PeerNotWorse is absent from the table",
			state:       steering.StateConfirming,
			event:       steering.EventPeerNotWorse,
			wantState:   steering.StateConfirming,
			wantChanged: false,
			wantActions: nil,
		},

		// ===============================================================
		// Associating
		// ===============================================================
		{
			name:        "Associating+Associated->Associated",
			state:       steering.StateAssociating,
			event:       steering.EventAssociated,
			wantState:   steering.StateAssociated,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionStartFloodTimer},
		},
		{
			name:        "Associating+Disassociated->Idle",
			state:       steering.StateAssociating,
			event:       steering.EventDisassociated,
			wantState:   steering.StateIdle,
			wantChanged: true,
			wantActions: nil,
		},
		{
			name:        "Associating+PeerIsWorse->Associating (self-loop)",
			state:       steering.StateAssociating,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateAssociating,
			wantChanged: false,
			wantActions: []steering.Action{steering.ActionUnicastCloseClient},
		},
		{
			name:        "Associating+CloseClient->Rejected",
			state:       steering.StateAssociating,
			event:       steering.EventCloseClient,
			wantState:   steering.StateRejected,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionUnicastClosedClient,
				steering.ActionBlacklistAdd,
				steering.ActionStartStateTimer,
			},
		},

		// ===============================================================
		// Associated
		// ===============================================================
		{
			name:        "Associated+CloseClient->Rejecting",
			state:       steering.StateAssociated,
			event:       steering.EventCloseClient,
			wantState:   steering.StateRejecting,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionBlacklistAdd,
				steering.ActionDisassociateOrTransition,
				steering.ActionStartStateTimer,
				steering.ActionStopFloodTimer,
			},
		},
		{
			name:        "Associated+Disassociated->Idle floods peer-lost-client first",
			state:       steering.StateAssociated,
			event:       steering.EventDisassociated,
			wantState:   steering.StateIdle,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionFloodPeerLostClient, steering.ActionStopFloodTimer},
		},
		{
			name:        "Associated+PeerIsWorse->Associated (self-loop)",
			state:       steering.StateAssociated,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateAssociated,
			wantChanged: false,
			wantActions: []steering.Action{steering.ActionUnicastCloseClient},
		},

		// ===============================================================
		// Rejecting
		// ===============================================================
		{
			name:        "Rejecting+Disassociated->Rejected restarts the state timer",
			state:       steering.StateRejecting,
			event:       steering.EventDisassociated,
			wantState:   steering.StateRejected,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionUnicastClosedClient, steering.ActionRestartStateTimer},
		},
		{
			name:        "Rejecting+PeerIsWorse->Confirming",
			state:       steering.StateRejecting,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateConfirming,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionBlacklistRemove,
				steering.ActionUnicastCloseClient,
				steering.ActionStopStateTimer,
			},
		},
		{
			name:        "Rejecting+PeerLostClient->Confirming",
			state:       steering.StateRejecting,
			event:       steering.EventPeerLostClient,
			wantState:   steering.StateConfirming,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionBlacklistRemove, steering.ActionStopStateTimer},
		},
		{
			name:        "Rejecting+Timeout->Associating",
			state:       steering.StateRejecting,
			event:       steering.EventTimeout,
			wantState:   steering.StateAssociating,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionBlacklistRemove, steering.ActionStopStateTimer},
		},

		// ===============================================================
		// Rejected
		// ===============================================================
		{
			name:        "Rejected+PeerIsWorse->Confirming",
			state:       steering.StateRejected,
			event:       steering.EventPeerIsWorse,
			wantState:   steering.StateConfirming,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionBlacklistRemove,
				steering.ActionUnicastCloseClient,
				steering.ActionStopStateTimer,
			},
		},
		{
			name:        "Rejected+PeerLostClient->Confirming",
			state:       steering.StateRejected,
			event:       steering.EventPeerLostClient,
			wantState:   steering.StateConfirming,
			wantChanged: true,
			wantActions: []steering.Action{
				steering.ActionBlacklistRemove,
				steering.ActionUnicastCloseClient,
				steering.ActionStopStateTimer,
			},
		},
		{
			name:        "Rejected+CloseClient->Rejected (self-loop)",
			state:       steering.StateRejected,
			event:       steering.EventCloseClient,
			wantState:   steering.StateRejected,
			wantChanged: false,
			wantActions: []steering.Action{steering.ActionUnicastClosedClient},
		},
		{
			name:        "Rejected+Timeout->Associating",
			state:       steering.StateRejected,
			event:       steering.EventTimeout,
			wantState:   steering.StateAssociating,
			wantChanged: true,
			wantActions: []steering.Action{steering.ActionBlacklistRemove, steering.ActionStopStateTimer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := steering.ApplyEvent(tt.state, tt.event)

			if result.OldState != tt.state {
				t.Errorf("OldState = %s, want %s", result.OldState, tt.state)
			}
			if result.NewState != tt.wantState {
				t.Errorf("NewState = %s, want %s", result.NewState, tt.wantState)
			}
			if result.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", result.Changed, tt.wantChanged)
			}
			if !slices.Equal(result.Actions, tt.wantActions) {
				t.Errorf("Actions = %v, want %v", result.Actions, tt.wantActions)
			}
		})
	}
}

// TestFSMUnknownEventIsNoop verifies that every (state, event) pair not
// present in the table leaves the state unchanged with no actions,
// rather than panicking or falling through to an unrelated transition.
func TestFSMUnknownEventIsNoop(t *testing.T) {
	t.Parallel()

	result := steering.ApplyEvent(steering.StateRejecting, steering.EventAssociated)

	if result.NewState != steering.StateRejecting {
		t.Errorf("NewState = %s, want Rejecting (unchanged)", result.NewState)
	}
	if result.Changed {
		t.Error("Changed = true, want false")
	}
	if result.Actions != nil {
		t.Errorf("Actions = %v, want nil", result.Actions)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state steering.State
		want  string
	}{
		{steering.StateIdle, "Idle"},
		{steering.StateConfirming, "Confirming"},
		{steering.StateAssociating, "Associating"},
		{steering.StateAssociated, "Associated"},
		{steering.StateRejecting, "Rejecting"},
		{steering.StateRejected, "Rejected"},
		{steering.State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event steering.Event
		want  string
	}{
		{steering.EventAssociated, "Associated"},
		{steering.EventDisassociated, "Disassociated"},
		{steering.EventPeerIsWorse, "PeerIsWorse"},
		{steering.EventPeerNotWorse, "PeerNotWorse"},
		{steering.EventPeerLostClient, "PeerLostClient"},
		{steering.EventCloseClient, "CloseClient"},
		{steering.EventClosedClient, "ClosedClient"},
		{steering.EventTimeout, "Timeout"},
		{steering.Event(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.event.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
