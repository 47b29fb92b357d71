package steering

// Metrics receives counters from a running Context. Kept as an
// interface -- not a concrete dependency on internal/metrics -- so the
// core engine stays free of any import on Prometheus. A nil Metrics is
// never stored on a Context; WithMetrics
// falls back to noopMetrics when called with nil.
type Metrics interface {
	// ClientCreated is called the first time a station is seen, whether
	// via local association, local probe, or a peer's TLV.
	ClientCreated()

	// FrameDropped is called whenever an inbound frame fails to decode
	// or carries an unrecognized TLV type.
	FrameDropped()

	// FrameSent is called after a frame of the given TLV type is
	// successfully marshaled and handed to the transport for flooding.
	FrameSent(tlvType uint8)

	// StateTransition is called on every FSM transition that changes
	// state, after the transition's actions have run.
	StateTransition(from, to State)
}

type noopMetrics struct{}

func (noopMetrics) ClientCreated()               {}
func (noopMetrics) FrameDropped()                {}
func (noopMetrics) FrameSent(uint8)               {}
func (noopMetrics) StateTransition(State, State) {}
