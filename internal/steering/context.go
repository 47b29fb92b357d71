package steering

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Mode controls how far the context acts on its own steering decisions.
type Mode uint8

const (
	// ModeOff disables steering; a Context should not be constructed at
	// all when the owning daemon resolves its configuration to ModeOff.
	ModeOff Mode = iota

	// ModeSuggest issues 802.11v BSS Transition Management requests but
	// never forces a disassociation or programs the blacklist.
	ModeSuggest

	// ModeForce additionally forces disassociation and programs the
	// blacklist, matching net_steering_mode=2 in the reference config.
	ModeForce
)

// Config is the static, per-BSS configuration of one steering Context.
type Config struct {
	// BSSID is this AP's own BSSID, compared against the target_bssid
	// field of inbound TLVs to decide whether a frame is addressed here.
	BSSID net.HardwareAddr

	// Channel is this AP's operating channel, carried in outgoing
	// TLV_CLOSE_CLIENT frames as a transition hint for the target AP.
	Channel uint8

	// Mode selects how aggressively the context acts on decisions.
	Mode Mode

	// Peers is the set of other BSSIDs this context floods frames to.
	Peers []net.HardwareAddr
}

// Context is the single-threaded steering engine for one BSS. All
// ClientEntry mutation happens inside the goroutine running Run; every
// other method only enqueues work onto the internal event channel.
// ListClients and GetClient then wait for the loop's reply; the others
// return as soon as the work is enqueued. This is the Go-shaped equivalent of the
// reference implementation's reliance on hostapd's single-threaded
// eloop for exclusive access to net_steering_client state -- channels
// instead of a single-threaded callback dispatcher, same guarantee: no
// locks anywhere in the client map.
type Context struct {
	cfg       Config
	transport FrameTransport
	actuators Actuators
	logger    *slog.Logger
	metrics   Metrics
	onChange  StateCallback
	now       func() time.Time

	clients map[macKey]*ClientEntry
	frameSN uint16

	events chan any
}

// Option configures optional Context behavior.
type Option func(*Context)

// WithLogger overrides the default slog.Logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithMetrics registers a Metrics sink. Without this option, metrics
// calls are no-ops.
func WithMetrics(m Metrics) Option {
	return func(c *Context) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithStateCallback registers a callback invoked on every FSM
// transition that changes state; same-state transitions and ignored
// events do not invoke it.
func WithStateCallback(cb StateCallback) Option {
	return func(c *Context) { c.onChange = cb }
}

// withClock overrides the time source. Test-only.
func withClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// NewContext constructs a Context. The returned Context does nothing
// until Run is called.
func NewContext(cfg Config, transport FrameTransport, actuators Actuators, opts ...Option) *Context {
	c := &Context{
		cfg:       cfg,
		transport: transport,
		actuators: actuators,
		logger:    slog.Default(),
		metrics:   noopMetrics{},
		now:       time.Now,
		clients:   make(map[macKey]*ClientEntry),
		events:    make(chan any, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run is the context's single event loop. It processes control-plane
// calls, inbound frames, and timer fires strictly in arrival order until
// ctx is canceled, at which point it stops every armed timer and
// returns ctx.Err(). Run must be called exactly once, from exactly one
// goroutine, for the lifetime of the Context.
func (c *Context) Run(ctx context.Context) error {
	defer c.stopAllTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

func (c *Context) dispatch(ev any) {
	switch e := ev.(type) {
	case frameEvent:
		c.handleFrame(e)
	case associateEvent:
		c.handleAssociate(e)
	case disassociateEvent:
		c.handleDisassociate(e)
	case probeEvent:
		c.handleProbe(e)
	case timerFireEvent:
		c.handleTimerFire(e)
	case snapshotQuery:
		c.handleSnapshotQuery(e)
	case setModeEvent:
		c.cfg.Mode = e.mode
	}
}

// -------------------------------------------------------------------------
// External interfaces -- control plane (async: enqueue and return)
// -------------------------------------------------------------------------

type frameEvent struct {
	src net.HardwareAddr
	raw []byte
}

type associateEvent struct {
	sta  net.HardwareAddr
	rssi int
}

type disassociateEvent struct {
	sta net.HardwareAddr
}

type probeEvent struct {
	sta   net.HardwareAddr
	bssid net.HardwareAddr
	rssi  int
}

type timerKind uint8

const (
	timerKindFlood timerKind = iota
	timerKindState
	timerKindProbe
)

type timerFireEvent struct {
	entry *ClientEntry
	kind  timerKind
}

// ClientSnapshot is a read-only, point-in-time copy of one ClientEntry,
// safe to hand outside the Context's goroutine (e.g. to an admin API
// handler).
type ClientSnapshot struct {
	Addr               net.HardwareAddr
	State              State
	Score              uint16
	RemoteBSSID        net.HardwareAddr
	RemoteAdjustedTime time.Time
	CloseBSSID         net.HardwareAddr
	AssociationTime    time.Time
	RemoteChannel      uint8
}

func snapshotOf(e *ClientEntry) ClientSnapshot {
	return ClientSnapshot{
		Addr:               cloneMAC(e.Addr),
		State:              e.State,
		Score:              e.Score,
		RemoteBSSID:        cloneMAC(e.RemoteBSSID),
		RemoteAdjustedTime: e.RemoteAdjustedTime,
		CloseBSSID:         cloneMAC(e.CloseBSSID),
		AssociationTime:    e.AssociationTime,
		RemoteChannel:      e.RemoteChannel,
	}
}

type snapshotQuery struct {
	mac   net.HardwareAddr // nil means "all clients"
	reply chan []ClientSnapshot
}

type setModeEvent struct {
	mode Mode
}

func (c *Context) handleSnapshotQuery(q snapshotQuery) {
	if q.mac != nil {
		e, ok := c.clients[keyOf(q.mac)]
		if !ok {
			q.reply <- nil
			return
		}
		q.reply <- []ClientSnapshot{snapshotOf(e)}
		return
	}

	out := make([]ClientSnapshot, 0, len(c.clients))
	for _, e := range c.clients {
		out = append(out, snapshotOf(e))
	}
	q.reply <- out
}

// ListClients returns a snapshot of every known client entry. Blocks
// until the Context's event loop processes the query; ctx bounds that
// wait.
func (c *Context) ListClients(ctx context.Context) ([]ClientSnapshot, error) {
	reply := make(chan []ClientSnapshot, 1)
	select {
	case c.events <- snapshotQuery{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snaps := <-reply:
		return snaps, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetClient returns the snapshot for a single station, or ok=false if
// no entry exists for it.
func (c *Context) GetClient(ctx context.Context, mac net.HardwareAddr) (ClientSnapshot, bool, error) {
	reply := make(chan []ClientSnapshot, 1)
	select {
	case c.events <- snapshotQuery{mac: mac, reply: reply}:
	case <-ctx.Done():
		return ClientSnapshot{}, false, ctx.Err()
	}
	select {
	case snaps := <-reply:
		if len(snaps) == 0 {
			return ClientSnapshot{}, false, nil
		}
		return snaps[0], true, nil
	case <-ctx.Done():
		return ClientSnapshot{}, false, ctx.Err()
	}
}

// SetMode enqueues a steering mode change, applied inside the event
// loop so it never races a transition mid-flight.
func (c *Context) SetMode(mode Mode) {
	c.events <- setModeEvent{mode: mode}
}

// HandleFrame enqueues a raw L2 frame received from src for processing.
// Called from the netio receiver goroutine.
func (c *Context) HandleFrame(src net.HardwareAddr, raw []byte) {
	c.events <- frameEvent{src: src, raw: raw}
}

// OnAssociate enqueues a local station association, mirroring
// net_steering_association.
func (c *Context) OnAssociate(sta net.HardwareAddr, rssi int) {
	c.events <- associateEvent{sta: sta, rssi: rssi}
}

// OnDisassociate enqueues a local station disassociation, mirroring
// net_steering_disassociation.
func (c *Context) OnDisassociate(sta net.HardwareAddr) {
	c.events <- disassociateEvent{sta: sta}
}

// OnProbe enqueues a probe request heard from sta addressed to bssid,
// mirroring the probe_req callback path in the reference implementation.
func (c *Context) OnProbe(sta, bssid net.HardwareAddr, rssi int) {
	c.events <- probeEvent{sta: sta, bssid: bssid, rssi: rssi}
}

// -------------------------------------------------------------------------
// Handlers -- run exclusively inside Run's goroutine
// -------------------------------------------------------------------------

func (c *Context) findOrCreate(sta net.HardwareAddr) *ClientEntry {
	k := keyOf(sta)
	e, ok := c.clients[k]
	if !ok {
		e = newClientEntry(sta)
		c.clients[k] = e
		c.metrics.ClientCreated()
	}
	return e
}

func (c *Context) handleAssociate(ev associateEvent) {
	e := c.findOrCreate(ev.sta)

	e.RemoteBSSID = nil
	e.RemoteAdjustedTime = time.Time{}
	e.AssociationTime = c.now()
	e.Score = scoreFromRSSI(ev.rssi)

	c.stopProbeTimer(e)

	// do_flood_score runs before the SM event in net_steering_association,
	// so a peer hears the new owner's score even if this entry was
	// already Associated (e.g. a roam back onto the same BSS).
	c.doFloodScore(e)
	c.applyEvent(e, EventAssociated)
}

func (c *Context) handleDisassociate(ev disassociateEvent) {
	k := keyOf(ev.sta)
	e, ok := c.clients[k]
	if !ok {
		return
	}

	c.applyEvent(e, EventDisassociated)

	e.AssociationTime = time.Time{}
	e.RemoteBSSID = nil
	e.RemoteAdjustedTime = time.Time{}
	c.startProbeTimer(e)
}

func (c *Context) handleProbe(ev probeEvent) {
	k := keyOf(ev.sta)
	e, ok := c.clients[k]
	if !ok {
		if !macEqual(ev.bssid, c.cfg.BSSID) {
			return
		}
		e = c.findOrCreate(ev.sta)
	}

	score := scoreFromRSSI(ev.rssi)
	if score != e.Score {
		e.Score = score
		if e.State == StateAssociated {
			c.doFloodScore(e)
		}
	}

	if e.State != StateAssociated {
		c.resetProbeTimer(e)
	}
}

func (c *Context) handleFrame(ev frameEvent) {
	f, err := Unmarshal(ev.raw)
	if err != nil {
		c.logger.Debug("dropping malformed steering frame", "src", ev.src, "err", err)
		c.metrics.FrameDropped()
		return
	}

	switch f.TLVType {
	case TLVScore:
		c.receiveScore(f.Score)
	case TLVCloseClient:
		c.receiveCloseClient(f.CloseClient)
	case TLVClosedClient:
		c.receiveClosedClient(f.ClosedClient)
	default:
		c.logger.Debug("dropping unknown tlv type", "tlv_type", f.TLVType, "src", ev.src)
		c.metrics.FrameDropped()
	}
}

func (c *Context) receiveScore(s ScoreTLV) {
	e := c.findOrCreate(s.ClientMAC)

	if macEqual(s.SenderBSSID, e.RemoteBSSID) {
		c.compareScores(e, s.Score)
		return
	}

	// A score from a different claimed owner than we currently track is
	// only actionable if it is more recent: the zero Time sorts before
	// every real instant, so a never-set RemoteAdjustedTime always loses.
	adjusted := c.now().Add(-time.Duration(s.AssocMsecs) * time.Millisecond)
	if !e.RemoteAdjustedTime.Before(adjusted) {
		return
	}

	if e.isLocallyAssociated() {
		c.applyEvent(e, EventDisassociated)
		e.AssociationTime = time.Time{}
	}

	e.RemoteBSSID = cloneMAC(s.SenderBSSID)
	e.RemoteAdjustedTime = adjusted
	c.compareScores(e, s.Score)
}

// compareScores runs E_PEER_LOST_CLIENT when the peer reports MaxScore --
// it no longer hears the client at all, so there is no rival to close,
// only a blacklist to lift. Otherwise it runs E_PEER_IS_WORSE when our
// score is strictly better (lower) than the peer's reported score, and
// E_PEER_NOT_WORSE when it is not -- compare_scores in the reference
// implementation, extended to give peer_lost_client its own trigger
// since the reference C never actually raises that event despite
// defining transitions for it.
func (c *Context) compareScores(e *ClientEntry, peerScore uint16) {
	switch {
	case peerScore == MaxScore:
		c.applyEvent(e, EventPeerLostClient)
	case e.Score < peerScore:
		c.applyEvent(e, EventPeerIsWorse)
	default:
		c.applyEvent(e, EventPeerNotWorse)
	}
}

func (c *Context) receiveCloseClient(cc CloseClientTLV) {
	if !macEqual(cc.TargetBSSID, c.cfg.BSSID) {
		return
	}
	k := keyOf(cc.ClientMAC)
	e, ok := c.clients[k]
	if !ok {
		c.logger.Debug("close_client for unknown client", "client", cc.ClientMAC)
		return
	}

	e.RemoteChannel = cc.Channel
	e.CloseBSSID = cloneMAC(cc.SenderBSSID)
	c.applyEvent(e, EventCloseClient)
}

func (c *Context) receiveClosedClient(cc ClosedClientTLV) {
	if !macEqual(cc.TargetBSSID, c.cfg.BSSID) {
		return
	}
	k := keyOf(cc.ClientMAC)
	e, ok := c.clients[k]
	if !ok {
		c.logger.Debug("closed_client for unknown client", "client", cc.ClientMAC)
		return
	}

	c.applyEvent(e, EventClosedClient)
}

func (c *Context) handleTimerFire(ev timerFireEvent) {
	switch ev.kind {
	case timerKindFlood:
		c.doFloodScore(ev.entry)
		c.startFloodTimer(ev.entry)
	case timerKindState:
		c.applyEvent(ev.entry, EventTimeout)
	case timerKindProbe:
		ev.entry.Score = MaxScore
	}
}

// -------------------------------------------------------------------------
// FSM glue
// -------------------------------------------------------------------------

func (c *Context) applyEvent(e *ClientEntry, event Event) {
	result := ApplyEvent(e.State, event)
	oldState := e.State
	e.State = result.NewState

	for _, action := range result.Actions {
		c.executeAction(e, action)
	}

	if result.Changed {
		c.metrics.StateTransition(oldState, result.NewState)
		c.logger.Debug("steering state transition",
			"client", e.Addr, "from", oldState, "to", result.NewState, "event", event)
		if c.onChange != nil {
			c.onChange(StateChange{
				Client:   e.Addr,
				OldState: oldState,
				NewState: result.NewState,
				Event:    event,
			})
		}
	}
}

func (c *Context) executeAction(e *ClientEntry, action Action) {
	switch action {
	case ActionStartFloodTimer:
		c.startFloodTimer(e)
	case ActionStopFloodTimer:
		c.stopFloodTimer(e)
	case ActionUnicastCloseClient:
		c.floodCloseClient(e)
	case ActionUnicastClosedClient:
		c.floodClosedClient(e)
	case ActionBlacklistAdd:
		if c.cfg.Mode == ModeForce {
			c.actuators.BlacklistAdd(e.Addr)
		}
	case ActionBlacklistRemove:
		if c.cfg.Mode == ModeForce {
			c.actuators.BlacklistRemove(e.Addr)
		}
	case ActionDisassociateOrTransition:
		c.disassociateOrTransition(e)
	case ActionStartStateTimer:
		c.startStateTimer(e)
	case ActionStopStateTimer:
		c.stopStateTimer(e)
	case ActionRestartStateTimer:
		c.stopStateTimer(e)
		c.startStateTimer(e)
	case ActionFloodPeerLostClient:
		c.floodPeerLostClient(e)
	}
}

// disassociateOrTransition runs only from the Associated+CloseClient
// transition, so e is still locally associated at this point. The
// transition target is e.CloseBSSID -- the peer that just asked this AP
// to give the client up -- not e.RemoteBSSID, which is this AP's own
// belief about ownership and may be stale or unset.
func (c *Context) disassociateOrTransition(e *ClientEntry) {
	// e.State has already moved to Rejecting by the time this action
	// runs, so "was this client locally associated" is tracked by
	// AssociationTime rather than the FSM state, the same split the
	// reference implementation keeps between its SM state and the
	// independent sta-pointer check in client_is_associated.
	if e.AssociationTime.IsZero() {
		c.logger.Warn("disassociate-or-transition on non-associated client", "client", e.Addr)
		return
	}
	if c.cfg.Mode == ModeSuggest || c.actuators.SupportsBSSTransition(e.Addr) {
		c.actuators.BSSTransitionRequest(e.Addr, e.CloseBSSID, e.RemoteChannel)
		return
	}
	c.actuators.Disassociate(e.Addr)
}

// -------------------------------------------------------------------------
// Flooding
// -------------------------------------------------------------------------

func (c *Context) nextSN() uint16 {
	c.frameSN++
	return c.frameSN
}

func (c *Context) doFloodScore(e *ClientEntry) {
	if e.Score == MaxScore {
		return
	}

	bufp := FramePool.Get().(*[]byte) //nolint:forcetypeassert // pool only ever holds *[]byte
	defer FramePool.Put(bufp)

	assocMsecs := uint32(c.now().Sub(e.AssociationTime) / time.Millisecond) //nolint:gosec // bounded duration
	n, err := MarshalScore(*bufp, c.nextSN(), e.Addr, c.cfg.BSSID, e.Score, assocMsecs)
	if err != nil {
		c.logger.Warn("marshal score failed", "client", e.Addr, "err", err)
		return
	}

	c.floodToPeers((*bufp)[:n])
	c.metrics.FrameSent(TLVScore)
}

// floodPeerLostClient announces MaxScore unconditionally, bypassing
// doFloodScore's "skip if score is already MaxScore" guard: the point
// of this flood is precisely to tell peers the score is now MaxScore.
func (c *Context) floodPeerLostClient(e *ClientEntry) {
	bufp := FramePool.Get().(*[]byte) //nolint:forcetypeassert // pool only ever holds *[]byte
	defer FramePool.Put(bufp)

	n, err := MarshalScore(*bufp, c.nextSN(), e.Addr, c.cfg.BSSID, MaxScore, 0)
	if err != nil {
		c.logger.Warn("marshal peer-lost-client score failed", "client", e.Addr, "err", err)
		return
	}

	c.floodToPeers((*bufp)[:n])
	c.metrics.FrameSent(TLVScore)
}

// floodCloseClient addresses the TargetBSSID field at e.RemoteBSSID, the
// peer this context currently believes owns the client, and asks it to
// give the client up. The frame is physically sent to every configured
// peer (flood_message has no unicast path); only the addressed peer
// acts on it, matching receive_close_client's target_bssid check.
func (c *Context) floodCloseClient(e *ClientEntry) {
	bufp := FramePool.Get().(*[]byte) //nolint:forcetypeassert // pool only ever holds *[]byte
	defer FramePool.Put(bufp)

	n, err := MarshalCloseClient(*bufp, c.nextSN(), e.Addr, c.cfg.BSSID, e.RemoteBSSID, c.cfg.Channel)
	if err != nil {
		c.logger.Warn("marshal close_client failed", "client", e.Addr, "err", err)
		return
	}

	c.floodToPeers((*bufp)[:n])
	c.metrics.FrameSent(TLVCloseClient)
}

// floodClosedClient addresses the TargetBSSID field at e.CloseBSSID, the
// peer that most recently asked this context to close the client. This
// departs from the reference implementation, which writes its own
// (sender) BSSID into that field instead of close_bssid -- its debug log
// names close_bssid as the intended recipient, so that is taken as the
// intended behavior rather than the literal one.
func (c *Context) floodClosedClient(e *ClientEntry) {
	bufp := FramePool.Get().(*[]byte) //nolint:forcetypeassert // pool only ever holds *[]byte
	defer FramePool.Put(bufp)

	n, err := MarshalClosedClient(*bufp, c.nextSN(), e.Addr, e.CloseBSSID)
	if err != nil {
		c.logger.Warn("marshal closed_client failed", "client", e.Addr, "err", err)
		return
	}

	c.floodToPeers((*bufp)[:n])
	c.metrics.FrameSent(TLVClosedClient)
	e.CloseBSSID = nil
}

// -------------------------------------------------------------------------
// Timers
// -------------------------------------------------------------------------

func (c *Context) armTimer(existing *time.Timer, d time.Duration, e *ClientEntry, kind timerKind) *time.Timer {
	stopTimer(existing)
	return time.AfterFunc(d, func() {
		c.events <- timerFireEvent{entry: e, kind: kind}
	})
}

func (c *Context) startFloodTimer(e *ClientEntry) {
	e.timers.flood = c.armTimer(e.timers.flood, FloodInterval, e, timerKindFlood)
}

func (c *Context) stopFloodTimer(e *ClientEntry) {
	stopTimer(e.timers.flood)
	e.timers.flood = nil
	e.Score = MaxScore
}

func (c *Context) startStateTimer(e *ClientEntry) {
	e.timers.state = c.armTimer(e.timers.state, StateTimeout, e, timerKindState)
}

func (c *Context) stopStateTimer(e *ClientEntry) {
	stopTimer(e.timers.state)
	e.timers.state = nil
}

func (c *Context) startProbeTimer(e *ClientEntry) {
	e.timers.probe = c.armTimer(e.timers.probe, ProbeTimeout, e, timerKindProbe)
}

func (c *Context) stopProbeTimer(e *ClientEntry) {
	stopTimer(e.timers.probe)
	e.timers.probe = nil
}

func (c *Context) resetProbeTimer(e *ClientEntry) {
	c.startProbeTimer(e)
}

func (c *Context) stopAllTimers() {
	for _, e := range c.clients {
		stopTimer(e.timers.flood)
		stopTimer(e.timers.state)
		stopTimer(e.timers.probe)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// scoreFromRSSI derives a wire score from an RSSI reading in dBm, the
// same abs-and-clamp transform get_score applies before comparing or
// flooding a score.
func scoreFromRSSI(rssi int) uint16 {
	if rssi > 0 {
		rssi = -rssi
	}
	abs := -rssi
	if abs >= int(MaxScore) {
		return MaxScore - 1
	}
	return uint16(abs) //nolint:gosec // bounded above
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	if mac == nil {
		return nil
	}
	m := make(net.HardwareAddr, len(mac))
	copy(m, mac)
	return m
}
