// Package server implements the admin/introspection HTTP API for the
// steering daemon: a small net/http + encoding/json handler set
// (ListClients, GetClient, SetMode, WatchClientEvents) in place of the
// generated-protobuf ConnectRPC service the ambient stack would
// otherwise use -- no SteeringService .proto or generated Go package
// exists in this repository, so steerctl talks to this API as plain
// JSON over HTTP instead of gRPC.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cococomm/steerd/internal/steering"
)

// eventBufferSize bounds how many buffered state transitions a single
// WatchClientEvents client can lag behind before events are dropped for
// that client.
const eventBufferSize = 64

// AdminServer serves the steering admin API. Each handler delegates to
// the steering.Context for the actual query or mutation; the server
// itself holds no steering state.
type AdminServer struct {
	ctx    *steering.Context
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan steering.StateChange]struct{}
}

// New creates an AdminServer for ctx. ctx may be nil if the owning
// steering.Context has not been constructed yet -- call SetContext
// once it exists, before starting to serve requests. Call Handler to
// get the http.Handler to mount, and pass OnStateChange to
// steering.WithStateCallback so transitions reach WatchClientEvents
// subscribers.
func New(ctx *steering.Context, logger *slog.Logger) *AdminServer {
	return &AdminServer{
		ctx:    ctx,
		logger: logger,
		subs:   make(map[chan steering.StateChange]struct{}),
	}
}

// SetContext assigns the steering.Context this server queries. Must be
// called before the server starts handling requests; not safe to call
// concurrently with in-flight requests.
func (s *AdminServer) SetContext(ctx *steering.Context) {
	s.ctx = ctx
}

// Handler returns the http.Handler for the admin API, wrapped with
// logging and panic-recovery middleware.
func (s *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clients", s.handleListClients)
	mux.HandleFunc("GET /clients/{mac}", s.handleGetClient)
	mux.HandleFunc("POST /mode", s.handleSetMode)
	mux.HandleFunc("GET /events", s.handleWatchEvents)

	return chain(
		LoggingMiddleware(s.logger),
		RecoveryMiddleware(s.logger),
	)(mux)
}

// OnStateChange is a steering.StateCallback that fans a transition out
// to every currently-subscribed WatchClientEvents client. Non-blocking:
// a subscriber whose buffer is full simply misses the event.
func (s *AdminServer) OnStateChange(change steering.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// -------------------------------------------------------------------------
// Wire Types
// -------------------------------------------------------------------------

type clientView struct {
	Addr               string `json:"addr"`
	State              string `json:"state"`
	Score              uint16 `json:"score"`
	RemoteBSSID        string `json:"remote_bssid,omitempty"`
	RemoteAdjustedTime string `json:"remote_adjusted_time,omitempty"`
	CloseBSSID         string `json:"close_bssid,omitempty"`
	AssociationTime    string `json:"association_time,omitempty"`
	RemoteChannel      uint8  `json:"remote_channel,omitempty"`
}

func toClientView(s steering.ClientSnapshot) clientView {
	v := clientView{
		Addr:          s.Addr.String(),
		State:         s.State.String(),
		Score:         s.Score,
		RemoteChannel: s.RemoteChannel,
	}
	if s.RemoteBSSID != nil {
		v.RemoteBSSID = s.RemoteBSSID.String()
	}
	if !s.RemoteAdjustedTime.IsZero() {
		v.RemoteAdjustedTime = s.RemoteAdjustedTime.Format(time.RFC3339)
	}
	if s.CloseBSSID != nil {
		v.CloseBSSID = s.CloseBSSID.String()
	}
	if !s.AssociationTime.IsZero() {
		v.AssociationTime = s.AssociationTime.Format(time.RFC3339)
	}
	return v
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type stateChangeView struct {
	Client   string `json:"client"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Event    string `json:"event"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *AdminServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.ctx.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]clientView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, toClientView(snap))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *AdminServer) handleGetClient(w http.ResponseWriter, r *http.Request) {
	mac, err := net.ParseMAC(r.PathValue("mac"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, ok, err := s.ctx.GetClient(r.Context(), mac)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errClientNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toClientView(snap))
}

func (s *AdminServer) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mode, ok := parseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidMode)
		return
	}

	s.ctx.SetMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

// handleWatchEvents streams StateChange events as newline-delimited
// JSON until the client disconnects or the request context is
// cancelled.
func (s *AdminServer) handleWatchEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errStreamingUnsupported)
		return
	}

	ch := make(chan steering.StateChange, eventBufferSize)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case change := <-ch:
			view := stateChangeView{
				Client:   change.Client.String(),
				OldState: change.OldState.String(),
				NewState: change.NewState.String(),
				Event:    change.Event.String(),
			}
			if err := enc.Encode(view); err != nil {
				s.logger.Warn("failed to encode watch event", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

var (
	errClientNotFound       = errors.New("client not found")
	errInvalidMode          = errors.New("mode must be off, suggest, or force")
	errStreamingUnsupported = errors.New("response writer does not support streaming")
)

func parseMode(s string) (steering.Mode, bool) {
	switch s {
	case "off":
		return steering.ModeOff, true
	case "suggest":
		return steering.ModeSuggest, true
	case "force":
		return steering.ModeForce, true
	default:
		return 0, false
	}
}

type errorView struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorView{Error: err.Error()})
}
