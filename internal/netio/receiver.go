package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/cococomm/steerd/internal/steering"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// FrameHandler receives raw steering frames read off the wire. Satisfied
// by *steering.Context, whose HandleFrame only enqueues the frame onto
// its internal event channel and returns immediately.
type FrameHandler interface {
	HandleFrame(src net.HardwareAddr, raw []byte)
}

// Receiver reads steering control frames from one or more Listeners and
// hands them to a FrameHandler.
//
// The Receiver handles buffer management via steering.FramePool and
// context-aware graceful shutdown across a fan-in of Listeners.
type Receiver struct {
	handler FrameHandler
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that routes frames to the given handler.
func NewReceiver(handler FrameHandler, logger *slog.Logger) *Receiver {
	return &Receiver{
		handler: handler,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled.
// Each listener gets its own goroutine. Run blocks until all listener
// goroutines complete.
//
// Errors from individual frame reads are logged but do not stop the
// receiver. Only context cancellation terminates the loop.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))

	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	for range len(listeners) {
		<-done
	}

	return nil
}

// recvLoop reads frames from a single Listener in a loop until ctx is
// cancelled.
func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-copy-handoff cycle. The buffer from
// steering.FramePool is returned to the pool once the payload has been
// copied out, since the handler's HandleFrame only enqueues the frame
// for later processing on the steering context's own event loop.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	bufp, ok := steering.FramePool.Get().(*[]byte)
	if !ok {
		return fmt.Errorf("recv: %w", ErrPoolType)
	}
	defer steering.FramePool.Put(bufp)

	n, meta, err := ln.Recv(ctx, bufp)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	payload := make([]byte, n)
	copy(payload, (*bufp)[:n])

	src := make(net.HardwareAddr, len(meta.SrcMAC))
	copy(src, meta.SrcMAC)

	r.handler.HandleFrame(src, payload)

	return nil
}
