package netio

import (
	"context"
	"fmt"
)

// -------------------------------------------------------------------------
// Listener — high-level steering frame receive loop
// -------------------------------------------------------------------------

// Listener wraps a FrameConn and provides a context-aware receive loop
// for steering control frames, using steering.FramePool for buffer reuse.
type Listener struct {
	conn FrameConn
}

// NewListener wraps an existing FrameConn. Accepting the connection
// rather than a raw interface name keeps this package testable with an
// in-memory fake.
func NewListener(conn FrameConn) *Listener {
	return &Listener{conn: conn}
}

// Recv blocks until a steering frame is received or ctx is cancelled.
// Returns the raw frame payload and its link-layer metadata. The caller
// is responsible for returning the buffer to steering.FramePool.
func (l *Listener) Recv(ctx context.Context, bufp *[]byte) (int, FrameMeta, error) {
	if err := ctx.Err(); err != nil {
		return 0, FrameMeta{}, fmt.Errorf("listener recv: %w", err)
	}

	n, meta, err := l.conn.ReadFrame(*bufp)
	if err != nil {
		return 0, FrameMeta{}, fmt.Errorf("listener read: %w", err)
	}

	return n, meta, nil
}

// Close closes the underlying FrameConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
