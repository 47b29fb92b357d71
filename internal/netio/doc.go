// Package netio provides raw socket abstractions for steering control
// frame I/O: a bridge-local AF_PACKET transport bound to the steering
// EtherType, and a Geneve-tunneled transport for peers that are not on
// the same L2 segment.
//
// Linux-specific implementation uses golang.org/x/net/bpf and
// golang.org/x/sys/unix.
package netio
