// Package steering implements the per-(AP,client) network steering state
// machine: score-based arbitration between access points for an 802.11
// station, backed by a lock-free single-threaded core engine.
package steering
