package steering

import "time"

// Timer intervals, unchanged from the reference implementation's
// eloop_register_timeout calls.
const (
	// FloodInterval is how often an Associated client's score is
	// reflooded to peers.
	FloodInterval = 1 * time.Second

	// StateTimeout bounds how long an entry stays in Rejecting/Rejected
	// (the blacklist window) before Timeout lifts the blacklist and moves
	// it to Associating.
	StateTimeout = 10 * time.Second

	// ProbeTimeout bounds how long an entry that is not locally
	// associated keeps a probe-derived score before treating the station
	// as out of range and resetting the score to MaxScore.
	ProbeTimeout = 34 * time.Second
)

// timerSet holds the three independent per-entry timers. A nil *time.Timer
// field means that timer is not currently armed. All fields are only ever
// touched from the context's single event loop goroutine.
type timerSet struct {
	flood *time.Timer
	state *time.Timer
	probe *time.Timer
}

func stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	t.Stop()
}
