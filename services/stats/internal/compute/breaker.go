package compute

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the backend is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker opens after maxFailures consecutive failures, rejects calls for
// cooldown, then lets a single probe through.
type breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = stateHalfOpen
		b.probeActive = true
		return nil
	case stateHalfOpen:
		if b.probeActive {
			return ErrCircuitOpen
		}
		b.probeActive = true
		return nil
	default:
		return nil
	}
}

// record feeds back the outcome of an allowed call. Only backend failures
// should be reported as failed.
func (b *breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeActive = false
	if !failed {
		b.failures = 0
		b.state = stateClosed
		return
	}

	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
