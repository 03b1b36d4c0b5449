// Package session holds the scan session state machine: the single authority
// on whether a decoded payload is new and should be sent to the backend.
//
// The machine runs as one goroutine (Run). Decodes arrive through Offer,
// backend verdicts come back over an internal channel, and the display hold
// is a timer owned by the same loop, so every transition happens in one place.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"educheck/internal/logger"
	"educheck/internal/models"
)

// DefaultHold is how long a result stays on screen before the session re-arms.
const DefaultHold = 3 * time.Second

// MessageProcessing is shown while a submission is in flight.
const MessageProcessing = "Procesando..."

var (
	// ErrClosed is returned by Offer after the session was torn down.
	ErrClosed = errors.New("scan session closed")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("scan session already running")
)

// Submitter confirms one payload with the backend. Implementations report
// failures inside the outcome.
type Submitter interface {
	Submit(ctx context.Context, payload string) models.CheckInOutcome
}

type offer struct {
	payload string
	reply   chan bool
}

type result struct {
	seq     uint64
	payload string
	outcome models.CheckInOutcome
}

// Machine is one scan session.
type Machine struct {
	submitter Submitter
	hold      time.Duration
	now       func() time.Time
	logger    *logger.Logger

	offers  chan offer
	results chan result
	done    chan struct{}
	running atomic.Bool

	seq         uint64 // owned by the Run goroutine
	submissions atomic.Int64
	dropped     atomic.Int64

	mu      sync.RWMutex
	state   models.SessionSnapshot
	subs    map[int]chan models.SessionSnapshot
	nextSub int
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates an idle session. hold <= 0 selects DefaultHold.
func NewMachine(submitter Submitter, hold time.Duration, logger *logger.Logger, opts ...Option) *Machine {
	if hold <= 0 {
		hold = DefaultHold
	}
	m := &Machine{
		submitter: submitter,
		hold:      hold,
		now:       time.Now,
		logger:    logger,
		offers:    make(chan offer),
		results:   make(chan result),
		done:      make(chan struct{}),
		state:     models.SessionSnapshot{Status: models.StatusIdle},
		subs:      make(map[int]chan models.SessionSnapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the session until ctx is cancelled. Outcomes that arrive after
// that are discarded.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.shutdown()

	var hold *time.Timer
	var holdC <-chan time.Time
	stopHold := func() {
		if hold != nil {
			hold.Stop()
			hold, holdC = nil, nil
		}
	}
	defer stopHold()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case o := <-m.offers:
			accepted := m.handleOffer(ctx, o.payload)
			if accepted {
				stopHold()
			}
			o.reply <- accepted

		case r := <-m.results:
			if m.handleResult(r) {
				stopHold()
				hold = time.NewTimer(m.hold)
				holdC = hold.C
			}

		case <-holdC:
			hold, holdC = nil, nil
			m.rearm()
		}
	}
}

// Offer hands a decoded payload to the session. It reports whether the
// payload started a submission; duplicates and decodes during an in-flight
// submission are dropped.
func (m *Machine) Offer(ctx context.Context, payload string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case m.offers <- offer{payload: payload, reply: reply}:
	case <-m.done:
		return false, ErrClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return <-reply, nil
}

// Snapshot returns the current session state.
func (m *Machine) Snapshot() models.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel receiving every state change. Slow readers see
// the latest state, not every intermediate one. The channel is closed when
// the session ends or cancel is called.
func (m *Machine) Subscribe() (<-chan models.SessionSnapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.SessionSnapshot, 8)
	if m.state.Closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// Done is closed once the session has been torn down.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Submissions returns how many payloads were sent to the backend.
func (m *Machine) Submissions() int64 {
	return m.submissions.Load()
}

// Dropped returns how many offers were suppressed.
func (m *Machine) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Machine) handleOffer(ctx context.Context, payload string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	switch {
	case payload == "":
		m.dropped.Add(1)
		return false
	case st.Status == models.StatusSubmitting, st.Status == models.StatusCooldown:
		m.dropped.Add(1)
		return false
	case payload == st.LastPayload:
		m.dropped.Add(1)
		return false
	}

	m.seq++
	seq := m.seq
	m.set(models.SessionSnapshot{
		Status:        models.StatusSubmitting,
		Payload:       payload,
		LastPayload:   payload,
		LastPayloadAt: m.now(),
		Message:       MessageProcessing,
		Category:      models.CategoryNeutral,
	})
	m.submissions.Add(1)
	m.logger.Info("→ Submitting check-in for %s", payload)

	go m.submit(context.WithoutCancel(ctx), seq, payload)
	return true
}

func (m *Machine) submit(ctx context.Context, seq uint64, payload string) {
	outcome := m.submitter.Submit(ctx, payload)
	select {
	case m.results <- result{seq: seq, payload: payload, outcome: outcome}:
	case <-m.done:
		m.logger.Info("Discarding %s outcome for %s: session closed", outcome.Kind, payload)
	}
}

func (m *Machine) handleResult(r result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status != models.StatusSubmitting || r.seq != m.seq {
		m.logger.Warning("Ignoring stale outcome for %s", r.payload)
		return false
	}

	outcome := r.outcome
	next := m.state
	next.Status = models.StatusResult
	next.Outcome = &outcome
	next.Message = outcome.Message
	next.Category = outcome.Category()
	m.set(next)

	if outcome.Success() {
		m.logger.Info("✓ %s: %s", r.payload, outcome.Kind)
	} else {
		m.logger.Warning("✗ %s: %s (%s)", r.payload, outcome.Kind, outcome.Message)
	}
	return true
}

// rearm moves Result -> Cooldown -> Idle and forgets the last payload.
func (m *Machine) rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status != models.StatusResult {
		return
	}

	cooldown := m.state
	cooldown.Status = models.StatusCooldown
	m.set(cooldown)

	m.set(models.SessionSnapshot{Status: models.StatusIdle})
}

// set replaces the state and notifies subscribers. Caller holds m.mu.
func (m *Machine) set(next models.SessionSnapshot) {
	m.state = next
	for _, ch := range m.subs {
		push(ch, next)
	}
}

func push(ch chan models.SessionSnapshot, s models.SessionSnapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	// Buffer full: drop the oldest so the newest always lands.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (m *Machine) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Closed = true
	close(m.done)
	for id, ch := range m.subs {
		push(ch, m.state)
		close(ch)
		delete(m.subs, id)
	}
}
