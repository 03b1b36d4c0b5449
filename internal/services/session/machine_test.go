package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"educheck/internal/logger"
	"educheck/internal/models"
)

const testHold = 50 * time.Millisecond

// fakeSubmitter records calls and blocks each one until an outcome is released.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []string
	outcome chan models.CheckInOutcome
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{outcome: make(chan models.CheckInOutcome, 4)}
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload string) models.CheckInOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, payload)
	f.mu.Unlock()
	return <-f.outcome
}

func (f *fakeSubmitter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func startMachine(t *testing.T, sub Submitter) (*Machine, context.CancelFunc) {
	t.Helper()
	m := NewMachine(sub, testHold, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(cancel)
	return m, cancel
}

func waitFor(t *testing.T, m *Machine, what string, cond func(models.SessionSnapshot) bool) models.SessionSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := m.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, last state %+v", what, m.Snapshot())
	return models.SessionSnapshot{}
}

// waitCalls polls until the submitter has seen n calls; submissions run on
// their own goroutine.
func waitCalls(t *testing.T, sub *fakeSubmitter, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := sub.Calls(); len(calls) >= n {
			return calls
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d submits, got %v", n, sub.Calls())
	return nil
}

func status(want models.SessionStatus) func(models.SessionSnapshot) bool {
	return func(s models.SessionSnapshot) bool { return s.Status == want }
}

func mustOffer(t *testing.T, m *Machine, payload string) bool {
	t.Helper()
	ok, err := m.Offer(context.Background(), payload)
	if err != nil {
		t.Fatalf("Offer(%q) returned error: %v", payload, err)
	}
	return ok
}

func TestMachine_SameCodeOnConsecutiveFramesSubmitsOnce(t *testing.T) {
	sub := newFakeSubmitter()
	m, _ := startMachine(t, sub)

	accepted := 0
	for i := 0; i < 10; i++ {
		if mustOffer(t, m, "12345678") {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("Expected 1 accepted offer, got %d", accepted)
	}

	s := m.Snapshot()
	if s.Status != models.StatusSubmitting || s.LastPayload != "12345678" || s.LastPayloadAt.IsZero() {
		t.Errorf("Unexpected state while submitting: %+v", s)
	}
	if s.Message != MessageProcessing {
		t.Errorf("Expected processing message, got %q", s.Message)
	}

	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRegistered, Message: "Asistencia registrada"}
	res := waitFor(t, m, "result", status(models.StatusResult))
	if res.Category != models.CategorySuccess || res.Message != "Asistencia registrada" {
		t.Errorf("Unexpected result state: %+v", res)
	}

	// Still in view during the hold: suppressed.
	for i := 0; i < 5; i++ {
		if mustOffer(t, m, "12345678") {
			t.Fatal("Expected duplicate dropped during hold")
		}
	}

	idle := waitFor(t, m, "idle", status(models.StatusIdle))
	if idle.LastPayload != "" || idle.Message != "" || idle.Outcome != nil {
		t.Errorf("Expected cleared idle state, got %+v", idle)
	}
	if calls := sub.Calls(); len(calls) != 1 || calls[0] != "12345678" {
		t.Errorf("Expected exactly one submit, got %v", calls)
	}
	if m.Submissions() != 1 || m.Dropped() != 14 {
		t.Errorf("Unexpected counters: submissions=%d dropped=%d", m.Submissions(), m.Dropped())
	}
}

func TestMachine_TransportErrorThenRepresentation(t *testing.T) {
	sub := newFakeSubmitter()
	m, _ := startMachine(t, sub)

	mustOffer(t, m, "12345678")
	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeTransportError, Message: "Error al registrar asistencia"}

	res := waitFor(t, m, "result", status(models.StatusResult))
	if res.Category != models.CategoryError || res.Outcome.Kind != models.OutcomeTransportError {
		t.Errorf("Expected error result, got %+v", res)
	}

	waitFor(t, m, "idle", status(models.StatusIdle))

	if !mustOffer(t, m, "12345678") {
		t.Fatal("Expected the same code to be accepted after the hold")
	}
	if calls := waitCalls(t, sub, 2); calls[1] != "12345678" {
		t.Errorf("Expected a second submit of the same code, got %v", calls)
	}
	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRegistered}
}

func TestMachine_DifferentCodeWhileSubmittingIsDropped(t *testing.T) {
	sub := newFakeSubmitter()
	m, _ := startMachine(t, sub)

	if !mustOffer(t, m, "A") {
		t.Fatal("Expected A accepted")
	}
	if mustOffer(t, m, "B") {
		t.Fatal("Expected B dropped while A is in flight")
	}

	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRegistered}
	res := waitFor(t, m, "result", status(models.StatusResult))
	if res.Payload != "A" {
		t.Errorf("Expected result for A, got %+v", res)
	}
	waitFor(t, m, "idle", status(models.StatusIdle))

	// B was never queued.
	if calls := sub.Calls(); len(calls) != 1 || calls[0] != "A" {
		t.Errorf("Expected only A submitted, got %v", calls)
	}
}

func TestMachine_DifferentCodeDuringResultStartsNewSubmission(t *testing.T) {
	sub := newFakeSubmitter()
	m, _ := startMachine(t, sub)

	mustOffer(t, m, "A")
	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRegistered}
	waitFor(t, m, "result", status(models.StatusResult))

	if !mustOffer(t, m, "B") {
		t.Fatal("Expected next student accepted during the result display")
	}
	s := m.Snapshot()
	if s.Status != models.StatusSubmitting || s.LastPayload != "B" {
		t.Errorf("Expected submitting B, got %+v", s)
	}

	// The hold armed for A must not reset B's submission.
	time.Sleep(2 * testHold)
	if s := m.Snapshot(); s.Status != models.StatusSubmitting {
		t.Errorf("Expected B still submitting, got %+v", s)
	}

	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeAlreadyRegistered, Message: "Ya registrado"}
	res := waitFor(t, m, "result", status(models.StatusResult))
	if res.Payload != "B" || res.Category != models.CategorySuccess {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestMachine_TeardownDiscardsLateOutcome(t *testing.T) {
	sub := newFakeSubmitter()
	m, cancel := startMachine(t, sub)

	mustOffer(t, m, "12345678")
	cancel()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected session to close")
	}

	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRegistered}
	time.Sleep(20 * time.Millisecond)

	s := m.Snapshot()
	if s.Status != models.StatusSubmitting || !s.Closed || s.Outcome != nil {
		t.Errorf("Expected frozen submitting state, got %+v", s)
	}

	if _, err := m.Offer(context.Background(), "other"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMachine_SubscribeSeesEveryTransition(t *testing.T) {
	sub := newFakeSubmitter()
	m := NewMachine(sub, testHold, logger.Nop())
	updates, stop := m.Subscribe()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	mustOffer(t, m, "12345678")
	sub.outcome <- models.CheckInOutcome{Kind: models.OutcomeRejected, Message: "Estudiante no encontrado"}

	expected := []models.SessionStatus{
		models.StatusSubmitting,
		models.StatusResult,
		models.StatusCooldown,
		models.StatusIdle,
	}
	for _, want := range expected {
		select {
		case s := <-updates:
			if s.Status != want {
				t.Fatalf("Expected %s, got %s", want, s.Status)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}

	cancel()
	for range updates {
		// drained until closed by shutdown
	}
}

func TestMachine_RunTwiceAndDefaults(t *testing.T) {
	m := NewMachine(newFakeSubmitter(), 0, logger.Nop())
	if m.hold != DefaultHold {
		t.Errorf("Expected default hold, got %v", m.hold)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// A reply proves the first Run owns the loop.
	if ok := mustOffer(t, m, ""); ok {
		t.Error("Expected empty payload dropped")
	}
	if err := m.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestMachine_OfferHonoursContext(t *testing.T) {
	m := NewMachine(newFakeSubmitter(), testHold, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Nobody runs the loop, so the offer can only end through ctx.
	if _, err := m.Offer(ctx, "12345678"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
