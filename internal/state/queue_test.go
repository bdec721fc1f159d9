package state

import (
	"errors"
	"testing"
	"time"
)

func enqueueN(t *testing.T, s *Store, priorities ...Priority) []string {
	t.Helper()
	ids := make([]string, len(priorities))
	for i, pr := range priorities {
		ids[i] = s.Enqueue(Request{Type: RequestJSON, Priority: pr, NextStep: "test"})
	}
	return ids
}

func TestPeekHighest_PriorityThenFIFO(t *testing.T) {
	s := New(nil)
	ids := enqueueN(t, s, PriorityLow, PriorityHigh, PriorityNormal, PriorityHigh)

	// Expected claim order: high (FIFO among highs), normal, low.
	want := []string{ids[1], ids[3], ids[2], ids[0]}
	for i, id := range want {
		req := s.PeekHighest()
		if req == nil {
			t.Fatalf("claim %d: queue unexpectedly empty", i)
		}
		if req.ID != id {
			t.Fatalf("claim %d: got %s, want %s", i, req.ID, id)
		}
		if err := s.Complete(req.ID); err != nil {
			t.Fatalf("complete %s: %v", req.ID, err)
		}
	}

	if req := s.PeekHighest(); req != nil {
		t.Errorf("expected empty queue, claimed %s", req.ID)
	}
}

// ULIDs from Enqueue are monotonic, so when two requests carry the exact
// same created_at the lexically smaller ID is the earlier one.
func TestPeekHighest_EqualTimestampsClaimByID(t *testing.T) {
	s := New(nil)
	ts := time.Now()
	snap := &Snapshot{
		Version: SnapshotVersion,
		Queue: []Request{
			{ID: "01BZZZZZZZZZZZZZZZZZZZZZZZZZ", Type: RequestJSON, Priority: PriorityNormal, NextStep: "test", CreatedAt: ts},
			{ID: "01AZZZZZZZZZZZZZZZZZZZZZZZZZ", Type: RequestJSON, Priority: PriorityNormal, NextStep: "test", CreatedAt: ts},
		},
	}
	s.RestoreSnapshot(snap)

	req := s.PeekHighest()
	if req == nil {
		t.Fatal("expected a claim")
	}
	if req.ID != "01AZZZZZZZZZZZZZZZZZZZZZZZZZ" {
		t.Errorf("tie broken against FIFO: claimed %s", req.ID)
	}
}

func TestPeekHighest_SingleFlight(t *testing.T) {
	s := New(nil)
	enqueueN(t, s, PriorityNormal, PriorityHigh)

	first := s.PeekHighest()
	if first == nil {
		t.Fatal("expected a claim")
	}
	// While one request is processing nothing else may be claimed, not even
	// a higher-priority late arrival.
	enqueueN(t, s, PriorityHigh)
	if second := s.PeekHighest(); second != nil {
		t.Errorf("single-flight violated: claimed %s while %s in flight", second.ID, first.ID)
	}

	s.Complete(first.ID)
	if next := s.PeekHighest(); next == nil {
		t.Error("queue should resume after completion")
	}
}

func TestPeekHighest_Paused(t *testing.T) {
	s := New(nil)
	enqueueN(t, s, PriorityHigh)

	s.PauseQueue()
	if !s.QueuePaused() {
		t.Fatal("expected paused")
	}
	if req := s.PeekHighest(); req != nil {
		t.Errorf("paused queue yielded %s", req.ID)
	}

	s.ResumeQueue()
	if req := s.PeekHighest(); req == nil {
		t.Error("resumed queue should yield work")
	}
}

func TestFail_DeadLettersAfterMaxAttempts(t *testing.T) {
	s := New(nil)
	ids := enqueueN(t, s, PriorityNormal)
	cause := errors.New("model exploded")

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		req := s.PeekHighest()
		if req == nil {
			t.Fatalf("attempt %d: nothing to claim", i)
		}
		dead, err := s.Fail(req.ID, cause)
		if err != nil {
			t.Fatalf("fail: %v", err)
		}
		if dead {
			t.Fatalf("dead-lettered after %d attempts, threshold is %d", i+1, DefaultMaxAttempts)
		}
	}

	req := s.PeekHighest()
	dead, err := s.Fail(req.ID, cause)
	if err != nil {
		t.Fatalf("final fail: %v", err)
	}
	if !dead {
		t.Fatal("expected dead-letter on final attempt")
	}

	if s.QueueLength() != 0 {
		t.Errorf("dead request still pending, queue length %d", s.QueueLength())
	}
	letters := s.DeadLetters()
	if len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(letters))
	}
	if letters[0].ID != ids[0] {
		t.Errorf("wrong request dead-lettered: %s", letters[0].ID)
	}
	if letters[0].LastError != cause.Error() {
		t.Errorf("last error not preserved: %q", letters[0].LastError)
	}
	if req := s.PeekHighest(); req != nil {
		t.Errorf("dead letter still claimable: %s", req.ID)
	}
}

func TestRetryDeadLetter(t *testing.T) {
	s := New(nil)
	s.SetMaxAttempts(1)
	ids := enqueueN(t, s, PriorityNormal)

	req := s.PeekHighest()
	if dead, _ := s.Fail(req.ID, errors.New("boom")); !dead {
		t.Fatal("expected immediate dead-letter with maxAttempts=1")
	}

	if err := s.RetryDeadLetter(ids[0]); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(s.DeadLetters()) != 0 {
		t.Error("dead letter not cleared after retry")
	}

	back := s.PeekHighest()
	if back == nil || back.ID != ids[0] {
		t.Fatal("retried request not claimable")
	}
	if back.Attempts != 0 {
		t.Errorf("attempts not reset, got %d", back.Attempts)
	}
	if back.LastError != "" {
		t.Errorf("last error not cleared: %q", back.LastError)
	}
}

func TestRequeue_NoAttemptCounted(t *testing.T) {
	s := New(nil)
	enqueueN(t, s, PriorityNormal)

	req := s.PeekHighest()
	if err := s.Requeue(req.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	again := s.PeekHighest()
	if again == nil {
		t.Fatal("requeued request not claimable")
	}
	if again.Attempts != 0 {
		t.Errorf("requeue must not count an attempt, got %d", again.Attempts)
	}
}
