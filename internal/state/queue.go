package state

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hearthmind/hearth/internal/notify"
)

// Enqueue adds a request to the queue, assigning its ID, created_at and
// attempt count, and returns the ID. Safe to call from any goroutine; it
// only mutates the in-memory list.
func (s *Store) Enqueue(req Request) string {
	req.ID = ulid.Make().String()
	req.CreatedAt = time.Now()
	req.Attempts = 0
	req.processing = false

	s.mu.Lock()
	s.queue = append(s.queue, req.clone())
	s.mu.Unlock()

	s.notifier.Publish(notify.Event{Kind: notify.MessageQueued, ID: req.ID})
	s.wake()
	return req.ID
}

// PeekHighest claims and returns the highest-priority pending request, or
// nil if the queue is empty, paused, or another request is already in
// flight. Claiming happens atomically with the read: at most one request is
// processing at any instant.
func (s *Store) PeekHighest() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queuePaused {
		return nil
	}

	var best *Request
	for _, r := range s.queue {
		if r.processing {
			// Single-flight invariant: nothing else may be claimed.
			return nil
		}
		if best == nil || r.Priority > best.Priority ||
			(r.Priority == best.Priority && (r.CreatedAt.Before(best.CreatedAt) ||
				(r.CreatedAt.Equal(best.CreatedAt) && r.ID < best.ID))) {
			// Equal timestamps fall back to the ULID, which is lexically
			// time-ordered.
			best = r
		}
	}
	if best == nil {
		return nil
	}
	best.processing = true
	return best.clone()
}

// Complete removes a finished request from the queue.
func (s *Store) Complete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.queue {
		if r.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return ErrRequestNotFound
}

// Fail records a failure against a request. Once attempts reach the
// threshold the request moves to the dead-letter list, preserved with its
// last error for manual recovery. Returns true if it was dead-lettered.
func (s *Store) Fail(id string, cause error) (bool, error) {
	s.mu.Lock()
	for i, r := range s.queue {
		if r.ID != id {
			continue
		}
		r.Attempts++
		r.processing = false
		if cause != nil {
			r.LastError = cause.Error()
		}
		if r.Attempts >= s.maxAttempts {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dead = append(s.dead, r)
			s.mu.Unlock()
			s.notifier.Publish(notify.Event{Kind: notify.Error, ID: id})
			return true, nil
		}
		s.mu.Unlock()
		s.wake()
		return false, nil
	}
	s.mu.Unlock()
	return false, ErrRequestNotFound
}

// Requeue releases a claimed request back to pending without counting a
// failure. Used when an in-flight call is aborted.
func (s *Store) Requeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.queue {
		if r.ID == id {
			r.processing = false
			return nil
		}
	}
	return ErrRequestNotFound
}

// PauseQueue stops new dequeues. In-flight work and queue contents are
// untouched.
func (s *Store) PauseQueue() {
	s.mu.Lock()
	s.queuePaused = true
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.QueuePaused})
}

// ResumeQueue reopens dequeuing.
func (s *Store) ResumeQueue() {
	s.mu.Lock()
	s.queuePaused = false
	s.mu.Unlock()
	s.wake()
}

// QueuePaused reports whether dequeuing is stopped.
func (s *Store) QueuePaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuePaused
}

// QueueLength returns the number of pending requests.
func (s *Store) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// PendingRequests returns copies of all queued requests.
func (s *Store) PendingRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.queue))
	for i, r := range s.queue {
		out[i] = *r.clone()
	}
	return out
}

// DeadLetters returns copies of all dead-lettered requests.
func (s *Store) DeadLetters() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.dead))
	for i, r := range s.dead {
		out[i] = *r.clone()
	}
	return out
}

// RetryDeadLetter moves a dead-lettered request back to the queue with its
// attempt count reset.
func (s *Store) RetryDeadLetter(id string) error {
	s.mu.Lock()
	for i, r := range s.dead {
		if r.ID == id {
			s.dead = append(s.dead[:i], s.dead[i+1:]...)
			r.Attempts = 0
			r.LastError = ""
			r.processing = false
			s.queue = append(s.queue, r)
			s.mu.Unlock()
			s.wake()
			return nil
		}
	}
	s.mu.Unlock()
	return ErrRequestNotFound
}
