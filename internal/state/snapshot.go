package state

import (
	"time"

	"github.com/hearthmind/hearth/internal/notify"
)

// SnapshotVersion is bumped when the snapshot wire format changes.
const SnapshotVersion = 1

// Snapshot is a full point-in-time copy of the store, suitable for
// serialization. Restoring one replaces everything atomically.
type Snapshot struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Human       Human     `json:"human"`
	Personas    []Persona `json:"personas"`
	Messages    []Message `json:"messages"`
	Queue       []Request `json:"queue"`
	DeadLetters []Request `json:"dead_letters"`
	QueuePaused bool      `json:"queue_paused"`
}

// Snapshot deep-copies the entire store. It runs under the store mutex, so
// it can never observe a half-applied mutation; an in-flight request is
// captured as pending (it will simply re-run after a restore).
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Version:     SnapshotVersion,
		CreatedAt:   time.Now(),
		Human:       s.human.clone(),
		QueuePaused: s.queuePaused,
	}
	snap.Personas = make([]Persona, len(s.personas))
	for i, p := range s.personas {
		snap.Personas[i] = p.clone()
	}
	snap.Messages = make([]Message, len(s.messages))
	for i, m := range s.messages {
		snap.Messages[i] = *m
	}
	snap.Queue = make([]Request, len(s.queue))
	for i, r := range s.queue {
		snap.Queue[i] = *r.clone()
	}
	snap.DeadLetters = make([]Request, len(s.dead))
	for i, r := range s.dead {
		snap.DeadLetters[i] = *r.clone()
	}
	return snap
}

// RestoreSnapshot replaces the store's contents wholesale.
func (s *Store) RestoreSnapshot(snap *Snapshot) {
	s.mu.Lock()
	s.human = snap.Human.clone()
	s.personas = make([]*Persona, len(snap.Personas))
	for i := range snap.Personas {
		p := snap.Personas[i].clone()
		p.computeRole()
		s.personas[i] = &p
	}
	s.messages = make([]*Message, len(snap.Messages))
	for i := range snap.Messages {
		m := snap.Messages[i]
		s.messages[i] = &m
	}
	s.queue = make([]*Request, len(snap.Queue))
	for i := range snap.Queue {
		r := *snap.Queue[i].clone()
		r.processing = false
		s.queue[i] = &r
	}
	s.dead = make([]*Request, len(snap.DeadLetters))
	for i := range snap.DeadLetters {
		s.dead[i] = snap.DeadLetters[i].clone()
	}
	s.queuePaused = snap.QueuePaused
	s.mu.Unlock()

	s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated})
	s.wake()
}
