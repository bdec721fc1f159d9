// Package notify carries fire-and-forget events from the core toward any
// connected frontend. Payloads are identifiers only; frontends re-fetch
// whatever they care about over the API.
package notify

import "sync"

// Kind identifies what happened.
type Kind string

const (
	PersonaAdded   Kind = "persona.added"
	PersonaRemoved Kind = "persona.removed"
	PersonaUpdated Kind = "persona.updated"

	MessageAdded      Kind = "message.added"
	MessageProcessing Kind = "message.processing"
	MessageQueued     Kind = "message.queued"
	MessageRecalled   Kind = "message.recalled"

	HumanUpdated Kind = "human.updated"

	QueueIdle   Kind = "queue.idle"
	QueueBusy   Kind = "queue.busy"
	QueuePaused Kind = "queue.paused"

	Error Kind = "error"

	CheckpointStart    Kind = "checkpoint.start"
	CheckpointCreated  Kind = "checkpoint.created"
	CheckpointRestored Kind = "checkpoint.restored"
	CheckpointDeleted  Kind = "checkpoint.deleted"
)

// Event is a single notification. ID names the affected entity (or is empty
// for global events like queue state changes).
type Event struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// Notifier is implemented by anything that wants core events.
type Notifier interface {
	Publish(Event)
}

// Nop discards all events. Used in tests and offline commands.
type Nop struct{}

func (Nop) Publish(Event) {}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// that falls behind drops events rather than stalling the core.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every live subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events and a cancel func. The channel is
// closed on cancel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
