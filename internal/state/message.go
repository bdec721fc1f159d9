package state

import "time"

// MessageRole is who authored a message.
type MessageRole string

const (
	RoleHuman  MessageRole = "human"
	RoleSystem MessageRole = "system"
)

// ContextStatus controls whether a message is offered as carried-over
// context during extraction.
type ContextStatus string

const (
	ContextDefault ContextStatus = "default"
	ContextAlways  ContextStatus = "always"
	ContextNever   ContextStatus = "never"
)

// ExtractionFlags records which data kinds a message has already been
// scanned for. A flag is set exactly once, when the scan request covering
// the message is enqueued, so the message can't be claimed twice.
type ExtractionFlags struct {
	Fact   bool `json:"fact"`
	Trait  bool `json:"trait"`
	Topic  bool `json:"topic"`
	Person bool `json:"person"`
}

// For reads the flag for a kind.
func (f ExtractionFlags) For(kind DataKind) bool {
	switch kind {
	case KindFact:
		return f.Fact
	case KindTrait:
		return f.Trait
	case KindTopic:
		return f.Topic
	case KindPerson:
		return f.Person
	}
	return false
}

// Set sets the flag for a kind.
func (f *ExtractionFlags) Set(kind DataKind) {
	switch kind {
	case KindFact:
		f.Fact = true
	case KindTrait:
		f.Trait = true
	case KindTopic:
		f.Topic = true
	case KindPerson:
		f.Person = true
	}
}

// Message is one conversation turn. Messages are the unit of unextracted
// work: a kind's scan walks messages whose flag for that kind is unset.
type Message struct {
	ID            string          `json:"id"`
	Role          MessageRole     `json:"role"`
	Content       string          `json:"content"`
	Timestamp     time.Time       `json:"timestamp"`
	ContextStatus ContextStatus   `json:"context_status"`
	Extracted     ExtractionFlags `json:"extracted"`
}
