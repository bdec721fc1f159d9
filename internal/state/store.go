// Package state owns every entity in the core: the human, the personas,
// the message log and the LLM request queue. All mutation goes through the
// Store, which is guarded by a single mutex — there is exactly one logical
// writer, so fine-grained locking would buy nothing.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hearthmind/hearth/internal/notify"
)

// Structural errors. Surfaced to the caller immediately, never retried.
var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrPersonaArchived = errors.New("persona is archived")
	ErrItemNotFound    = errors.New("item not found")
	ErrUnknownKind     = errors.New("unknown data kind")
	ErrRequestNotFound = errors.New("request not found")
)

// DefaultMaxAttempts is how many failures a request survives before it is
// dead-lettered.
const DefaultMaxAttempts = 3

// Store holds all core state in memory.
type Store struct {
	mu sync.Mutex

	human    Human
	personas []*Persona
	messages []*Message

	queue       []*Request
	dead        []*Request
	queuePaused bool
	maxAttempts int

	notifier notify.Notifier
	kick     chan struct{}
}

// New creates an empty store with default human settings.
func New(n notify.Notifier) *Store {
	if n == nil {
		n = notify.Nop{}
	}
	return &Store{
		human:       Human{Settings: DefaultSettings()},
		maxAttempts: DefaultMaxAttempts,
		notifier:    n,
		kick:        make(chan struct{}, 1),
	}
}

// SetMaxAttempts overrides the dead-letter threshold.
func (s *Store) SetMaxAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxAttempts = n
	}
}

// Kick is signalled whenever new queue work may be available.
func (s *Store) Kick() <-chan struct{} { return s.kick }

func (s *Store) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// --- Human ---

// Human returns a deep copy of the human entity.
func (s *Store) Human() Human {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.human.clone()
}

// SetHuman replaces the human entity wholesale.
func (s *Store) SetHuman(h Human) {
	s.mu.Lock()
	s.human = h.clone()
	s.human.LastUpdated = time.Now()
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated})
}

// TouchHumanActivity stamps last_activity on the human.
func (s *Store) TouchHumanActivity(now time.Time) {
	s.mu.Lock()
	s.human.LastActivity = now
	s.mu.Unlock()
}

// UpsertHumanItem inserts or replaces an item in the human collection for
// its kind, keyed by ID. A missing ID gets a fresh one. last_updated is
// always stamped.
func (s *Store) UpsertHumanItem(item Item) (Item, error) {
	s.mu.Lock()
	coll := s.human.items(item.Kind)
	if coll == nil {
		s.mu.Unlock()
		return Item{}, ErrUnknownKind
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.LastUpdated = time.Now()
	s.human.LastUpdated = item.LastUpdated

	replaced := false
	for i := range *coll {
		if (*coll)[i].ID == item.ID {
			(*coll)[i] = item.clone()
			replaced = true
			break
		}
	}
	if !replaced {
		*coll = append(*coll, item.clone())
	}
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated, ID: item.ID})
	return item, nil
}

// RemoveHumanItem deletes an item by ID from the human collection for kind.
func (s *Store) RemoveHumanItem(kind DataKind, id string) error {
	s.mu.Lock()
	coll := s.human.items(kind)
	if coll == nil {
		s.mu.Unlock()
		return ErrUnknownKind
	}
	for i := range *coll {
		if (*coll)[i].ID == id {
			*coll = append((*coll)[:i], (*coll)[i+1:]...)
			s.human.LastUpdated = time.Now()
			s.mu.Unlock()
			s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated, ID: id})
			return nil
		}
	}
	s.mu.Unlock()
	return ErrItemNotFound
}

// HumanItems returns a copy of the human collection for kind.
func (s *Store) HumanItems(kind DataKind) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.human.items(kind)
	if coll == nil {
		return nil
	}
	return cloneItems(*coll)
}

// AllHumanItems returns every human item across all kinds, in kind order.
// Used by the match step when building candidate shortlists.
func (s *Store) AllHumanItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, k := range Kinds {
		out = append(out, cloneItems(*s.human.items(k))...)
	}
	return out
}

// FindHumanItem looks an item up by ID across all kinds.
func (s *Store) FindHumanItem(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range Kinds {
		coll := s.human.items(k)
		for i := range *coll {
			if (*coll)[i].ID == id {
				return (*coll)[i].clone(), true
			}
		}
	}
	return Item{}, false
}

// AddQuote appends a verbatim quote to the human entity.
func (s *Store) AddQuote(text string) Quote {
	q := Quote{ID: uuid.NewString(), Text: text, CreatedAt: time.Now()}
	s.mu.Lock()
	s.human.Quotes = append(s.human.Quotes, q)
	s.human.LastUpdated = q.CreatedAt
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated, ID: q.ID})
	return q
}

// Settings returns the current human settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.human.Settings
}

// UpdateSettings replaces the human settings.
func (s *Store) UpdateSettings(set Settings) {
	s.mu.Lock()
	s.human.Settings = set
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.HumanUpdated})
}

// MarkCeremonyRun stamps last_ceremony.
func (s *Store) MarkCeremonyRun(now time.Time) {
	s.mu.Lock()
	s.human.Settings.Ceremony.LastCeremony = now
	s.mu.Unlock()
}

// --- Personas ---

func (s *Store) findPersona(id string) *Persona {
	for _, p := range s.personas {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AddPersona registers a persona. A missing ID gets a fresh one and the
// role tag is recomputed.
func (s *Store) AddPersona(p Persona) Persona {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.computeRole()
	cp := p.clone()
	s.mu.Lock()
	s.personas = append(s.personas, &cp)
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.PersonaAdded, ID: p.ID})
	return p
}

// Persona returns a deep copy of the persona with the given ID.
func (s *Store) Persona(id string) (Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findPersona(id)
	if p == nil {
		return Persona{}, ErrPersonaNotFound
	}
	return p.clone(), nil
}

// Personas returns deep copies of all personas, archived ones included, in
// insertion order.
func (s *Store) Personas() []Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Persona, len(s.personas))
	for i, p := range s.personas {
		out[i] = p.clone()
	}
	return out
}

// UpdatePersona replaces a persona's fields. Mutating an archived persona
// is a structural error; unarchive it first.
func (s *Store) UpdatePersona(p Persona) error {
	s.mu.Lock()
	cur := s.findPersona(p.ID)
	if cur == nil {
		s.mu.Unlock()
		return ErrPersonaNotFound
	}
	if cur.IsArchived && p.IsArchived {
		s.mu.Unlock()
		return ErrPersonaArchived
	}
	p.computeRole()
	*cur = p.clone()
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.PersonaUpdated, ID: p.ID})
	return nil
}

// ArchivePersona soft-deletes a persona.
func (s *Store) ArchivePersona(id string) error {
	s.mu.Lock()
	p := s.findPersona(id)
	if p == nil {
		s.mu.Unlock()
		return ErrPersonaNotFound
	}
	p.IsArchived = true
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.PersonaUpdated, ID: id})
	return nil
}

// UnarchivePersona reverses a soft delete.
func (s *Store) UnarchivePersona(id string) error {
	s.mu.Lock()
	p := s.findPersona(id)
	if p == nil {
		s.mu.Unlock()
		return ErrPersonaNotFound
	}
	p.IsArchived = false
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.PersonaUpdated, ID: id})
	return nil
}

// DeletePersona removes a persona permanently.
func (s *Store) DeletePersona(id string) error {
	s.mu.Lock()
	for i, p := range s.personas {
		if p.ID == id {
			s.personas = append(s.personas[:i], s.personas[i+1:]...)
			s.mu.Unlock()
			s.notifier.Publish(notify.Event{Kind: notify.PersonaRemoved, ID: id})
			return nil
		}
	}
	s.mu.Unlock()
	return ErrPersonaNotFound
}

// TouchPersonaActivity stamps last_activity on a persona.
func (s *Store) TouchPersonaActivity(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findPersona(id)
	if p == nil {
		return ErrPersonaNotFound
	}
	p.LastActivity = now
	return nil
}

// MarkPersonaExtracted stamps last_extraction on a persona.
func (s *Store) MarkPersonaExtracted(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findPersona(id)
	if p == nil {
		return ErrPersonaNotFound
	}
	p.LastExtraction = now
	return nil
}

// UpsertPersonaItem inserts or replaces a trait/topic on a persona, keyed
// by ID, stamping last_updated.
func (s *Store) UpsertPersonaItem(personaID string, item Item) (Item, error) {
	s.mu.Lock()
	p := s.findPersona(personaID)
	if p == nil {
		s.mu.Unlock()
		return Item{}, ErrPersonaNotFound
	}
	if p.IsArchived {
		s.mu.Unlock()
		return Item{}, ErrPersonaArchived
	}
	coll := p.items(item.Kind)
	if coll == nil {
		s.mu.Unlock()
		return Item{}, ErrUnknownKind
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.LastUpdated = time.Now()

	replaced := false
	for i := range *coll {
		if (*coll)[i].ID == item.ID {
			(*coll)[i] = item.clone()
			replaced = true
			break
		}
	}
	if !replaced {
		*coll = append(*coll, item.clone())
	}
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.PersonaUpdated, ID: personaID})
	return item, nil
}

// RemovePersonaItem deletes a trait/topic from a persona by ID.
func (s *Store) RemovePersonaItem(personaID string, kind DataKind, id string) error {
	s.mu.Lock()
	p := s.findPersona(personaID)
	if p == nil {
		s.mu.Unlock()
		return ErrPersonaNotFound
	}
	coll := p.items(kind)
	if coll == nil {
		s.mu.Unlock()
		return ErrUnknownKind
	}
	for i := range *coll {
		if (*coll)[i].ID == id {
			*coll = append((*coll)[:i], (*coll)[i+1:]...)
			s.mu.Unlock()
			s.notifier.Publish(notify.Event{Kind: notify.PersonaUpdated, ID: personaID})
			return nil
		}
	}
	s.mu.Unlock()
	return ErrItemNotFound
}

// --- Messages ---

// AppendMessage adds a message to the log. Zero ID, timestamp and context
// status are filled in.
func (s *Store) AppendMessage(m Message) Message {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.ContextStatus == "" {
		m.ContextStatus = ContextDefault
	}
	s.mu.Lock()
	cp := m
	s.messages = append(s.messages, &cp)
	if m.Role == RoleHuman {
		s.human.LastActivity = m.Timestamp
	}
	s.mu.Unlock()
	s.notifier.Publish(notify.Event{Kind: notify.MessageAdded, ID: m.ID})
	s.wake()
	return m
}

// Messages returns a copy of the full message log in original order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// UnextractedMessages returns messages whose flag for kind is unset, in
// original order, skipping context_status=never. This is the sole
// work-discovery mechanism for extraction. The persona scopes the scan to
// its context window; a zero window means unbounded.
func (s *Store) UnextractedMessages(personaID string, kind DataKind) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cutoff time.Time
	if personaID != "" {
		p := s.findPersona(personaID)
		if p == nil {
			return nil, ErrPersonaNotFound
		}
		if p.ContextWindowHours > 0 {
			cutoff = time.Now().Add(-time.Duration(p.ContextWindowHours) * time.Hour)
		}
	}

	var out []Message
	for _, m := range s.messages {
		if m.Extracted.For(kind) || m.ContextStatus == ContextNever {
			continue
		}
		if !cutoff.IsZero() && m.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// ContextMessages returns messages eligible as carried-over context: those
// before the given instant whose context_status is not never. Each returned
// message is announced as recalled so frontends can show what re-entered
// context.
func (s *Store) ContextMessages(before time.Time) []Message {
	s.mu.Lock()
	var out []Message
	for _, m := range s.messages {
		if m.ContextStatus == ContextNever {
			continue
		}
		if !m.Timestamp.Before(before) {
			continue
		}
		out = append(out, *m)
	}
	s.mu.Unlock()
	for _, m := range out {
		s.notifier.Publish(notify.Event{Kind: notify.MessageRecalled, ID: m.ID})
	}
	return out
}

// RecentHumanMessages returns up to limit of the newest human-authored
// messages, oldest first.
func (s *Store) RecentHumanMessages(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.Role == RoleHuman {
			out = append(out, *m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// MarkScanned sets the extraction flag for kind on the given message IDs.
// Called at enqueue time, not completion time, so a message can never be
// claimed by two scan requests.
func (s *Store) MarkScanned(ids []string, kind DataKind) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	for _, m := range s.messages {
		if want[m.ID] {
			m.Extracted.Set(kind)
		}
	}
	s.mu.Unlock()
}
