package state

import (
	"time"

	"github.com/google/uuid"
)

// DataKind discriminates the four extractable item families.
type DataKind string

const (
	KindFact   DataKind = "fact"
	KindTrait  DataKind = "trait"
	KindTopic  DataKind = "topic"
	KindPerson DataKind = "person"
)

// Kinds lists all data kinds in scan order.
var Kinds = []DataKind{KindFact, KindTrait, KindTopic, KindPerson}

// WildcardGroup marks an item as visible to every persona group.
const WildcardGroup = "*"

// Item is a single unit of learned knowledge. One struct covers all four
// kinds; the kind-specific fields are zero for the kinds that don't use them.
type Item struct {
	ID          string   `json:"id"`
	Kind        DataKind `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sentiment   float64  `json:"sentiment"` // -1..1

	// Fact
	Confidence float64 `json:"confidence,omitempty"` // 0..1

	// Trait
	Strength float64 `json:"strength,omitempty"` // 0..1

	// Topic / Person
	ExposureCurrent float64 `json:"exposure_current,omitempty"` // 0..1
	ExposureDesired float64 `json:"exposure_desired,omitempty"` // 0..1

	// Person
	Relationship string `json:"relationship,omitempty"`

	// Persona-owned topics replace the plain description with a viewpoint.
	Perspective   string `json:"perspective,omitempty"`
	Approach      string `json:"approach,omitempty"`
	PersonalStake string `json:"personal_stake,omitempty"`

	LastUpdated   time.Time `json:"last_updated"`
	LearnedBy     string    `json:"learned_by,omitempty"`     // persona ID that discovered it
	PersonaGroups []string  `json:"persona_groups,omitempty"` // empty or wildcard = globally visible

	// Precomputed embedding of "name: description", if any.
	Embedding []float64 `json:"embedding,omitempty"`
}

// NewItem creates an item of the given kind with a fresh stable ID.
func NewItem(kind DataKind, name string) Item {
	return Item{
		ID:   uuid.NewString(),
		Kind: kind,
		Name: name,
	}
}

// GloballyVisible reports whether the item is visible to all personas:
// no group tags at all, or the wildcard group present.
func (it *Item) GloballyVisible() bool {
	if len(it.PersonaGroups) == 0 {
		return true
	}
	for _, g := range it.PersonaGroups {
		if g == WildcardGroup {
			return true
		}
	}
	return false
}

func (it Item) clone() Item {
	c := it
	if it.PersonaGroups != nil {
		c.PersonaGroups = append([]string(nil), it.PersonaGroups...)
	}
	if it.Embedding != nil {
		c.Embedding = append([]float64(nil), it.Embedding...)
	}
	return c
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].clone()
	}
	return out
}

// Quote is a verbatim line the human said that was worth keeping.
type Quote struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
