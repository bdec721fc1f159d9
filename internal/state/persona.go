package state

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PersonaRole is a tagged variant computed once from the persona's aliases.
// The orchestrator persona always runs last in a ceremony and sees every
// group, so it can review what the others changed.
type PersonaRole string

const (
	RoleOrdinary     PersonaRole = "ordinary"
	RoleOrchestrator PersonaRole = "orchestrator"
)

// orchestratorAlias is the alias that promotes a persona to orchestrator.
const orchestratorAlias = "ei"

// Persona is one AI personality with its own traits, topics and schedule.
type Persona struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`

	ShortDescription string `json:"short_description,omitempty"`
	LongDescription  string `json:"long_description,omitempty"`
	Model            string `json:"model,omitempty"` // overrides the human's model settings

	Groups []string `json:"groups,omitempty"`

	Traits []Item `json:"traits"`
	Topics []Item `json:"topics"`

	IsPaused   bool       `json:"is_paused"`
	PauseUntil *time.Time `json:"pause_until,omitempty"`
	IsArchived bool       `json:"is_archived"`
	IsStatic   bool       `json:"is_static"`

	HeartbeatDelayMS   int `json:"heartbeat_delay_ms,omitempty"`
	ContextWindowHours int `json:"context_window_hours,omitempty"`

	LastActivity   time.Time `json:"last_activity"`
	LastExtraction time.Time `json:"last_extraction"`

	Role PersonaRole `json:"role"`
}

// NewPersona creates a persona with a fresh ID and its role computed.
func NewPersona(name string, aliases ...string) Persona {
	p := Persona{
		ID:      uuid.NewString(),
		Name:    name,
		Aliases: aliases,
		Role:    RoleOrdinary,
	}
	p.computeRole()
	return p
}

// computeRole derives the role tag from the name and aliases. Done once per
// add/update so nothing downstream string-compares persona names.
func (p *Persona) computeRole() {
	p.Role = RoleOrdinary
	if strings.EqualFold(p.Name, orchestratorAlias) {
		p.Role = RoleOrchestrator
		return
	}
	for _, a := range p.Aliases {
		if strings.EqualFold(a, orchestratorAlias) {
			p.Role = RoleOrchestrator
			return
		}
	}
}

// SeesAllGroups reports whether group visibility filtering applies.
func (p *Persona) SeesAllGroups() bool {
	return p.Role == RoleOrchestrator
}

// PrimaryGroup is the group new items learned by this persona are tagged
// with. Empty means the item will be globally visible.
func (p *Persona) PrimaryGroup() string {
	if len(p.Groups) == 0 {
		return ""
	}
	return p.Groups[0]
}

// PausedAt reports whether the persona is paused at the given instant; a
// pause with an expired pause_until no longer counts.
func (p *Persona) PausedAt(now time.Time) bool {
	if !p.IsPaused {
		return false
	}
	if p.PauseUntil != nil && !now.Before(*p.PauseUntil) {
		return false
	}
	return true
}

// CeremonyEligible reports whether the persona participates in ceremonies
// at all. Static personas are excluded entirely.
func (p *Persona) CeremonyEligible(now time.Time) bool {
	return !p.IsArchived && !p.IsStatic && !p.PausedAt(now)
}

// items returns the collection for the given kind. Personas only own traits
// and topics.
func (p *Persona) items(kind DataKind) *[]Item {
	switch kind {
	case KindTrait:
		return &p.Traits
	case KindTopic:
		return &p.Topics
	}
	return nil
}

func (p Persona) clone() Persona {
	c := p
	if p.Aliases != nil {
		c.Aliases = append([]string(nil), p.Aliases...)
	}
	if p.Groups != nil {
		c.Groups = append([]string(nil), p.Groups...)
	}
	if p.PauseUntil != nil {
		t := *p.PauseUntil
		c.PauseUntil = &t
	}
	c.Traits = cloneItems(p.Traits)
	c.Topics = cloneItems(p.Topics)
	return c
}
