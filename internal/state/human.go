package state

import "time"

// Human is the singleton entity describing the user. It is never destroyed,
// only replaced wholesale on checkpoint restore.
type Human struct {
	Facts   []Item  `json:"facts"`
	Traits  []Item  `json:"traits"`
	Topics  []Item  `json:"topics"`
	Persons []Item  `json:"persons"`
	Quotes  []Quote `json:"quotes"`

	Settings Settings `json:"settings"`

	LastUpdated  time.Time `json:"last_updated"`
	LastActivity time.Time `json:"last_activity"`
}

// Settings holds ceremony scheduling and model selection for the human.
type Settings struct {
	Ceremony CeremonySettings `json:"ceremony"`
	Model    ModelSettings    `json:"model"`
}

// CeremonySettings controls the once-daily ceremony.
type CeremonySettings struct {
	Enabled      bool      `json:"enabled"`
	Time         string    `json:"time"` // "HH:MM" local time-of-day
	DecayRate    float64   `json:"decay_rate"`
	LastCeremony time.Time `json:"last_ceremony"`
}

// ModelSettings selects models. A persona's own override wins over these.
type ModelSettings struct {
	Default    string `json:"default,omitempty"`
	Extraction string `json:"extraction,omitempty"`
}

// DefaultSettings matches a fresh install: ceremony on at 04:00 with the
// standard decay rate.
func DefaultSettings() Settings {
	return Settings{
		Ceremony: CeremonySettings{
			Enabled:   true,
			Time:      "04:00",
			DecayRate: 0.1,
		},
	}
}

// items returns the collection for the given kind, or nil for unknown kinds.
func (h *Human) items(kind DataKind) *[]Item {
	switch kind {
	case KindFact:
		return &h.Facts
	case KindTrait:
		return &h.Traits
	case KindTopic:
		return &h.Topics
	case KindPerson:
		return &h.Persons
	}
	return nil
}

func (h Human) clone() Human {
	c := h
	c.Facts = cloneItems(h.Facts)
	c.Traits = cloneItems(h.Traits)
	c.Topics = cloneItems(h.Topics)
	c.Persons = cloneItems(h.Persons)
	if h.Quotes != nil {
		c.Quotes = append([]Quote(nil), h.Quotes...)
	}
	return c
}
