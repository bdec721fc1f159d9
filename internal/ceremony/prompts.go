package ceremony

import (
	"fmt"
	"strings"

	"github.com/hearthmind/hearth/internal/state"
)

func expirePrompt(p state.Persona) (string, string) {
	system := "You decide which of a persona's topics have run their course and are no " +
		"longer worth pursuing. Reply with JSON: {\"expired\": [\"<topic id>\", ...]} " +
		"or {\"skip\": true} if every topic is still alive."

	var b strings.Builder
	fmt.Fprintf(&b, "Persona %s's topics:\n", p.Name)
	for _, t := range p.Topics {
		fmt.Fprintf(&b, "- id=%s name=%s exposure=%.2f desired=%.2f\n",
			t.ID, t.Name, t.ExposureCurrent, t.ExposureDesired)
	}
	return system, b.String()
}

func explorePrompt(p state.Persona, recent []state.Message, themes []string) (string, string) {
	system := "You propose new topics a persona could explore with the user. Reply with a " +
		"JSON array of objects with name, perspective, approach, personal_stake and " +
		"exposure_desired (0..1) fields. Reply with [] if nothing new suggests itself."

	var b strings.Builder
	fmt.Fprintf(&b, "Persona: %s\n", p.Name)
	if len(p.Traits) > 0 {
		b.WriteString("Traits:\n")
		for _, t := range p.Traits {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	if len(p.Topics) > 0 {
		b.WriteString("Current topics:\n")
		for _, t := range p.Topics {
			fmt.Fprintf(&b, "- %s\n", t.Name)
		}
	}
	if len(themes) > 0 {
		fmt.Fprintf(&b, "Recurring themes in recent conversation: %s\n", strings.Join(themes, ", "))
	}
	if len(recent) > 0 {
		b.WriteString("Recent messages:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}
	return system, b.String()
}

func describePrompt(p state.Persona) (string, string) {
	system := "You refresh a persona's self-descriptions from its current traits and " +
		"topics. Reply with JSON: {\"short_description\": \"...\", \"long_description\": \"...\"} " +
		"or {\"skip\": true} if the existing descriptions still fit."

	var b strings.Builder
	fmt.Fprintf(&b, "Persona: %s\nCurrent short description: %s\nCurrent long description: %s\n",
		p.Name, p.ShortDescription, p.LongDescription)
	if len(p.Traits) > 0 {
		b.WriteString("Traits:\n")
		for _, t := range p.Traits {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	if len(p.Topics) > 0 {
		b.WriteString("Topics:\n")
		for _, t := range p.Topics {
			fmt.Fprintf(&b, "- %s (%s)\n", t.Name, t.Perspective)
		}
	}
	return system, b.String()
}
