package extract

import (
	"fmt"
	"strings"

	"github.com/hearthmind/hearth/internal/state"
)

// descriptionLimit bounds shortlist descriptions so match prompts stay small.
const descriptionLimit = 255

// scanFields returns the candidate field names the scan asks for. They vary
// by kind, matching what downstream consumers expect.
func scanFields(kind state.DataKind) (string, string) {
	switch kind {
	case state.KindTopic:
		return "value", "type"
	case state.KindPerson:
		return "name", "type"
	default: // fact, trait
		return "type", "value"
	}
}

// renderMessages flattens messages into "[role] content" lines.
func renderMessages(msgs []state.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

func scanPrompt(kind state.DataKind, chunk Chunk) (string, string) {
	f1, f2 := scanFields(kind)
	system := fmt.Sprintf(
		"You extract %s candidates about the user from conversation. "+
			"Reply with a JSON array of objects, each with %q and %q fields. "+
			"Reply with [] if the conversation contains nothing new.",
		kind, f1, f2)

	var b strings.Builder
	if len(chunk.Context) > 0 {
		b.WriteString("Earlier context:\n")
		b.WriteString(renderMessages(chunk.Context))
		b.WriteString("\n")
	}
	b.WriteString("Analyze these messages:\n")
	b.WriteString(renderMessages(chunk.Analyze))
	return system, b.String()
}

func matchPrompt(kind state.DataKind, name, value string, shortlist []state.Item) (string, string) {
	system := fmt.Sprintf(
		"You decide whether a newly observed %s refers to an item already on record. "+
			"Reply with JSON: {\"match_id\": \"<id>\"} for the best match, or "+
			"{\"match_id\": \"none\"} if it is genuinely new.",
		kind)

	var b strings.Builder
	fmt.Fprintf(&b, "Observed: %s: %s\n\nExisting items:\n", name, value)
	for _, it := range shortlist {
		desc := it.Description
		if it.Kind != kind && len(desc) > descriptionLimit {
			desc = desc[:descriptionLimit]
		}
		fmt.Fprintf(&b, "- id=%s kind=%s name=%s: %s\n", it.ID, it.Kind, it.Name, desc)
	}
	return system, b.String()
}

func updatePrompt(kind state.DataKind, target *state.Item, name, value, conversation string) (string, string) {
	system := fmt.Sprintf(
		"You maintain the record of one %s about the user. Given the conversation, "+
			"return JSON with the updated fields: name, description, sentiment (-1..1)"+
			kindFieldHint(kind)+
			". Return {\"skip\": true} if the conversation adds nothing.",
		kind)

	var b strings.Builder
	if target != nil {
		fmt.Fprintf(&b, "Current item: name=%s description=%s sentiment=%.2f\n\n",
			target.Name, target.Description, target.Sentiment)
	} else {
		fmt.Fprintf(&b, "New item observed: %s: %s\n\n", name, value)
	}
	b.WriteString("Conversation:\n")
	b.WriteString(conversation)
	return system, b.String()
}

func kindFieldHint(kind state.DataKind) string {
	switch kind {
	case state.KindFact:
		return ", confidence (0..1)"
	case state.KindTrait:
		return ", strength (0..1)"
	case state.KindTopic:
		return ", exposure_desired (0..1)"
	case state.KindPerson:
		return ", relationship, exposure_desired (0..1)"
	}
	return ""
}

func reviewPrompt(actingPersona, change string) (string, string) {
	system := "You review changes other personas made to shared knowledge about the user. " +
		"Reply with JSON: {\"approve\": true} or {\"approve\": false, \"note\": \"...\"}."
	user := fmt.Sprintf("Persona %q made this change:\n%s", actingPersona, change)
	return system, user
}
