// Package extract implements the extraction pipeline: a token-budget
// chunker plus the three-step scan→match→update protocol that turns raw
// conversation into durable knowledge items. Steps chain through the queue
// as continuations — each step's handler enqueues the next step's request.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hearthmind/hearth/internal/embedding"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/queue"
	"github.com/hearthmind/hearth/internal/state"
)

// Dispatch table identifiers for the pipeline's handlers.
const (
	StepScan   = "extract.scan"
	StepMatch  = "extract.match"
	StepUpdate = "extract.update"
	StepReview = "extract.review"
)

// Match shortlists offer at most this many embedding neighbours, at or
// above this similarity.
const (
	shortlistSize   = 20
	shortlistMinSim = 0.3
)

// Pipeline runs extraction for one store. The embedder is optional:
// without it (or without any embedded items) the match step falls back to
// offering every existing item.
type Pipeline struct {
	store    *state.Store
	embedder embedding.Embedder
	budget   int
}

// New creates a pipeline. budget <= 0 uses the default token budget.
func New(store *state.Store, embedder embedding.Embedder, budget int) *Pipeline {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Pipeline{store: store, embedder: embedder, budget: budget}
}

// Register binds the pipeline's handlers into the processor's dispatch
// table.
func (pl *Pipeline) Register(p *queue.Processor) {
	p.Register(StepScan, pl.handleScan)
	p.Register(StepMatch, pl.handleMatch)
	p.Register(StepUpdate, pl.handleUpdate)
	p.Register(StepReview, pl.handleReview)
}

// scanData rides on a scan request through to its handler.
type scanData struct {
	PersonaID    string         `json:"persona_id"`
	Kind         state.DataKind `json:"kind"`
	MessageIDs   []string       `json:"message_ids"`
	Conversation string         `json:"conversation"`
}

type matchData struct {
	PersonaID    string         `json:"persona_id"`
	Kind         state.DataKind `json:"kind"`
	Name         string         `json:"name"`
	Value        string         `json:"value"`
	Conversation string         `json:"conversation"`
}

type updateData struct {
	PersonaID    string         `json:"persona_id"`
	Kind         state.DataKind `json:"kind"`
	ItemID       string         `json:"item_id,omitempty"`
	Name         string         `json:"name"`
	Value        string         `json:"value"`
	Conversation string         `json:"conversation"`
}

type reviewData struct {
	Persona string `json:"persona"`
	Change  string `json:"change"`
}

// EnqueueScan chunks the persona's unextracted messages for one data kind
// and enqueues a scan request per chunk, marking the covered messages as
// scanned immediately so they can't be re-enqueued. Returns the number of
// requests enqueued.
func (pl *Pipeline) EnqueueScan(persona state.Persona, kind state.DataKind) (int, error) {
	msgs, err := pl.store.UnextractedMessages(persona.ID, kind)
	if err != nil {
		return 0, fmt.Errorf("unextracted messages: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	ctxMsgs := pl.store.ContextMessages(msgs[0].Timestamp)
	chunks := ChunkMessages(ctxMsgs, msgs, pl.budget)

	for _, ch := range chunks {
		ids := make([]string, len(ch.Analyze))
		for i, m := range ch.Analyze {
			ids[i] = m.ID
		}
		system, user := scanPrompt(kind, ch)
		data, err := json.Marshal(scanData{
			PersonaID:    persona.ID,
			Kind:         kind,
			MessageIDs:   ids,
			Conversation: renderMessages(ch.Context) + renderMessages(ch.Analyze),
		})
		if err != nil {
			return 0, fmt.Errorf("marshal scan data: %w", err)
		}

		pl.store.Enqueue(state.Request{
			Type:     state.RequestJSON,
			Priority: state.PriorityNormal,
			System:   system,
			User:     user,
			NextStep: StepScan,
			Data:     data,
		})
		// Flag at enqueue time, not completion — prevents re-enqueue races.
		pl.store.MarkScanned(ids, kind)
	}

	if err := pl.store.MarkPersonaExtracted(persona.ID, time.Now()); err != nil {
		log.Printf("extraction: mark extracted %s: %v", persona.ID, err)
	}
	return len(chunks), nil
}

// DirectUpdate bypasses scan and match when the caller already knows the
// exact target item, going straight to the update prompt.
func (pl *Pipeline) DirectUpdate(personaID string, target state.Item, contextMsgs, analyze []state.Message) (string, error) {
	conv := renderMessages(contextMsgs) + renderMessages(analyze)
	system, user := updatePrompt(target.Kind, &target, "", "", conv)
	data, err := json.Marshal(updateData{
		PersonaID:    personaID,
		Kind:         target.Kind,
		ItemID:       target.ID,
		Conversation: conv,
	})
	if err != nil {
		return "", fmt.Errorf("marshal update data: %w", err)
	}
	id := pl.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepUpdate,
		Data:     data,
	})
	return id, nil
}

// --- Step 1: scan ---

func (pl *Pipeline) handleScan(ctx context.Context, resp *llm.Response, req *state.Request) error {
	var data scanData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode scan data: %w", err)
	}

	candidates, skip, err := parseCandidates(resp.Content, data.Kind)
	if err != nil {
		return err
	}
	if skip || len(candidates) == 0 {
		return nil // deliberate no-op, not an error
	}

	for _, c := range candidates {
		if err := pl.enqueueMatch(ctx, data, c); err != nil {
			return err
		}
	}
	return nil
}

type candidate struct {
	Name  string
	Value string
}

// parseCandidates reads the scan response: a JSON array of objects whose
// field names vary by kind, or {"skip": true} meaning nothing found.
func parseCandidates(content string, kind state.DataKind) ([]candidate, bool, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, true, nil
	}

	var skipObj struct {
		Skip bool `json:"skip"`
	}
	if err := llm.DecodeJSON(content, &skipObj); err == nil && skipObj.Skip {
		return nil, true, nil
	}

	var raw []map[string]string
	if err := llm.DecodeJSON(content, &raw); err != nil {
		return nil, false, fmt.Errorf("parse scan response: %w", err)
	}

	f1, f2 := scanFields(kind)
	var out []candidate
	for _, m := range raw {
		c := candidate{Name: m[f1], Value: m[f2]}
		if c.Name == "" && c.Value == "" {
			continue
		}
		if c.Name == "" {
			c.Name = c.Value
		}
		out = append(out, c)
	}
	return out, false, nil
}

// --- Step 2: match ---

// enqueueMatch decides which existing items a candidate is compared
// against. With embeddings available the shortlist is the top neighbours;
// otherwise every existing item is offered — correctness never depends on
// embeddings being present.
func (pl *Pipeline) enqueueMatch(ctx context.Context, data scanData, c candidate) error {
	items := pl.store.AllHumanItems()
	if len(items) == 0 {
		// Nothing to match against: create new.
		return pl.enqueueUpdate(data.PersonaID, data.Kind, nil, c, data.Conversation)
	}

	shortlist := items
	if pl.embedder != nil && embedding.AnyEmbedded(items) {
		vec, err := pl.embedder.Embed(ctx, c.Name+": "+c.Value)
		if err != nil {
			log.Printf("extraction: embed candidate %q: %v (falling back to full set)", c.Name, err)
		} else {
			matches := embedding.TopK(vec, items, shortlistSize, shortlistMinSim)
			if len(matches) == 0 {
				// No neighbour is even close: treat as new.
				return pl.enqueueUpdate(data.PersonaID, data.Kind, nil, c, data.Conversation)
			}
			shortlist = make([]state.Item, len(matches))
			for i, m := range matches {
				shortlist[i] = m.Item
			}
		}
	}

	system, user := matchPrompt(data.Kind, c.Name, c.Value, shortlist)
	payload, err := json.Marshal(matchData{
		PersonaID:    data.PersonaID,
		Kind:         data.Kind,
		Name:         c.Name,
		Value:        c.Value,
		Conversation: data.Conversation,
	})
	if err != nil {
		return fmt.Errorf("marshal match data: %w", err)
	}

	pl.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityNormal,
		System:   system,
		User:     user,
		NextStep: StepMatch,
		Data:     payload,
	})
	return nil
}

func (pl *Pipeline) handleMatch(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data matchData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode match data: %w", err)
	}

	var result struct {
		MatchID string `json:"match_id"`
	}
	if err := llm.DecodeJSON(resp.Content, &result); err != nil {
		return fmt.Errorf("parse match response: %w", err)
	}

	var target *state.Item
	if result.MatchID != "" && result.MatchID != "none" {
		it, ok := pl.store.FindHumanItem(result.MatchID)
		if ok {
			target = &it
		} else {
			log.Printf("extraction: match returned unknown item %s, creating new", result.MatchID)
		}
	}

	return pl.enqueueUpdate(data.PersonaID, data.Kind, target,
		candidate{Name: data.Name, Value: data.Value}, data.Conversation)
}

// --- Step 3: update ---

func (pl *Pipeline) enqueueUpdate(personaID string, kind state.DataKind, target *state.Item, c candidate, conversation string) error {
	system, user := updatePrompt(kind, target, c.Name, c.Value, conversation)
	ud := updateData{
		PersonaID:    personaID,
		Kind:         kind,
		Name:         c.Name,
		Value:        c.Value,
		Conversation: conversation,
	}
	if target != nil {
		ud.ItemID = target.ID
	}
	payload, err := json.Marshal(ud)
	if err != nil {
		return fmt.Errorf("marshal update data: %w", err)
	}

	pl.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepUpdate,
		Data:     payload,
	})
	return nil
}

type updateFields struct {
	Skip            bool     `json:"skip"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Sentiment       *float64 `json:"sentiment"`
	Confidence      *float64 `json:"confidence"`
	Strength        *float64 `json:"strength"`
	ExposureDesired *float64 `json:"exposure_desired"`
	Relationship    string   `json:"relationship"`
}

func (pl *Pipeline) handleUpdate(ctx context.Context, resp *llm.Response, req *state.Request) error {
	var data updateData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode update data: %w", err)
	}

	var fields updateFields
	if err := llm.DecodeJSON(resp.Content, &fields); err != nil {
		return fmt.Errorf("parse update response: %w", err)
	}
	if fields.Skip {
		return nil
	}

	persona, err := pl.store.Persona(data.PersonaID)
	if err != nil {
		return fmt.Errorf("acting persona: %w", err)
	}

	var item state.Item
	created := false
	if data.ItemID != "" {
		existing, ok := pl.store.FindHumanItem(data.ItemID)
		if !ok {
			return fmt.Errorf("update target %s: %w", data.ItemID, state.ErrItemNotFound)
		}
		item = existing // merge preserves the ID
	} else {
		name := fields.Name
		if name == "" {
			name = data.Name
		}
		item = state.NewItem(data.Kind, name)
		if g := persona.PrimaryGroup(); g != "" {
			item.PersonaGroups = []string{g}
		}
		item.LearnedBy = persona.ID
		created = true
	}

	mergeFields(&item, fields)

	if pl.embedder != nil {
		if vec, err := pl.embedder.Embed(ctx, item.Name+": "+item.Description); err == nil {
			item.Embedding = vec
		} else {
			log.Printf("extraction: embed %q: %v", item.Name, err)
		}
	}

	if _, err := pl.store.UpsertHumanItem(item); err != nil {
		return fmt.Errorf("upsert %s: %w", item.Name, err)
	}

	verb := "updated"
	if created {
		verb = "created"
	}
	log.Printf("extraction: %s %s %q (persona %s)", verb, item.Kind, item.Name, persona.Name)

	// Cross-persona rule: changes to globally visible items by anyone but
	// the orchestrator get queued for orchestrator review.
	if persona.Role != state.RoleOrchestrator && item.GloballyVisible() {
		change := fmt.Sprintf("%s %s %q: %s", verb, item.Kind, item.Name, item.Description)
		if err := pl.enqueueReview(persona.Name, change); err != nil {
			return err
		}
	}
	return nil
}

func mergeFields(item *state.Item, f updateFields) {
	if f.Name != "" {
		item.Name = f.Name
	}
	if f.Description != "" {
		item.Description = f.Description
	}
	if f.Sentiment != nil {
		item.Sentiment = clamp(*f.Sentiment, -1, 1)
	}
	if f.Confidence != nil {
		item.Confidence = clamp(*f.Confidence, 0, 1)
	}
	if f.Strength != nil {
		item.Strength = clamp(*f.Strength, 0, 1)
	}
	if f.ExposureDesired != nil {
		// exposure_desired moves only on explicit signals, never via decay.
		item.ExposureDesired = clamp(*f.ExposureDesired, 0, 1)
	}
	if f.Relationship != "" {
		item.Relationship = f.Relationship
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// --- Review ---

func (pl *Pipeline) enqueueReview(actingPersona, change string) error {
	system, user := reviewPrompt(actingPersona, change)
	payload, err := json.Marshal(reviewData{Persona: actingPersona, Change: change})
	if err != nil {
		return fmt.Errorf("marshal review data: %w", err)
	}
	pl.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepReview,
		Data:     payload,
	})
	return nil
}

func (pl *Pipeline) handleReview(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data reviewData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode review data: %w", err)
	}

	var result struct {
		Approve bool   `json:"approve"`
		Note    string `json:"note"`
	}
	if err := llm.DecodeJSON(resp.Content, &result); err != nil {
		return fmt.Errorf("parse review response: %w", err)
	}

	if result.Approve {
		log.Printf("review: approved change by %s", data.Persona)
	} else {
		log.Printf("review: flagged change by %s: %s", data.Persona, result.Note)
	}
	return nil
}
