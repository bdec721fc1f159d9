// Package ceremony runs the once-daily batch that walks every active
// persona through extraction, decay, expiry and exploration, then decays
// the human's own topics and people. Phases that wait on LLM output attach
// continuations through the queue's dispatch table; everything else runs
// synchronously, each phase invoking the next.
package ceremony

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/hearthmind/hearth/internal/extract"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/queue"
	"github.com/hearthmind/hearth/internal/state"
)

// Dispatch table identifiers for the ceremony's handlers.
const (
	StepExpire   = "ceremony.expire"
	StepExplore  = "ceremony.explore"
	StepDescribe = "ceremony.describe"
)

// lowExposureThreshold marks items worth reporting after the human decay
// pass. Informational only.
const lowExposureThreshold = 0.2

// recentMessageLimit bounds how much conversation the explore phase sees.
const recentMessageLimit = 20

// Orchestrator schedules and executes ceremonies against one store.
type Orchestrator struct {
	store    *state.Store
	pipeline *extract.Pipeline
}

// New creates an orchestrator.
func New(store *state.Store, pipeline *extract.Pipeline) *Orchestrator {
	return &Orchestrator{store: store, pipeline: pipeline}
}

// Register binds the ceremony's handlers into the processor's dispatch
// table.
func (o *Orchestrator) Register(p *queue.Processor) {
	p.Register(StepExpire, o.handleExpire)
	p.Register(StepExplore, o.handleExplore)
	p.Register(StepDescribe, o.handleDescribe)
}

// ShouldRun reports whether a ceremony is due: enabled, none has run yet
// today, and the local time-of-day is at or past the configured HH:MM.
func ShouldRun(cfg state.CeremonySettings, now time.Time) bool {
	if !cfg.Enabled {
		return false
	}
	if sameDay(cfg.LastCeremony, now) {
		return false
	}
	target, err := parseHHMM(cfg.Time)
	if err != nil {
		log.Printf("ceremony: bad time %q: %v", cfg.Time, err)
		return false
	}
	return now.Hour()*60+now.Minute() >= target
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// parseHHMM converts "HH:MM" to minutes since midnight.
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// Run executes one full ceremony: every eligible persona in order (the
// orchestrator persona always last, untouched personas skipped), then the
// human ceremony, then the last_ceremony stamp.
func (o *Orchestrator) Run(now time.Time) {
	settings := o.store.Settings()
	prior := settings.Ceremony.LastCeremony

	personas := o.processingOrder(now, prior)
	log.Printf("ceremony: starting with %d personas", len(personas))

	for _, p := range personas {
		o.runPersona(p, settings.Ceremony.DecayRate, now)
	}

	o.humanCeremony(settings.Ceremony.DecayRate, now)
	o.store.MarkCeremonyRun(now)
	log.Printf("ceremony: done")
}

// processingOrder snapshots eligible personas: not paused/archived/static,
// active since the prior ceremony, with the orchestrator moved to the end
// so it sees whatever global state the others just changed.
func (o *Orchestrator) processingOrder(now, prior time.Time) []state.Persona {
	var ordinary, last []state.Persona
	for _, p := range o.store.Personas() {
		if !p.CeremonyEligible(now) {
			continue
		}
		if !p.LastActivity.After(prior) {
			continue
		}
		if p.Role == state.RoleOrchestrator {
			last = append(last, p)
		} else {
			ordinary = append(ordinary, p)
		}
	}
	return append(ordinary, last...)
}

// runPersona walks the five-phase pipeline. Each phase invokes the next;
// none blocks on queued LLM results.
func (o *Orchestrator) runPersona(p state.Persona, decayRate float64, now time.Time) {
	o.phaseExposure(p, decayRate, now)
}

// Phase 1: for each data kind with unextracted messages, enqueue the scan,
// then move straight on to decay without waiting for the scan's result.
func (o *Orchestrator) phaseExposure(p state.Persona, decayRate float64, now time.Time) {
	for _, kind := range state.Kinds {
		n, err := o.pipeline.EnqueueScan(p, kind)
		if err != nil {
			log.Printf("ceremony: %s scan for %s: %v", kind, p.Name, err)
			continue
		}
		if n > 0 {
			log.Printf("ceremony: enqueued %d %s scan(s) for %s", n, kind, p.Name)
		}
	}
	o.phaseDecay(p, decayRate, now)
}

// Phase 2: relax every topic's exposure_current toward zero.
// exposure_desired is never touched by decay.
func (o *Orchestrator) phaseDecay(p state.Persona, decayRate float64, now time.Time) {
	if len(p.Topics) == 0 {
		o.phaseExpire(p, now)
		return
	}
	for _, t := range p.Topics {
		t.ExposureCurrent = Decay(t.ExposureCurrent, now.Sub(t.LastUpdated), decayRate)
		if _, err := o.store.UpsertPersonaItem(p.ID, t); err != nil {
			log.Printf("ceremony: decay topic %s for %s: %v", t.Name, p.Name, err)
		}
	}
	// Later phases prompt from the persona; re-fetch so they see the
	// decayed exposures, not this phase's stale snapshot.
	if fresh, err := o.store.Persona(p.ID); err == nil {
		p = fresh
	}
	o.phaseExpire(p, now)
}

// Phase 3: ask the model which topics have run their course. With no
// topics there is nothing to expire or explore, so skip to the
// description check.
func (o *Orchestrator) phaseExpire(p state.Persona, now time.Time) {
	if len(p.Topics) == 0 {
		o.phaseDescribe(p)
		return
	}

	system, user := expirePrompt(p)
	data, err := json.Marshal(phaseData{PersonaID: p.ID})
	if err != nil {
		log.Printf("ceremony: marshal expire data: %v", err)
		return
	}
	o.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepExpire,
		Data:     data,
	})
	o.phaseExplore(p)
}

// Phase 4: seed discovery of new topics from traits, surviving topics and
// recurring themes in recent conversation.
func (o *Orchestrator) phaseExplore(p state.Persona) {
	recent := o.store.RecentHumanMessages(recentMessageLimit)
	themes := extractThemes(recent)

	system, user := explorePrompt(p, recent, themes)
	data, err := json.Marshal(phaseData{PersonaID: p.ID})
	if err != nil {
		log.Printf("ceremony: marshal explore data: %v", err)
		return
	}
	o.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepExplore,
		Data:     data,
	})
	o.phaseDescribe(p)
}

// Phase 5: refresh the persona's short/long descriptions.
func (o *Orchestrator) phaseDescribe(p state.Persona) {
	system, user := describePrompt(p)
	data, err := json.Marshal(phaseData{PersonaID: p.ID})
	if err != nil {
		log.Printf("ceremony: marshal describe data: %v", err)
		return
	}
	o.store.Enqueue(state.Request{
		Type:     state.RequestJSON,
		Priority: state.PriorityLow,
		System:   system,
		User:     user,
		NextStep: StepDescribe,
		Data:     data,
	})
}

// humanCeremony decays every human topic and person, then reports how many
// fell below the low-exposure threshold. The report mutates nothing.
func (o *Orchestrator) humanCeremony(decayRate float64, now time.Time) {
	low := 0
	for _, kind := range []state.DataKind{state.KindTopic, state.KindPerson} {
		for _, it := range o.store.HumanItems(kind) {
			it.ExposureCurrent = Decay(it.ExposureCurrent, now.Sub(it.LastUpdated), decayRate)
			if _, err := o.store.UpsertHumanItem(it); err != nil {
				log.Printf("ceremony: human decay %s: %v", it.Name, err)
				continue
			}
			if it.ExposureCurrent < lowExposureThreshold {
				low++
			}
		}
	}
	if low > 0 {
		log.Printf("ceremony: %d human items below %.1f exposure", low, lowExposureThreshold)
	}
}

// phaseData rides on ceremony requests through to their handlers.
type phaseData struct {
	PersonaID string `json:"persona_id"`
}

// --- Handlers ---

func (o *Orchestrator) handleExpire(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data phaseData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode expire data: %w", err)
	}

	var result struct {
		Skip    bool     `json:"skip"`
		Expired []string `json:"expired"`
	}
	if err := llm.DecodeJSON(resp.Content, &result); err != nil {
		return fmt.Errorf("parse expire response: %w", err)
	}
	if result.Skip || len(result.Expired) == 0 {
		return nil
	}

	for _, id := range result.Expired {
		if err := o.store.RemovePersonaItem(data.PersonaID, state.KindTopic, id); err != nil {
			log.Printf("ceremony: expire topic %s: %v", id, err)
			continue
		}
		log.Printf("ceremony: expired topic %s on persona %s", id, data.PersonaID)
	}
	return nil
}

func (o *Orchestrator) handleExplore(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data phaseData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode explore data: %w", err)
	}

	var suggestions []struct {
		Name            string  `json:"name"`
		Perspective     string  `json:"perspective"`
		Approach        string  `json:"approach"`
		PersonalStake   string  `json:"personal_stake"`
		ExposureDesired float64 `json:"exposure_desired"`
	}
	if err := llm.DecodeJSON(resp.Content, &suggestions); err != nil {
		// An object reply here means skip, not breakage.
		var skipObj struct {
			Skip bool `json:"skip"`
		}
		if err2 := llm.DecodeJSON(resp.Content, &skipObj); err2 == nil && skipObj.Skip {
			return nil
		}
		return fmt.Errorf("parse explore response: %w", err)
	}

	for _, s := range suggestions {
		if s.Name == "" {
			continue
		}
		topic := state.NewItem(state.KindTopic, s.Name)
		topic.Perspective = s.Perspective
		topic.Approach = s.Approach
		topic.PersonalStake = s.PersonalStake
		topic.ExposureDesired = clamp01(s.ExposureDesired)
		if _, err := o.store.UpsertPersonaItem(data.PersonaID, topic); err != nil {
			log.Printf("ceremony: add topic %q: %v", s.Name, err)
			continue
		}
		log.Printf("ceremony: persona %s picked up topic %q", data.PersonaID, s.Name)
	}
	return nil
}

func (o *Orchestrator) handleDescribe(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data phaseData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode describe data: %w", err)
	}

	var result struct {
		Skip             bool   `json:"skip"`
		ShortDescription string `json:"short_description"`
		LongDescription  string `json:"long_description"`
	}
	if err := llm.DecodeJSON(resp.Content, &result); err != nil {
		return fmt.Errorf("parse describe response: %w", err)
	}
	if result.Skip {
		return nil
	}

	p, err := o.store.Persona(data.PersonaID)
	if err != nil {
		return fmt.Errorf("describe persona: %w", err)
	}
	if result.ShortDescription != "" {
		p.ShortDescription = result.ShortDescription
	}
	if result.LongDescription != "" {
		p.LongDescription = result.LongDescription
	}
	return o.store.UpdatePersona(p)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
