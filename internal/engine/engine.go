// Package engine wires the state store, queue processor, extraction
// pipeline, ceremony orchestrator, and checkpoint manager into one
// running core.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hearthmind/hearth/internal/ceremony"
	"github.com/hearthmind/hearth/internal/checkpoint"
	"github.com/hearthmind/hearth/internal/config"
	"github.com/hearthmind/hearth/internal/embedding"
	"github.com/hearthmind/hearth/internal/extract"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/queue"
	"github.com/hearthmind/hearth/internal/state"
	"github.com/hearthmind/hearth/internal/store"
)

// StepChat is the continuation for persona chat replies.
const StepChat = "chat.reply"

const ceremonyCheckInterval = time.Minute

// Engine orchestrates the hearth core: one store, one processor, and the
// background timers for ceremonies and auto checkpoints.
type Engine struct {
	Store       *state.Store
	Processor   *queue.Processor
	Pipeline    *extract.Pipeline
	Ceremony    *ceremony.Orchestrator
	Checkpoints *checkpoint.Manager

	autoInterval time.Duration
	cancel       context.CancelFunc
	stopCh       chan struct{}
}

// New builds an engine from its collaborators and registers every queue
// handler. The embedder may be nil; extraction then matches without a
// similarity shortlist.
func New(cfg config.Config, st *state.Store, db *store.DB, client llm.Client, embedder embedding.Embedder, n notify.Notifier) *Engine {
	if n == nil {
		n = notify.Nop{}
	}

	timeout := time.Duration(cfg.Queue.RequestTimeoutSecs) * time.Second
	proc := queue.New(st, client, n, timeout)

	pipeline := extract.New(st, embedder, cfg.Extraction.TokenBudget)
	pipeline.Register(proc)

	cer := ceremony.New(st, pipeline)
	cer.Register(proc)

	e := &Engine{
		Store:       st,
		Processor:   proc,
		Pipeline:    pipeline,
		Ceremony:    cer,
		Checkpoints: checkpoint.New(st, db, n),

		autoInterval: time.Duration(cfg.Checkpoint.AutoIntervalSecs) * time.Second,
		stopCh:       make(chan struct{}),
	}
	proc.Register(StepChat, e.handleChat)
	return e
}

// Start launches the processor and the ceremony and checkpoint timers.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go e.Processor.Run(ctx)
	go e.ceremonyLoop()
	if e.autoInterval > 0 {
		go e.checkpointLoop()
	}
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) ceremonyLoop() {
	ticker := time.NewTicker(ceremonyCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			if ceremony.ShouldRun(e.Store.Settings().Ceremony, now) {
				log.Printf("engine: ceremony starting")
				e.Ceremony.Run(now)
			}
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) checkpointLoop() {
	ticker := time.NewTicker(e.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.Checkpoints.Create(nil, ""); err != nil {
				log.Printf("engine: auto checkpoint: %v", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

type chatData struct {
	PersonaID string `json:"persona_id"`
}

// Chat records an incoming human message and queues a reply from the
// given persona at high priority.
func (e *Engine) Chat(personaID, content string) (state.Message, error) {
	p, err := e.Store.Persona(personaID)
	if err != nil {
		return state.Message{}, err
	}
	if p.IsArchived {
		return state.Message{}, state.ErrPersonaArchived
	}

	msg := e.Store.AppendMessage(state.Message{
		Role:    state.RoleHuman,
		Content: content,
	})
	e.Store.TouchPersonaActivity(p.ID, time.Now())

	data, err := json.Marshal(chatData{PersonaID: p.ID})
	if err != nil {
		return msg, fmt.Errorf("marshal chat data: %w", err)
	}

	system, user := e.chatPrompt(p)
	e.Store.Enqueue(state.Request{
		Type:     state.RequestResponse,
		Priority: state.PriorityHigh,
		System:   system,
		User:     user,
		NextStep: StepChat,
		Data:     data,
		Model:    p.Model,
	})
	return msg, nil
}

func (e *Engine) chatPrompt(p state.Persona) (string, string) {
	var sb strings.Builder
	sb.WriteString("You are " + p.Name + ".")
	if p.LongDescription != "" {
		sb.WriteString("\n\n" + p.LongDescription)
	} else if p.ShortDescription != "" {
		sb.WriteString("\n\n" + p.ShortDescription)
	}
	sb.WriteString("\nReply in character, in plain text.")

	recent := e.Store.RecentHumanMessages(20)
	var conv strings.Builder
	for _, m := range recent {
		conv.WriteString("[" + string(m.Role) + "] " + m.Content + "\n")
	}
	return sb.String(), conv.String()
}

// handleChat appends the model's reply to the conversation.
func (e *Engine) handleChat(_ context.Context, resp *llm.Response, req *state.Request) error {
	var data chatData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return fmt.Errorf("decode chat data: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return fmt.Errorf("empty reply from model")
	}

	e.Store.AppendMessage(state.Message{
		Role:    state.RoleSystem,
		Content: content,
	})
	e.Store.TouchPersonaActivity(data.PersonaID, time.Now())
	return nil
}
