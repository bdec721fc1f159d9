// Package queue drives the LLM request queue: a single-flight executor
// that claims one request at a time, calls the external model, and
// dispatches the response to the handler named by the request's next_step.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/state"
)

// Handler consumes an LLM response together with the originating request
// (whose Data payload carries the continuation state). Returning an error
// routes the request to Fail, never silently swallowed.
type Handler func(ctx context.Context, resp *llm.Response, req *state.Request) error

// pollInterval is a safety net in case a wake signal is missed.
const pollInterval = 250 * time.Millisecond

// Processor is the single-flight executor. It has two states, idle and
// busy; while a call is in flight no other request is started.
type Processor struct {
	store    *state.Store
	client   llm.Client
	notifier notify.Notifier
	timeout  time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	cancel   context.CancelFunc // cancels the in-flight call
	aborting bool
	dropNext bool
}

// New creates a processor. timeout bounds each external call; a timeout is
// treated identically to a call failure.
func New(store *state.Store, client llm.Client, notifier notify.Notifier, timeout time.Duration) *Processor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Processor{
		store:    store,
		client:   client,
		notifier: notifier,
		timeout:  timeout,
		handlers: make(map[string]Handler),
	}
}

// Register binds a next_step identifier to its handler. The dispatch table
// is how chained async phases attach continuations.
func (p *Processor) Register(name string, h Handler) {
	p.mu.Lock()
	p.handlers[name] = h
	p.mu.Unlock()
}

// Run loops until ctx is cancelled, draining the queue whenever work
// arrives. Call it in its own goroutine.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-p.store.Kick():
		case <-ticker.C:
		}
	}
}

// drain processes claimed requests one at a time until the queue yields
// nothing (empty, paused, or ctx done).
func (p *Processor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		req := p.store.PeekHighest()
		if req == nil {
			return
		}
		p.process(ctx, req)
	}
}

// Abort cancels the in-flight external call, if any. The corresponding
// request returns to the queue unless drop is true, in which case it is
// discarded.
func (p *Processor) Abort(drop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.aborting = true
	p.dropNext = drop
	p.cancel()
}

func (p *Processor) process(ctx context.Context, req *state.Request) {
	p.notifier.Publish(notify.Event{Kind: notify.MessageProcessing, ID: req.ID})
	p.notifier.Publish(notify.Event{Kind: notify.QueueBusy, ID: req.ID})
	defer p.notifier.Publish(notify.Event{Kind: notify.QueueIdle})

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	resp, err := p.client.Complete(callCtx, llm.Call{
		System: req.System,
		User:   req.User,
		Model:  req.Model,
	})
	cancel()

	p.mu.Lock()
	p.cancel = nil
	aborted := p.aborting
	drop := p.dropNext
	p.aborting = false
	p.dropNext = false
	p.mu.Unlock()

	if aborted {
		if drop {
			if err := p.store.Complete(req.ID); err != nil {
				log.Printf("queue: drop aborted %s: %v", req.ID, err)
			}
			log.Printf("queue: aborted and dropped %s", req.ID)
			return
		}
		if err := p.store.Requeue(req.ID); err != nil {
			log.Printf("queue: requeue aborted %s: %v", req.ID, err)
		}
		log.Printf("queue: aborted %s, returned to queue", req.ID)
		return
	}

	if err != nil {
		p.fail(req, fmt.Errorf("llm call: %w", err))
		return
	}

	p.mu.Lock()
	handler, ok := p.handlers[req.NextStep]
	p.mu.Unlock()
	if !ok {
		p.fail(req, fmt.Errorf("no handler registered for %q", req.NextStep))
		return
	}

	if err := handler(ctx, resp, req); err != nil {
		p.fail(req, fmt.Errorf("handler %s: %w", req.NextStep, err))
		return
	}

	if err := p.store.Complete(req.ID); err != nil {
		log.Printf("queue: complete %s: %v", req.ID, err)
	}
}

// fail records the failure; exhausted requests land in the dead-letter
// list. One failing request never blocks the others.
func (p *Processor) fail(req *state.Request, cause error) {
	dead, err := p.store.Fail(req.ID, cause)
	if err != nil {
		log.Printf("queue: fail %s: %v", req.ID, err)
		return
	}
	if dead {
		log.Printf("queue: dead-lettered %s after %d attempts: %v", req.ID, req.Attempts+1, cause)
		return
	}
	log.Printf("queue: request %s failed, will retry: %v", req.ID, cause)
}
