package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hearthmind/hearth/internal/config"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/state"
	"github.com/hearthmind/hearth/internal/store"
)

func newTestEngine(t *testing.T, client llm.Client) (*Engine, *state.Store) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := state.New(notify.Nop{})
	return New(config.Default(), st, db, client, nil, nil), st
}

func TestChat_RejectsArchivedPersona(t *testing.T) {
	eng, st := newTestEngine(t, &llm.MockClient{})
	p := st.AddPersona(state.NewPersona("Luna"))
	st.ArchivePersona(p.ID)

	if _, err := eng.Chat(p.ID, "hello"); err != state.ErrPersonaArchived {
		t.Errorf("expected ErrPersonaArchived, got %v", err)
	}
	if _, err := eng.Chat("missing", "hello"); err != state.ErrPersonaNotFound {
		t.Errorf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestChat_EndToEndThroughProcessor(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.Response{{Content: "hello back"}}}
	eng, st := newTestEngine(t, mock)
	p := state.NewPersona("Luna")
	p.Model = "small-model"
	p = st.AddPersona(p)

	if _, err := eng.Chat(p.ID, "hi there"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Processor.Run(ctx)
	waitForDrain(t, st)

	msgs := st.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected human message and reply, got %d", len(msgs))
	}
	if msgs[1].Role != state.RoleSystem || msgs[1].Content != "hello back" {
		t.Errorf("reply not recorded: %+v", msgs[1])
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Model != "small-model" {
		t.Errorf("persona model override not passed: %q", mock.Calls[0].Model)
	}
	if st.QueueLength() != 0 {
		t.Errorf("queue not drained: %d left", st.QueueLength())
	}
}

// waitForDrain polls until the queue is empty or the deadline passes.
func waitForDrain(t *testing.T, st *state.Store) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.QueueLength() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue did not drain, %d left", st.QueueLength())
}
