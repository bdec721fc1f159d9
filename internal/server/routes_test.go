package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthmind/hearth/internal/config"
	"github.com/hearthmind/hearth/internal/engine"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/state"
	"github.com/hearthmind/hearth/internal/store"
)

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := notify.NewHub()
	st := state.New(hub)
	mock := &llm.MockClient{Responses: []*llm.Response{{Content: "ok"}}}
	eng := engine.New(config.Default(), st, db, mock, nil, hub)
	// The processor is deliberately not started: requests stay queued so
	// tests can observe them.
	return New(eng, hub, "test"), st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("unexpected body: %v", resp)
	}
}

func TestPersonaLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/personas", map[string]any{
		"name":    "Luna",
		"aliases": []string{"moon"},
		"groups":  []string{"night"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body)
	}
	var created state.Persona
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Role != state.RoleOrdinary {
		t.Errorf("unexpected persona: %+v", created)
	}

	w = doJSON(t, s, "GET", "/api/personas/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/personas/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing persona status %d, want 404", w.Code)
	}

	w = doJSON(t, s, "POST", "/api/personas", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("nameless persona status %d, want 400", w.Code)
	}
}

func TestPersonaUpdateAndArchive(t *testing.T) {
	s, st := newTestServer(t)
	p := st.AddPersona(state.NewPersona("Luna"))

	w := doJSON(t, s, "PUT", "/api/personas/"+p.ID, map[string]any{
		"short_description": "night owl",
		"is_paused":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", w.Code, w.Body)
	}
	got, _ := st.Persona(p.ID)
	if got.ShortDescription != "night owl" || !got.IsPaused {
		t.Errorf("update not applied: %+v", got)
	}

	if w = doJSON(t, s, "POST", "/api/personas/"+p.ID+"/archive", nil); w.Code != http.StatusOK {
		t.Fatalf("archive status %d", w.Code)
	}
	w = doJSON(t, s, "POST", "/api/personas/"+p.ID+"/chat", map[string]string{"content": "hi"})
	if w.Code != http.StatusConflict {
		t.Errorf("chat to archived persona status %d, want 409", w.Code)
	}
	if w = doJSON(t, s, "POST", "/api/personas/"+p.ID+"/unarchive", nil); w.Code != http.StatusOK {
		t.Fatalf("unarchive status %d", w.Code)
	}

	if w = doJSON(t, s, "DELETE", "/api/personas/"+p.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status %d", w.Code)
	}
	if w = doJSON(t, s, "DELETE", "/api/personas/"+p.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status %d, want 404", w.Code)
	}
}

func TestAddQuote(t *testing.T) {
	s, st := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/human/quotes", map[string]string{"text": "stay curious"})
	if w.Code != http.StatusCreated {
		t.Fatalf("quote status %d: %s", w.Code, w.Body)
	}
	if quotes := st.Human().Quotes; len(quotes) != 1 || quotes[0].Text != "stay curious" {
		t.Errorf("quote not recorded: %+v", quotes)
	}

	if w = doJSON(t, s, "POST", "/api/human/quotes", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty quote status %d, want 400", w.Code)
	}
}

func TestChat_QueuesHighPriorityReply(t *testing.T) {
	s, st := newTestServer(t)
	p := st.AddPersona(state.NewPersona("Luna"))

	w := doJSON(t, s, "POST", "/api/personas/"+p.ID+"/chat", map[string]string{"content": "hello there"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("chat status %d: %s", w.Code, w.Body)
	}

	msgs := st.Messages()
	if len(msgs) != 1 || msgs[0].Role != state.RoleHuman {
		t.Fatalf("expected the human message recorded, got %d", len(msgs))
	}

	reqs := st.PendingRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 queued request, got %d", len(reqs))
	}
	if reqs[0].Priority != state.PriorityHigh {
		t.Errorf("chat priority = %s, want high", reqs[0].Priority)
	}

	w = doJSON(t, s, "POST", "/api/personas/nope/chat", map[string]string{"content": "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("chat to missing persona status %d, want 404", w.Code)
	}
}

func TestDirectUpdateEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	p := st.AddPersona(state.NewPersona("Luna"))
	item, err := st.UpsertHumanItem(state.Item{Kind: state.KindTopic, Name: "tides"})
	if err != nil {
		t.Fatal(err)
	}
	st.AppendMessage(state.Message{Role: state.RoleHuman, Content: "the tide was wild"})

	w := doJSON(t, s, "POST", "/api/personas/"+p.ID+"/items/"+item.ID+"/update", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("direct update status %d: %s", w.Code, w.Body)
	}
	reqs := st.PendingRequests()
	if len(reqs) != 1 || reqs[0].Priority != state.PriorityLow {
		t.Fatalf("expected one low-priority update request, got %d", len(reqs))
	}

	w = doJSON(t, s, "POST", "/api/personas/"+p.ID+"/items/nope/update", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown item status %d, want 404", w.Code)
	}
	w = doJSON(t, s, "POST", "/api/personas/nope/items/"+item.ID+"/update", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown persona status %d, want 404", w.Code)
	}
}

func TestQueueEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	st.Enqueue(state.Request{Type: state.RequestJSON, NextStep: "x"})

	w := doJSON(t, s, "GET", "/api/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("queue status %d", w.Code)
	}
	var qs struct {
		Length int  `json:"length"`
		Paused bool `json:"paused"`
	}
	json.Unmarshal(w.Body.Bytes(), &qs)
	if qs.Length != 1 || qs.Paused {
		t.Errorf("queue state %+v", qs)
	}

	doJSON(t, s, "POST", "/api/queue/pause", nil)
	if !st.QueuePaused() {
		t.Error("pause endpoint did not pause the queue")
	}
	doJSON(t, s, "POST", "/api/queue/resume", nil)
	if st.QueuePaused() {
		t.Error("resume endpoint did not resume the queue")
	}
}

func TestCheckpointEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	st.UpsertHumanItem(state.Item{Kind: state.KindFact, Name: "coffee"})

	w := doJSON(t, s, "POST", "/api/checkpoints", map[string]any{})
	if w.Code != http.StatusCreated {
		t.Fatalf("auto create status %d: %s", w.Code, w.Body)
	}

	slot := 12
	w = doJSON(t, s, "POST", "/api/checkpoints", map[string]any{"slot": &slot, "name": "test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("manual create status %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "GET", "/api/checkpoints", nil)
	var list struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 2 {
		t.Errorf("expected 2 checkpoints, got %d", list.Count)
	}

	// Auto slots reject deletion; invalid and empty slots get their own codes.
	if w = doJSON(t, s, "DELETE", "/api/checkpoints/0", nil); w.Code != http.StatusForbidden {
		t.Errorf("delete auto slot status %d, want 403", w.Code)
	}
	if w = doJSON(t, s, "DELETE", "/api/checkpoints/15", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete invalid slot status %d, want 400", w.Code)
	}
	if w = doJSON(t, s, "DELETE", "/api/checkpoints/13", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete empty slot status %d, want 404", w.Code)
	}
	if w = doJSON(t, s, "DELETE", "/api/checkpoints/12", nil); w.Code != http.StatusOK {
		t.Errorf("delete manual slot status %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "POST", "/api/checkpoints/12/restore", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("restore deleted slot status %d, want 404", w.Code)
	}
	w = doJSON(t, s, "POST", "/api/checkpoints/0/restore", nil)
	if w.Code != http.StatusOK {
		t.Errorf("restore auto slot status %d: %s", w.Code, w.Body)
	}
}
