package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hearthmind/hearth/internal/checkpoint"
	"github.com/hearthmind/hearth/internal/state"
)

func (s *Server) handleGetHuman(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store.Human())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var set state.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	s.engine.Store.UpdateSettings(set)
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas := s.engine.Store.Personas()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(personas),
		"personas": personas,
	})
}

func (s *Server) handleAddPersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string   `json:"name"`
		Aliases          []string `json:"aliases"`
		ShortDescription string   `json:"short_description"`
		LongDescription  string   `json:"long_description"`
		Model            string   `json:"model"`
		Groups           []string `json:"groups"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name required"))
		return
	}

	p := state.NewPersona(req.Name, req.Aliases...)
	p.ShortDescription = req.ShortDescription
	p.LongDescription = req.LongDescription
	p.Model = req.Model
	if len(req.Groups) > 0 {
		p.Groups = req.Groups
	}

	writeJSON(w, http.StatusCreated, s.engine.Store.AddPersona(p))
}

func (s *Server) handleAddQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text required"))
		return
	}
	writeJSON(w, http.StatusCreated, s.engine.Store.AddQuote(req.Text))
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Store.Persona(chi.URLParam(r, "personaID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdatePersona decodes the request body over the current persona
// state, so callers send only the fields they change. The ID and learned
// collections are not editable here.
func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personaID")
	p, err := s.engine.Store.Persona(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	traits, topics := p.Traits, p.Topics
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	p.ID = id
	p.Traits, p.Topics = traits, topics

	if err := s.engine.Store.UpdatePersona(p); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, state.ErrPersonaArchived) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store.DeletePersona(chi.URLParam(r, "personaID")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleArchivePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store.ArchivePersona(chi.URLParam(r, "personaID")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) handleUnarchivePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store.UnarchivePersona(chi.URLParam(r, "personaID")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content required"))
		return
	}

	msg, err := s.engine.Chat(chi.URLParam(r, "personaID"), req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, state.ErrPersonaNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, state.ErrPersonaArchived) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}

	// The reply arrives later over the event feed.
	writeJSON(w, http.StatusAccepted, msg)
}

// handleExtract enqueues extraction scans for a persona, one per data kind
// (or just the kind given in ?kind=).
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Store.Persona(chi.URLParam(r, "personaID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	kinds := state.Kinds
	if k := r.URL.Query().Get("kind"); k != "" {
		kind := state.DataKind(k)
		valid := false
		for _, known := range state.Kinds {
			if kind == known {
				valid = true
			}
		}
		if !valid {
			writeError(w, http.StatusBadRequest, state.ErrUnknownKind)
			return
		}
		kinds = []state.DataKind{kind}
	}

	queued := 0
	for _, kind := range kinds {
		n, err := s.engine.Pipeline.EnqueueScan(p, kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		queued += n
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

// directUpdateMessages bounds how much recent conversation a direct update
// analyzes.
const directUpdateMessages = 20

// handleDirectUpdate refreshes one known item from recent conversation,
// skipping the scan and match steps. Meant for callers that already know
// which item a session was about.
func (s *Server) handleDirectUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Store.Persona(chi.URLParam(r, "personaID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if p.IsArchived {
		writeError(w, http.StatusConflict, state.ErrPersonaArchived)
		return
	}
	item, ok := s.engine.Store.FindHumanItem(chi.URLParam(r, "itemID"))
	if !ok {
		writeError(w, http.StatusNotFound, state.ErrItemNotFound)
		return
	}

	msgs := s.engine.Store.RecentHumanMessages(directUpdateMessages)
	if len(msgs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no recent conversation to analyze"))
		return
	}

	id, err := s.engine.Pipeline.DirectUpdate(p.ID, item, nil, msgs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": id})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.engine.Store.Messages()
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n < len(msgs) {
			msgs = msgs[len(msgs)-n:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(msgs),
		"messages": msgs,
	})
}

func (s *Server) handleQueueState(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Store
	writeJSON(w, http.StatusOK, map[string]any{
		"length":  st.QueueLength(),
		"paused":  st.QueuePaused(),
		"pending": st.PendingRequests(),
	})
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Store.PauseQueue()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Store.ResumeQueue()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleQueueAbort cancels the in-flight request. With ?drop=true the
// request is discarded instead of requeued.
func (s *Server) handleQueueAbort(w http.ResponseWriter, r *http.Request) {
	drop := r.URL.Query().Get("drop") == "true"
	s.engine.Processor.Abort(drop)
	writeJSON(w, http.StatusOK, map[string]any{"status": "aborting", "drop": drop})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	dead := s.engine.Store.DeadLetters()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(dead),
		"dead":  dead,
	})
}

func (s *Server) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store.RetryDeadLetter(chi.URLParam(r, "requestID")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	metas, err := s.engine.Checkpoints.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(metas),
		"checkpoints": metas,
	})
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slot *int   `json:"slot"`
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid json"))
			return
		}
	}

	slot, err := s.engine.Checkpoints.Create(req.Slot, req.Name)
	if err != nil {
		writeError(w, checkpointStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"slot": slot})
}

func (s *Server) handleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid slot"))
		return
	}

	ok, err := s.engine.Checkpoints.Restore(slot)
	if err != nil {
		writeError(w, checkpointStatus(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, checkpoint.ErrSlotEmpty)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "slot": slot})
}

func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid slot"))
		return
	}

	if err := s.engine.Checkpoints.Delete(slot); err != nil {
		writeError(w, checkpointStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "slot": slot})
}

func checkpointStatus(err error) int {
	switch {
	case errors.Is(err, checkpoint.ErrSlotProtected):
		return http.StatusForbidden
	case errors.Is(err, checkpoint.ErrSlotInvalid):
		return http.StatusBadRequest
	case errors.Is(err, checkpoint.ErrSlotEmpty):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
