// Package checkpoint snapshots and restores the entire state store. Slots
// 0-9 form a FIFO auto-save ring; 10-14 are manual, addressable and the
// only ones a user may delete.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/state"
	"github.com/hearthmind/hearth/internal/store"
)

// Structural slot errors.
var (
	ErrSlotProtected = errors.New("CHECKPOINT_SLOT_PROTECTED")
	ErrSlotInvalid   = errors.New("CHECKPOINT_SLOT_INVALID")
	ErrSlotEmpty     = errors.New("CHECKPOINT_SLOT_EMPTY")
)

// Manager ties the in-memory store to checkpoint persistence.
type Manager struct {
	state    *state.Store
	db       *store.DB
	notifier notify.Notifier
}

// New creates a manager.
func New(st *state.Store, db *store.DB, n notify.Notifier) *Manager {
	if n == nil {
		n = notify.Nop{}
	}
	return &Manager{state: st, db: db, notifier: n}
}

// Create snapshots the whole store. With index nil the snapshot joins the
// auto ring; otherwise index must name a manual slot (10-14), which is
// overwritten. Returns the slot written. A storage failure surfaces
// through the error notification and leaves both in-memory state and prior
// checkpoints intact.
func (m *Manager) Create(index *int, name string) (int, error) {
	m.notifier.Publish(notify.Event{Kind: notify.CheckpointStart})

	// The snapshot is a synchronous deep copy under the store's mutex, so
	// it can never interleave with a mutation.
	snap := m.state.Snapshot()
	blob, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	var slot int
	if index == nil {
		slot, err = m.db.SaveAutoCheckpoint(blob)
	} else {
		slot = *index
		if slot < store.ManualSlotMin || slot > store.ManualSlotMax {
			return 0, fmt.Errorf("slot %d: %w", slot, ErrSlotInvalid)
		}
		err = m.db.SaveManualCheckpoint(slot, name, blob)
	}
	if err != nil {
		m.notifier.Publish(notify.Event{Kind: notify.Error})
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}

	m.notifier.Publish(notify.Event{Kind: notify.CheckpointCreated, ID: strconv.Itoa(slot)})
	return slot, nil
}

// Restore loads a slot wholesale into the state store, replacing
// everything atomically. Returns false if the slot is empty.
func (m *Manager) Restore(index int) (bool, error) {
	if index < 0 || index > store.ManualSlotMax {
		return false, fmt.Errorf("slot %d: %w", index, ErrSlotInvalid)
	}

	blob, _, err := m.db.LoadCheckpoint(index)
	if err != nil {
		m.notifier.Publish(notify.Event{Kind: notify.Error})
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if blob == nil {
		return false, nil
	}

	var snap state.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		// Corrupt blob: surface, but leave in-memory state untouched.
		m.notifier.Publish(notify.Event{Kind: notify.Error})
		return false, fmt.Errorf("decode checkpoint %d: %w", index, err)
	}

	m.state.RestoreSnapshot(&snap)
	m.notifier.Publish(notify.Event{Kind: notify.CheckpointRestored, ID: strconv.Itoa(index)})
	log.Printf("checkpoint: restored slot %d", index)
	return true, nil
}

// Delete removes a manual slot. Auto slots 0-9 are never user-deletable.
func (m *Manager) Delete(index int) error {
	if index >= 0 && index < store.ManualSlotMin {
		return fmt.Errorf("slot %d: %w", index, ErrSlotProtected)
	}
	if index < 0 || index > store.ManualSlotMax {
		return fmt.Errorf("slot %d: %w", index, ErrSlotInvalid)
	}

	ok, err := m.db.DeleteManualCheckpoint(index)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("slot %d: %w", index, ErrSlotEmpty)
	}
	m.notifier.Publish(notify.Event{Kind: notify.CheckpointDeleted, ID: strconv.Itoa(index)})
	return nil
}

// List returns all occupied slots, newest first.
func (m *Manager) List() ([]store.CheckpointMeta, error) {
	return m.db.ListCheckpoints()
}
