package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Slot layout: 0-9 are the auto-save ring, 10-14 are manual slots.
const (
	AutoSlots     = 10
	ManualSlotMin = 10
	ManualSlotMax = 14
)

// CheckpointMeta describes one occupied checkpoint slot.
type CheckpointMeta struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"created_at"` // unix millis
}

// ListCheckpoints returns all occupied slots, newest first.
func (db *DB) ListCheckpoints() ([]CheckpointMeta, error) {
	rows, err := db.Query(`
		SELECT slot, name, created_at FROM checkpoints
		ORDER BY created_at DESC, slot DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var metas []CheckpointMeta
	for rows.Next() {
		var m CheckpointMeta
		var name sql.NullString
		if err := rows.Scan(&m.Slot, &name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		m.Name = name.String
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// LoadCheckpoint returns the state blob and metadata for a slot, or nil if
// the slot is empty.
func (db *DB) LoadCheckpoint(slot int) ([]byte, *CheckpointMeta, error) {
	var blob []byte
	var m CheckpointMeta
	var name sql.NullString
	err := db.QueryRow(`
		SELECT slot, name, created_at, state FROM checkpoints WHERE slot = ?
	`, slot).Scan(&m.Slot, &name, &m.CreatedAt, &blob)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load checkpoint %d: %w", slot, err)
	}
	m.Name = name.String
	return blob, &m, nil
}

// SaveAutoCheckpoint appends a snapshot to the auto ring. Once the ring is
// full the oldest (slot 0) is evicted and the others shift down, so the
// newest always sits at the highest occupied auto index. Runs in one
// transaction; a failure leaves prior checkpoints intact.
func (db *DB) SaveAutoCheckpoint(state []byte) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin auto checkpoint: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM checkpoints WHERE slot < ?", AutoSlots,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count auto checkpoints: %w", err)
	}

	slot := count
	if count >= AutoSlots {
		// Evict the oldest and shift the rest down one.
		if _, err := tx.Exec("DELETE FROM checkpoints WHERE slot = 0"); err != nil {
			return 0, fmt.Errorf("evict auto slot 0: %w", err)
		}
		for i := 1; i < AutoSlots; i++ {
			if _, err := tx.Exec("UPDATE checkpoints SET slot = ? WHERE slot = ?", i-1, i); err != nil {
				return 0, fmt.Errorf("shift auto slot %d: %w", i, err)
			}
		}
		slot = AutoSlots - 1
	}

	if _, err := tx.Exec(`
		INSERT INTO checkpoints (slot, name, created_at, state) VALUES (?, NULL, ?, ?)
	`, slot, time.Now().UnixMilli(), state); err != nil {
		return 0, fmt.Errorf("insert auto checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit auto checkpoint: %w", err)
	}
	return slot, nil
}

// SaveManualCheckpoint overwrites a manual slot directly.
func (db *DB) SaveManualCheckpoint(slot int, name string, state []byte) error {
	if slot < ManualSlotMin || slot > ManualSlotMax {
		return fmt.Errorf("manual slot %d out of range %d-%d", slot, ManualSlotMin, ManualSlotMax)
	}
	_, err := db.Exec(`
		INSERT INTO checkpoints (slot, name, created_at, state) VALUES (?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(slot) DO UPDATE SET name = NULLIF(?, ''), created_at = ?, state = ?
	`, slot, name, time.Now().UnixMilli(), state,
		name, time.Now().UnixMilli(), state)
	if err != nil {
		return fmt.Errorf("save manual checkpoint %d: %w", slot, err)
	}
	return nil
}

// DeleteManualCheckpoint removes a manual slot. Returns false if the slot
// was empty. Range checking is the caller's job; this only refuses
// non-manual slots.
func (db *DB) DeleteManualCheckpoint(slot int) (bool, error) {
	if slot < ManualSlotMin || slot > ManualSlotMax {
		return false, fmt.Errorf("manual slot %d out of range %d-%d", slot, ManualSlotMin, ManualSlotMax)
	}
	result, err := db.Exec("DELETE FROM checkpoints WHERE slot = ?", slot)
	if err != nil {
		return false, fmt.Errorf("delete checkpoint %d: %w", slot, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}
