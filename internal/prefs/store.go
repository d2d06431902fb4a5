// Package prefs provides the durable preference store for the router.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
//
// Pin state encodes safety-relevant user intent, so every write goes to disk
// synchronously; there is no batching layer.
package prefs

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/001_preferences.sql
var preferencesSchema string

// Well-known preference keys.
const (
	KeyImmutableModels    = "slots.immutable_models"
	KeyAskBeforeUnpinning = "slots.ask_before_unpinning"

	slotPinPrefix = "slots.pinned."
)

// Store is the SQLite-backed preference store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the preference database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "router.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL", // pin toggles must survive power loss
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(preferencesSchema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetString writes a preference value synchronously.
func (s *Store) SetString(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// GetString reads a preference value; ok is false when the key is unset.
func (s *Store) GetString(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// SetBool writes a boolean preference.
func (s *Store) SetBool(key string, v bool) error {
	return s.SetString(key, strconv.FormatBool(v))
}

// GetBool reads a boolean preference, returning def when unset or malformed.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	raw, ok, err := s.GetString(key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// AskBeforeUnpinning returns the persisted unpin guard toggle, or def when
// it has never been set.
func (s *Store) AskBeforeUnpinning(def bool) (bool, error) {
	return s.GetBool(KeyAskBeforeUnpinning, def)
}

// SetAskBeforeUnpinning persists the unpin guard toggle.
func (s *Store) SetAskBeforeUnpinning(v bool) error {
	return s.SetBool(KeyAskBeforeUnpinning, v)
}

// ImmutableModels returns the persisted protected-model list; ok is false
// when the preference has never been set.
func (s *Store) ImmutableModels() (ids []string, ok bool, err error) {
	raw, ok, err := s.GetString(KeyImmutableModels)
	if err != nil || !ok {
		return nil, ok, err
	}
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, true, nil
}

// SetImmutableModels persists the protected-model list.
func (s *Store) SetImmutableModels(ids []string) error {
	return s.SetString(KeyImmutableModels, strings.Join(ids, ","))
}

// SetSlotPinned persists pin state for a slot. Written synchronously on
// every toggle.
func (s *Store) SetSlotPinned(slot int, pinned bool) error {
	return s.SetBool(slotPinKey(slot), pinned)
}

// PinnedSlots returns the set of slots with a persisted pin.
func (s *Store) PinnedSlots() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT key, value FROM preferences WHERE key LIKE ?`, slotPinPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list pinned slots: %w", err)
	}
	defer rows.Close()

	pinned := make(map[int]bool)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan pinned slot: %w", err)
		}
		slot, err := strconv.Atoi(key[len(slotPinPrefix):])
		if err != nil {
			continue
		}
		if v, err := strconv.ParseBool(value); err == nil && v {
			pinned[slot] = true
		}
	}
	return pinned, rows.Err()
}

func slotPinKey(slot int) string {
	return slotPinPrefix + strconv.Itoa(slot)
}
