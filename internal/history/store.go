// Package history persists routing decisions to a local SQLite database so
// past routing behavior can be inspected and audited. It uses
// modernc.org/sqlite for pure-Go, CGO-free database access.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/normanking/cortex-router/internal/routing"
)

//go:embed migrations/001_decisions.sql
var decisionsSchema string

// Store is the SQLite-backed decision history store. Record never fails the
// routing path; persistence errors are logged and dropped.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
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
		"PRAGMA synchronous = NORMAL",
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
	_, err := s.db.Exec(decisionsSchema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists one decision. It implements the routing decision sink:
// failures are logged rather than returned so persistence problems never
// block routing.
func (s *Store) Record(d routing.ModelRoutingDecision) {
	if err := s.Insert(context.Background(), d); err != nil {
		log.Warn().Err(err).Str("decision_id", d.ID).Msg("failed to persist routing decision")
	}
}

// Insert writes one decision row.
func (s *Store) Insert(ctx context.Context, d routing.ModelRoutingDecision) error {
	factors, err := json.Marshal(d.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	fallbacks, err := json.Marshal(d.Fallbacks)
	if err != nil {
		return fmt.Errorf("marshal fallbacks: %w", err)
	}
	relevant, err := json.Marshal(d.RelevantContext)
	if err != nil {
		return fmt.Errorf("marshal relevant context: %w", err)
	}

	var evictionSlot sql.NullInt64
	if d.EvictionCandidateSlot != nil {
		evictionSlot = sql.NullInt64{Int64: int64(*d.EvictionCandidateSlot), Valid: true}
	}
	var evictionModel sql.NullString
	if d.EvictionCandidateModelID != nil {
		evictionModel = sql.NullString{String: *d.EvictionCandidateModelID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routing_decisions (
			id, model_id, model_name, confidence, reasoning,
			factors, fallbacks, requires_hot_slot,
			eviction_slot, eviction_model_id,
			estimated_memory_gb, estimated_context_tokens,
			relevant_context, orchestrator, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ModelID, d.ModelName, d.Confidence, d.Reasoning,
		string(factors), string(fallbacks), d.RequiresHotSlot,
		evictionSlot, evictionModel,
		d.EstimatedMemoryGB, d.EstimatedContextTokens,
		string(relevant), d.Orchestrator, d.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert routing decision: %w", err)
	}
	return nil
}

// Recent returns the most recent decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]routing.ModelRoutingDecision, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, model_name, confidence, reasoning,
		       factors, fallbacks, requires_hot_slot,
		       eviction_slot, eviction_model_id,
		       estimated_memory_gb, estimated_context_tokens,
		       relevant_context, orchestrator, created_at
		FROM routing_decisions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query routing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []routing.ModelRoutingDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Count returns the total number of recorded decisions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routing_decisions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count routing decisions: %w", err)
	}
	return n, nil
}

func scanDecision(rows *sql.Rows) (routing.ModelRoutingDecision, error) {
	var (
		d             routing.ModelRoutingDecision
		factors       string
		fallbacks     string
		relevant      string
		evictionSlot  sql.NullInt64
		evictionModel sql.NullString
	)

	err := rows.Scan(
		&d.ID, &d.ModelID, &d.ModelName, &d.Confidence, &d.Reasoning,
		&factors, &fallbacks, &d.RequiresHotSlot,
		&evictionSlot, &evictionModel,
		&d.EstimatedMemoryGB, &d.EstimatedContextTokens,
		&relevant, &d.Orchestrator, &d.Timestamp,
	)
	if err != nil {
		return d, fmt.Errorf("scan routing decision: %w", err)
	}

	if err := json.Unmarshal([]byte(factors), &d.Factors); err != nil {
		return d, fmt.Errorf("unmarshal factors: %w", err)
	}
	if err := json.Unmarshal([]byte(fallbacks), &d.Fallbacks); err != nil {
		return d, fmt.Errorf("unmarshal fallbacks: %w", err)
	}
	if err := json.Unmarshal([]byte(relevant), &d.RelevantContext); err != nil {
		return d, fmt.Errorf("unmarshal relevant context: %w", err)
	}

	if evictionSlot.Valid {
		slot := int(evictionSlot.Int64)
		d.EvictionCandidateSlot = &slot
	}
	if evictionModel.Valid {
		model := evictionModel.String
		d.EvictionCandidateModelID = &model
	}
	return d, nil
}
