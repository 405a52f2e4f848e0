// Package store provides SQLite persistence for named corpora and run history.
// Projected points are never stored.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/projector/internal/coord"
)

// ErrNotFound is returned when a named corpus does not exist.
var ErrNotFound = errors.New("store: not found")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects all database operations
	node *snowflake.Node
}

// Corpus is a named, ordered list of sentences.
type Corpus struct {
	ID        int64
	Name      string
	Source    string // file the corpus was imported from
	Sentences int
	Created   time.Time
}

// Run is one row of run history.
type Run struct {
	ID        int64
	RunID     string
	Job       uint64
	Model     string
	Precision string
	Sentences int
	Status    string
	Message   string
	Started   time.Time
	ElapsedMs float64
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create id generator: %w", err)
	}

	s := &Store{db: db, node: node}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS corpora (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		source TEXT,
		sentence_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sentences (
		corpus_id INTEGER NOT NULL REFERENCES corpora(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (corpus_id, position)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		job INTEGER NOT NULL,
		model TEXT NOT NULL,
		precision TEXT,
		sentence_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		started_at DATETIME NOT NULL,
		elapsed_ms REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveCorpus stores sentences under name, replacing any corpus of that name.
// Thread-safe: acquires write lock.
func (s *Store) SaveCorpus(name, source string, sentences []string) (Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return Corpus{}, errors.New("store: corpus name is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Corpus{}, err
	}
	defer tx.Rollback()

	if err := deleteCorpus(tx, name); err != nil && !errors.Is(err, ErrNotFound) {
		return Corpus{}, err
	}

	c := Corpus{
		ID:        s.node.Generate().Int64(),
		Name:      name,
		Source:    source,
		Sentences: len(sentences),
		Created:   time.Now().UTC(),
	}
	if _, err := tx.Exec(
		`INSERT INTO corpora (id, name, source, sentence_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Source, c.Sentences, c.Created,
	); err != nil {
		return Corpus{}, fmt.Errorf("insert corpus: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO sentences (corpus_id, position, text) VALUES (?, ?, ?)`)
	if err != nil {
		return Corpus{}, err
	}
	defer stmt.Close()

	for i, text := range sentences {
		if _, err := stmt.Exec(c.ID, i, text); err != nil {
			return Corpus{}, fmt.Errorf("insert sentence %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Corpus{}, err
	}
	return c, nil
}

// Sentences returns a corpus's sentences in their original order.
// Thread-safe: acquires read lock.
func (s *Store) Sentences(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRow(`SELECT id FROM corpora WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corpus %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT text FROM sentences WHERE corpus_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// ListCorpora returns all corpora, newest first.
// Thread-safe: acquires read lock.
func (s *Store) ListCorpora() ([]Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, source, sentence_count, created_at
		FROM corpora
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Corpus
	for rows.Next() {
		var c Corpus
		var source sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &source, &c.Sentences, &c.Created); err != nil {
			return nil, err
		}
		c.Source = source.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCorpus removes a corpus and its sentences.
// Thread-safe: acquires write lock.
func (s *Store) DeleteCorpus(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteCorpus(tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteCorpus(tx *sql.Tx, name string) error {
	var id int64
	err := tx.QueryRow(`SELECT id FROM corpora WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("corpus %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sentences WHERE corpus_id = ?`, id); err != nil {
		return err
	}
	_, err = tx.Exec(`DELETE FROM corpora WHERE id = ?`, id)
	return err
}

// RecordRun appends a run to the history. It implements coord.Recorder.
// Thread-safe: acquires write lock.
func (s *Store) RecordRun(rec coord.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (id, run_id, job, model, precision, sentence_count, status, message, started_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.node.Generate().Int64(),
		rec.RunID,
		int64(rec.Job),
		rec.Model,
		rec.Precision,
		rec.Sentences,
		string(rec.Status),
		rec.Message,
		rec.Started.UTC(),
		float64(rec.Elapsed)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
// Thread-safe: acquires read lock.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, job, model, precision, sentence_count, status, message, started_at, elapsed_ms
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var job int64
		var precision, message sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &job, &r.Model, &precision, &r.Sentences,
			&r.Status, &message, &r.Started, &r.ElapsedMs); err != nil {
			return nil, err
		}
		r.Job = uint64(job)
		r.Precision = precision.String
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}
