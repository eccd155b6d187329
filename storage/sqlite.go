// Package storage provides SQLite persistence for history records and
// knowledge embeddings.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Vector encoding (CBOR) hidden from callers
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/knowledge"
)

// SqliteStorage implements history.Storage and knowledge.EmbeddingCache
// using SQLite.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database at %s: %w", path, err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			record_key TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			credential_id TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			flow_artifact INTEGER NOT NULL DEFAULT 0,
			is_error INTEGER NOT NULL DEFAULT 0,
			decision INTEGER NOT NULL DEFAULT 0,
			UNIQUE(record_key, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_record
		ON messages(record_key, message_index);

		CREATE TABLE IF NOT EXISTS embeddings (
			item_id TEXT NOT NULL,
			model TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			vector BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (item_id, model)
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRecord replaces the persisted record for record.Key.
func (s *SqliteStorage) SaveRecord(ctx context.Context, record *history.Record) error {
	summary, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	recordKey := record.Key.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (record_key, provider, model, credential_id, summary, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		recordKey, record.Key.Provider, record.Key.Model, record.Key.CredentialID,
		string(summary), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE record_key = ?", recordKey); err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages
		(record_key, message_index, message_id, role, content, created_at, flow_artifact, is_error, decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range record.Messages {
		_, err = stmt.ExecContext(ctx, recordKey, i, msg.ID, string(msg.Role), msg.Content,
			msg.Timestamp.UnixNano(), msg.Flags.FlowArtifact, msg.Flags.Error, msg.Flags.Decision)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadRecord loads the record for key. Returns nil, nil if it doesn't exist.
func (s *SqliteStorage) LoadRecord(ctx context.Context, key history.Key) (*history.Record, error) {
	recordKey := key.String()

	var summaryJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT summary FROM records WHERE record_key = ?", recordKey).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}

	record := history.NewRecord(key)
	if err := json.Unmarshal([]byte(summaryJSON), &record.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, created_at, flow_artifact, is_error, decision
		FROM messages WHERE record_key = ? ORDER BY message_index ASC`, recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg history.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt,
			&msg.Flags.FlowArtifact, &msg.Flags.Error, &msg.Flags.Decision); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		parsed, err := history.ParseRole(role)
		if err != nil {
			// Invalid role in database indicates data corruption or schema mismatch.
			return nil, fmt.Errorf("invalid role %q in database: %w", role, err)
		}
		msg.Role = parsed
		msg.Timestamp = time.Unix(0, createdAt).UTC()
		record.Messages = append(record.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return record, nil
}

// DeleteRecord deletes the record and its messages.
func (s *SqliteStorage) DeleteRecord(ctx context.Context, key history.Key) error {
	recordKey := key.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE record_key = ?", recordKey); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE record_key = ?", recordKey); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListKeys lists all record keys, most recently updated first.
func (s *SqliteStorage) ListKeys(ctx context.Context) ([]history.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT provider, model, credential_id FROM records ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	keys := []history.Key{} // Start with empty slice, not nil
	for rows.Next() {
		var k history.Key
		if err := rows.Scan(&k.Provider, &k.Model, &k.CredentialID); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return keys, nil
}

// EmbeddingCache implementation

// LoadEmbedding returns the cached vector when it was computed from the same
// fingerprint with the same model.
func (s *SqliteStorage) LoadEmbedding(ctx context.Context, itemID, fingerprint, model string) ([]float32, bool, error) {
	var stored string
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, vector FROM embeddings WHERE item_id = ? AND model = ?",
		itemID, model).Scan(&stored, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query embedding: %w", err)
	}
	if stored != fingerprint {
		return nil, false, nil
	}

	var vector []float32
	if err := cbor.Unmarshal(blob, &vector); err != nil {
		return nil, false, fmt.Errorf("failed to decode embedding for %s: %w", itemID, err)
	}
	return vector, true, nil
}

// StoreEmbedding caches vector for the item, replacing any older fingerprint.
func (s *SqliteStorage) StoreEmbedding(ctx context.Context, itemID, fingerprint, model string, vector []float32) error {
	blob, err := cbor.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding for %s: %w", itemID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (item_id, model, fingerprint, vector, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		itemID, model, fingerprint, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Verify SqliteStorage implements all interfaces
var _ history.Storage = (*SqliteStorage)(nil)
var _ knowledge.EmbeddingCache = (*SqliteStorage)(nil)
