package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	payload    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS datasets (
	session_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, name)
);
`

type sessionRow struct {
	ID      string `db:"id"`
	Payload []byte `db:"payload"`
}

// Store implements repository.SessionStore on a single SQLite file.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	const q = `
		INSERT INTO sessions (id, status, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`
	_, err = s.db.ExecContext(ctx, q, session.ID, string(session.Status), session.CreatedAt.UTC(), session.UpdatedAt.UTC(), payload)
	if err != nil {
		return fmt.Errorf("SaveSession (ID: %s) failed: %w", session.ID, err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT id, payload FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession (ID: %s) failed: %w", id, err)
	}
	return decodeSession(row)
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, payload FROM sessions ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("ListSessions failed: %w", err)
	}

	out := make([]models.Session, 0, len(rows))
	for _, row := range rows {
		session, err := decodeSession(row)
		if err != nil {
			s.logger.Warn("skip undecodable session", zap.String("session_id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, *session)
	}
	return out, nil
}

// DeleteSession removes a session and its datasets in one transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteSession (ID: %s) failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("DeleteSession datasets (ID: %s) failed: %w", id, err)
	}
	return tx.Commit()
}

// SaveDataset upserts one named dataset of a session.
func (s *Store) SaveDataset(ctx context.Context, sessionID, name string, payload []byte) error {
	const q = `
		INSERT INTO datasets (session_id, name, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, q, sessionID, name, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("SaveDataset (session: %s, name: %s) failed: %w", sessionID, name, err)
	}
	return nil
}

// LoadDataset returns one named dataset of a session.
func (s *Store) LoadDataset(ctx context.Context, sessionID, name string) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM datasets WHERE session_id = ? AND name = ?`, sessionID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("LoadDataset (session: %s, name: %s) failed: %w", sessionID, name, err)
	}
	return payload, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func decodeSession(row sessionRow) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(row.Payload, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", row.ID, err)
	}
	return &session, nil
}
