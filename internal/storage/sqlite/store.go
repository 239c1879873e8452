package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
)

// Store is a SQLite implementation of SessionStore
type Store struct {
	db *sql.DB
}

var _ storage.SessionStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			card_widget TEXT,
			tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *storage.Session) error {
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Turns = []domain.ChatTurn{}

	query := `INSERT INTO sessions (id, user_id, conversation_id, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.ConversationID, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	query := `SELECT id, user_id, conversation_id, created_at, updated_at
	          FROM sessions WHERE id = ?`

	var sess storage.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.UserID, &sess.ConversationID, &sess.CreatedAt, &sess.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	turns, err := s.getTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns

	return &sess, nil
}

func (s *Store) getTurns(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	query := `SELECT id, role, text, card_widget, tokens, created_at
	          FROM turns WHERE session_id = ?
	          ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.ChatTurn{}
	for rows.Next() {
		var turn domain.ChatTurn
		var role string
		var widgetJSON sql.NullString
		if err := rows.Scan(&turn.ID, &role, &turn.Text, &widgetJSON, &turn.Tokens, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = domain.Role(role)
		if widgetJSON.Valid && widgetJSON.String != "" {
			var w card.Widget
			if err := json.Unmarshal([]byte(widgetJSON.String), &w); err != nil {
				return nil, fmt.Errorf("failed to unmarshal card widget: %w", err)
			}
			turn.CardWidget = &w
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

func (s *Store) SetConversationID(ctx context.Context, id, conversationID string) error {
	query := `UPDATE sessions SET conversation_id = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, conversationID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRow(result, id)
}

func (s *Store) AddTurn(ctx context.Context, id string, turn *domain.ChatTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	var widget sql.NullString
	if turn.CardWidget != nil {
		data, err := json.Marshal(turn.CardWidget)
		if err != nil {
			return fmt.Errorf("failed to marshal card widget: %w", err)
		}
		widget = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := requireRow(result, id); err != nil {
		return err
	}

	query := `INSERT INTO turns (id, session_id, role, text, card_widget, tokens, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		turn.ID, id, string(turn.Role), turn.Text, widget, turn.Tokens, turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to add turn: %w", err)
	}

	return tx.Commit()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := requireRow(result, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
