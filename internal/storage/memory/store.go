package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
)

// Store is an in-memory implementation of SessionStore
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storage.Session
}

var _ storage.SessionStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		sessions: make(map[string]*storage.Session),
	}
}

func (s *Store) CreateSession(ctx context.Context, sess *storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}

	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Turns = []domain.ChatTurn{}

	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}

	return clone(sess), nil
}

func (s *Store) SetConversationID(ctx context.Context, id, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}

	sess.ConversationID = conversationID
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AddTurn(ctx context.Context, id string, turn *domain.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	sess.Turns = append(sess.Turns, *turn)
	sess.UpdatedAt = time.Now()

	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}

	delete(s.sessions, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// clone copies the session and its transcript. Widgets are shared; they are
// never mutated once attached to a turn.
func clone(sess *storage.Session) *storage.Session {
	out := *sess
	out.Turns = make([]domain.ChatTurn, len(sess.Turns))
	copy(out.Turns, sess.Turns)
	return &out
}
