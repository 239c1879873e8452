// Package storage defines persistence for chat sessions and their transcripts.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is the persisted state of one chat widget session: the upstream
// conversation id to continue and the finalized transcript.
type Session struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	Turns          []domain.ChatTurn `json:"turns"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SessionStore persists sessions. Implementations must be safe for concurrent
// use and must return copies that callers may modify freely.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	SetConversationID(ctx context.Context, id, conversationID string) error
	AddTurn(ctx context.Context, id string, turn *domain.ChatTurn) error
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
