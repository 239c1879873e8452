package domain

import (
	"time"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one finalized entry of a transcript. Only assistant turns carry
// a card widget; the text may be empty when the widget stands in for it.
type ChatTurn struct {
	ID         string       `json:"id,omitempty"`
	Role       Role         `json:"role"`
	Text       string       `json:"text"`
	CardWidget *card.Widget `json:"card_widget,omitempty"`
	Tokens     int          `json:"tokens,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewUserTurn creates a user turn.
func NewUserTurn(text string) ChatTurn {
	return ChatTurn{Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(text string, widget *card.Widget) ChatTurn {
	return ChatTurn{Role: RoleAssistant, Text: text, CardWidget: widget, CreatedAt: time.Now()}
}
