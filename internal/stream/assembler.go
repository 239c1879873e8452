package stream

import (
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/sanitize"
)

// State is the lifecycle position of an assistant turn.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// UpdateKind tags an Update.
type UpdateKind string

const (
	// UpdateLiveText carries the sanitized text accumulated so far.
	UpdateLiveText UpdateKind = "live_text"
	// UpdatePendingWidget carries a widget extracted from thoughts. A later
	// pending widget or the final turn supersedes it.
	UpdatePendingWidget UpdateKind = "pending_widget"
	// UpdateConversation carries a new conversation id.
	UpdateConversation UpdateKind = "conversation"
	// UpdateError carries an upstream-reported error message.
	UpdateError UpdateKind = "error"
	// UpdateTurn carries the finalized assistant turn. It clears any live
	// text and pending widget.
	UpdateTurn UpdateKind = "turn"
	// UpdateAborted reports that the turn timed out or was cancelled. No turn
	// follows and any live text should be discarded.
	UpdateAborted UpdateKind = "aborted"
)

// Update is an immutable snapshot produced while a turn streams.
type Update struct {
	Kind           UpdateKind       `json:"kind"`
	LiveText       string           `json:"live_text,omitempty"`
	Widget         *card.Widget     `json:"widget,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	Turn           *domain.ChatTurn `json:"turn,omitempty"`
}

const defaultErrorMessage = "An error occurred"

// Assembler accumulates one assistant turn from stream events. It is not
// safe for concurrent use; one turn is processed at a time.
type Assembler struct {
	state          State
	text           strings.Builder
	thoughts       ThoughtSet
	widget         *card.Widget
	conversationID string
	errMsg         string
	turn           *domain.ChatTurn
}

// NewAssembler returns an idle assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Handle applies one event and returns the snapshots it produced. Content
// arriving after the turn is finalized is ignored.
func (a *Assembler) Handle(ev Event) []Update {
	if a.state == StateIdle {
		a.state = StateStreaming
	}

	var updates []Update
	if id := ev.Conversation(); id != "" && id != a.conversationID {
		a.conversationID = id
		updates = append(updates, Update{Kind: UpdateConversation, ConversationID: id})
	}

	switch e := ev.(type) {
	case MessageEvent:
		if a.state == StateFinalized || e.Answer == "" {
			break
		}
		a.text.WriteString(e.Answer)
		updates = append(updates, Update{Kind: UpdateLiveText, LiveText: sanitize.Text(a.text.String())})

	case ThoughtEvent:
		if a.state == StateFinalized {
			break
		}
		a.thoughts.Upsert(e.Thought)
		if w := card.FromObservations(a.thoughts.Observations()); w != nil {
			a.widget = w
			updates = append(updates, Update{Kind: UpdatePendingWidget, Widget: w})
		}

	case MessageEndEvent:
		updates = append(updates, a.finalize()...)

	case ErrorEvent:
		msg := e.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		a.errMsg = msg
		updates = append(updates, Update{Kind: UpdateError, Error: msg})

	case UnknownEvent:
		// Unrecognised kinds only contribute their conversation id.
	}

	return updates
}

// Finish handles exhaustion of the stream. A turn is produced only when there
// is visible text or a widget, and never twice.
func (a *Assembler) Finish() []Update {
	if a.state == StateFinalized {
		return nil
	}
	if strings.TrimSpace(a.text.String()) == "" && a.widget == nil {
		a.state = StateFinalized
		return nil
	}
	return a.finalize()
}

func (a *Assembler) finalize() []Update {
	if a.state == StateFinalized {
		return nil
	}
	a.state = StateFinalized

	full := a.text.String()
	if a.widget == nil && full != "" {
		a.widget = card.FromContent(full)
	}

	text := ""
	if a.widget == nil {
		text = sanitize.Text(full)
	}
	turn := domain.NewAssistantTurn(text, a.widget)
	a.turn = &turn

	return []Update{{Kind: UpdateTurn, Turn: a.turn}}
}

// State returns the current lifecycle state.
func (a *Assembler) State() State { return a.state }

// Turn returns the finalized turn, or nil if none was produced.
func (a *Assembler) Turn() *domain.ChatTurn { return a.turn }

// Text returns the raw accumulated answer text.
func (a *Assembler) Text() string { return a.text.String() }

// Widget returns the widget extracted so far.
func (a *Assembler) Widget() *card.Widget { return a.widget }

// ConversationID returns the last conversation id seen on the stream.
func (a *Assembler) ConversationID() string { return a.conversationID }

// Err returns the last upstream-reported error message.
func (a *Assembler) Err() string { return a.errMsg }

// Thoughts returns the merged thought records in arrival order.
func (a *Assembler) Thoughts() []ThoughtRecord { return a.thoughts.Records() }
