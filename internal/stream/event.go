// Package stream interprets the chatbot's server-sent event stream: it
// decodes records into typed events and assembles them into a single
// assistant turn.
package stream

import (
	"encoding/json"
	"fmt"
)

// Kind is the upstream "event" discriminator.
type Kind string

const (
	KindMessage      Kind = "message"
	KindAgentMessage Kind = "agent_message"
	KindAgentThought Kind = "agent_thought"
	KindMessageEnd   Kind = "message_end"
	KindError        Kind = "error"
)

// Event is one decoded stream record. The set of implementations is closed:
// MessageEvent, ThoughtEvent, MessageEndEvent, ErrorEvent and UnknownEvent.
type Event interface {
	// Conversation returns the conversation id carried by the record, if any.
	Conversation() string
	isEvent()
}

type base struct {
	ConversationID string
}

func (b base) Conversation() string { return b.ConversationID }
func (base) isEvent()               {}

// MessageEvent carries a fragment of visible answer text.
type MessageEvent struct {
	base
	Kind   Kind
	Answer string
}

// ThoughtEvent reports a reasoning step, possibly partially.
type ThoughtEvent struct {
	base
	Thought ThoughtRecord
}

// MessageEndEvent marks the end of the answer.
type MessageEndEvent struct {
	base
}

// ErrorEvent carries an upstream-reported error message.
type ErrorEvent struct {
	base
	Message string
}

// UnknownEvent is any record whose kind is not recognised. It is kept so the
// conversation id it may carry is not lost.
type UnknownEvent struct {
	base
	Kind Kind
}

// rawEvent mirrors the wire record.
type rawEvent struct {
	Event          string   `json:"event"`
	Answer         string   `json:"answer"`
	ConversationID string   `json:"conversation_id"`
	ID             string   `json:"id"`
	Thought        string   `json:"thought"`
	Observation    flexText `json:"observation"`
	Tool           string   `json:"tool"`
	ToolInput      flexText `json:"tool_input"`
	Message        string   `json:"message"`
}

// flexText accepts a JSON string, or any other JSON value which is kept in
// its encoded form. Some tools report structured observations unquoted.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = flexText(data)
	return nil
}

// DecodeEvent decodes the JSON body of a "data: " line.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	b := base{ConversationID: raw.ConversationID}
	switch Kind(raw.Event) {
	case KindMessage, KindAgentMessage:
		return MessageEvent{base: b, Kind: Kind(raw.Event), Answer: raw.Answer}, nil
	case KindAgentThought:
		return ThoughtEvent{base: b, Thought: ThoughtRecord{
			ID:          raw.ID,
			Thought:     raw.Thought,
			Observation: string(raw.Observation),
			Tool:        raw.Tool,
			ToolInput:   string(raw.ToolInput),
		}}, nil
	case KindMessageEnd:
		return MessageEndEvent{base: b}, nil
	case KindError:
		return ErrorEvent{base: b, Message: raw.Message}, nil
	default:
		return UnknownEvent{base: b, Kind: Kind(raw.Event)}, nil
	}
}
