// Package storagetest holds behaviour tests shared by every SessionStore.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.SessionStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess := &storage.Session{ID: "s1", UserID: "user-1"}
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}

		got, err := store.GetSession(ctx, "s1")
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if got.UserID != "user-1" {
			t.Errorf("UserID = %q, want user-1", got.UserID)
		}
		if got.ConversationID != "" {
			t.Errorf("ConversationID = %q, want empty", got.ConversationID)
		}
		if len(got.Turns) != 0 {
			t.Errorf("Turns = %d, want 0", len(got.Turns))
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.CreateSession(ctx, &storage.Session{ID: "dup", UserID: "u"}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if err := store.CreateSession(ctx, &storage.Session{ID: "dup", UserID: "u"}); err == nil {
			t.Error("expected error creating duplicate session")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.GetSession(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSession() error = %v, want ErrNotFound", err)
		}
		if err := store.SetConversationID(ctx, "nope", "c"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("SetConversationID() error = %v, want ErrNotFound", err)
		}
		if err := store.AddTurn(ctx, "nope", &domain.ChatTurn{Role: domain.RoleUser, Text: "x"}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("AddTurn() error = %v, want ErrNotFound", err)
		}
		if err := store.DeleteSession(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeleteSession() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("TranscriptRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.CreateSession(ctx, &storage.Session{ID: "s2", UserID: "u"}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if err := store.SetConversationID(ctx, "s2", "conv-9"); err != nil {
			t.Fatalf("SetConversationID() error = %v", err)
		}

		user := domain.NewUserTurn("What do you offer?")
		user.Tokens = 5
		widget := &card.Widget{
			Template: card.Template,
			Type:     card.TypeServiceGrid,
			Payload: jsonvalue.ObjectValue(jsonvalue.Member{
				Key: "services",
				Value: jsonvalue.ArrayValue(jsonvalue.ObjectValue(
					jsonvalue.Member{Key: "id", Value: jsonvalue.StringValue("1")},
					jsonvalue.Member{Key: "title", Value: jsonvalue.StringValue("Strategy")},
					jsonvalue.Member{Key: "description", Value: jsonvalue.StringValue("d")},
				)),
			}),
		}
		assistant := domain.NewAssistantTurn("", widget)

		for _, turn := range []*domain.ChatTurn{&user, &assistant} {
			if err := store.AddTurn(ctx, "s2", turn); err != nil {
				t.Fatalf("AddTurn() error = %v", err)
			}
			if turn.ID == "" {
				t.Error("AddTurn() did not assign an id")
			}
		}

		got, err := store.GetSession(ctx, "s2")
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if got.ConversationID != "conv-9" {
			t.Errorf("ConversationID = %q, want conv-9", got.ConversationID)
		}
		if len(got.Turns) != 2 {
			t.Fatalf("Turns = %d, want 2", len(got.Turns))
		}
		if got.Turns[0].Role != domain.RoleUser || got.Turns[0].Text != "What do you offer?" || got.Turns[0].Tokens != 5 {
			t.Errorf("Turns[0] = %+v", got.Turns[0])
		}
		if got.Turns[0].CardWidget != nil {
			t.Error("user turn carries a widget")
		}
		w := got.Turns[1].CardWidget
		if w == nil {
			t.Fatal("assistant widget was not stored")
		}
		if w.Type != card.TypeServiceGrid {
			t.Errorf("widget Type = %q", w.Type)
		}
		if services := w.Services(); len(services) != 1 || services[0].Title != "Strategy" {
			t.Errorf("Services() = %+v", services)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.CreateSession(ctx, &storage.Session{ID: "s3", UserID: "u"}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		turn := domain.NewUserTurn("hi")
		if err := store.AddTurn(ctx, "s3", &turn); err != nil {
			t.Fatalf("AddTurn() error = %v", err)
		}

		first, _ := store.GetSession(ctx, "s3")
		first.Turns[0].Text = "changed"
		first.ConversationID = "changed"

		second, _ := store.GetSession(ctx, "s3")
		if second.Turns[0].Text != "hi" || second.ConversationID != "" {
			t.Errorf("store state was mutated through a returned session: %+v", second)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.CreateSession(ctx, &storage.Session{ID: "s4", UserID: "u"}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		turn := domain.NewUserTurn("bye")
		if err := store.AddTurn(ctx, "s4", &turn); err != nil {
			t.Fatalf("AddTurn() error = %v", err)
		}
		if err := store.DeleteSession(ctx, "s4"); err != nil {
			t.Fatalf("DeleteSession() error = %v", err)
		}
		if _, err := store.GetSession(ctx, "s4"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSession() after delete error = %v", err)
		}

		// The id can be reused with an empty transcript.
		if err := store.CreateSession(ctx, &storage.Session{ID: "s4", UserID: "u"}); err != nil {
			t.Fatalf("CreateSession() reuse error = %v", err)
		}
		got, err := store.GetSession(ctx, "s4")
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if len(got.Turns) != 0 {
			t.Errorf("Turns = %d after reuse, want 0", len(got.Turns))
		}
	})
}
