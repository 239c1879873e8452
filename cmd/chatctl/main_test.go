package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/chatwidget-gateway/internal/api/chatbot"
	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/chat"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage/memory"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
	"github.com/tjfontaine/chatwidget-gateway/internal/turns"
)

func newRelay(t *testing.T) string {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"event\":\"message\",\"answer\":\"Hi \",\"conversation_id\":\"c1\"}\n\n")
		_, _ = io.WriteString(w, "data: {\"event\":\"message\",\"answer\":\"there\",\"conversation_id\":\"c1\"}\n\n")
		_, _ = io.WriteString(w, "data: {\"event\":\"message_end\",\"conversation_id\":\"c1\"}\n\n")
	}))
	t.Cleanup(upstream.Close)

	logger := slog.New(slog.DiscardHandler)
	client := chatbot.NewClient("k", chatbot.WithBaseURL(upstream.URL), chatbot.WithLogger(logger))
	svc := chat.NewService(client, memory.New(), chat.WithLogger(logger))

	r := chi.NewRouter()
	turns.NewHandler(svc, logger).Routes(r)
	api := httptest.NewServer(r)
	t.Cleanup(api.Close)
	return api.URL
}

func TestRunChat(t *testing.T) {
	c := newAPIClient(newRelay(t), nil)
	var out bytes.Buffer

	err := runChat(context.Background(), c, "term-1", strings.NewReader("Hello\n\n/quit\n"), &out)
	if err != nil {
		t.Fatalf("runChat() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "session term-1") {
		t.Errorf("output missing session id:\n%s", got)
	}
	if !strings.Contains(got, "Hi there") {
		t.Errorf("output missing answer:\n%s", got)
	}

	sess, err := c.get(context.Background(), "term-1")
	if err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if len(sess.Transcript) != 2 || sess.ConversationID != "c1" {
		t.Errorf("session = %+v", sess)
	}
}

func TestRootCmd_HistoryAndClose(t *testing.T) {
	server := newRelay(t)
	c := newAPIClient(server, nil)
	if err := runChat(context.Background(), c, "term-2", strings.NewReader("Hello\n"), io.Discard); err != nil {
		t.Fatalf("runChat() error = %v", err)
	}

	run := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--server", server}, args...))
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	got, err := run("history", "term-2")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if got != "> Hello\nHi there\n" {
		t.Errorf("history = %q", got)
	}

	if _, err := run("close", "term-2"); err != nil {
		t.Fatalf("close error = %v", err)
	}
	_, err = run("history", "term-2")
	if err == nil || !strings.Contains(err.Error(), "not_found") {
		t.Errorf("history after close error = %v", err)
	}
}

func TestRenderer(t *testing.T) {
	var out bytes.Buffer
	r := &renderer{w: &out}

	r.update(stream.Update{Kind: stream.UpdateLiveText, LiveText: "Our "})
	r.update(stream.Update{Kind: stream.UpdateLiveText, LiveText: "Our services"})
	r.update(stream.Update{Kind: stream.UpdateLiveText, LiveText: "Our"})

	payload, err := jsonvalue.ParseString(`{"services":[{"id":"1","title":"Audit","description":"Full audit"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	widget := &card.Widget{Template: card.Template, Type: card.TypeServiceGrid, Payload: payload}
	turn := domain.NewAssistantTurn("", widget)
	r.update(stream.Update{Kind: stream.UpdateTurn, Turn: &turn})

	want := "Our services\n  * Audit: Full audit\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if r.shown != "" {
		t.Errorf("shown = %q after turn", r.shown)
	}
}
