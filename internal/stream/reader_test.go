package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, ch <-chan Result) ([]Event, error) {
	t.Helper()
	var events []Event
	var err error
	for r := range ch {
		if r.Err != nil {
			err = r.Err
			continue
		}
		events = append(events, r.Event)
	}
	return events, err
}

func TestRead(t *testing.T) {
	body := strings.Join([]string{
		`data: {"event":"message","answer":"Hello ","conversation_id":"c1"}`,
		``,
		`event: ping`,
		`data: not json`,
		`data: {"event":"message","answer":"world"}`,
		``,
		`data: {"event":"message_end"}`,
	}, "\n")

	events, err := collect(t, Read(context.Background(), io.NopCloser(strings.NewReader(body)), nil))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if m, ok := events[0].(MessageEvent); !ok || m.Answer != "Hello " || m.Conversation() != "c1" {
		t.Errorf("events[0] = %#v", events[0])
	}
	if _, ok := events[2].(MessageEndEvent); !ok {
		t.Errorf("events[2] = %#v, want MessageEndEvent", events[2])
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestRead_ClosesBody(t *testing.T) {
	body := &closeTracker{Reader: strings.NewReader("data: {\"event\":\"message_end\"}\n")}
	if _, err := collect(t, Read(context.Background(), body, nil)); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !body.closed {
		t.Error("body was not closed")
	}
}

func TestRead_SkipsOversizedRecord(t *testing.T) {
	huge := `data: {"event":"message","answer":"` + strings.Repeat("x", maxRecordSize+10) + `"}`
	body := strings.Join([]string{
		`data: {"event":"message","answer":"before"}`,
		huge,
		`data: {"event":"message","answer":"after"}`,
		`data: {"event":"message_end","conversation_id":"c1"}`,
	}, "\r\n")

	events, err := collect(t, Read(context.Background(), io.NopCloser(strings.NewReader(body)), nil))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if m, ok := events[1].(MessageEvent); !ok || m.Answer != "after" {
		t.Errorf("events[1] = %#v", events[1])
	}
	if _, ok := events[2].(MessageEndEvent); !ok {
		t.Errorf("events[2] = %#v, want message_end", events[2])
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRead_ReadError(t *testing.T) {
	_, err := collect(t, Read(context.Background(), io.NopCloser(failingReader{}), nil))
	if err == nil {
		t.Fatal("expected read error")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error = %v", err)
	}
}

func TestRead_ContextCancelStopsReader(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	ch := Read(ctx, pr, nil)
	go func() {
		_, _ = pw.Write([]byte("data: {\"event\":\"message\",\"answer\":\"a\"}\n"))
		_, _ = pw.Write([]byte("data: {\"event\":\"message\",\"answer\":\"b\"}\n"))
	}()

	first := <-ch
	if first.Err != nil {
		t.Fatalf("unexpected error %v", first.Err)
	}
	cancel()
	// Unblock the scanner so the goroutine can observe cancellation.
	_ = pw.CloseWithError(context.Canceled)

	for range ch {
	}
}
