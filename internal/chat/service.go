// Package chat runs chat turns for widget sessions. A Service owns every
// session's conversation id and transcript, allows one turn in flight per
// session, and turns the upstream event stream into ordered updates.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chatwidget-gateway/internal/api/chatbot"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
	"github.com/tjfontaine/chatwidget-gateway/internal/telemetry"
	"github.com/tjfontaine/chatwidget-gateway/internal/tokens"
)

const (
	DefaultTurnTimeout      = 60 * time.Second
	DefaultMaxMessageLength = 2000

	failedResponseMessage = "Failed to get response."
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrTurnInProgress  = errors.New("a turn is already in progress for this session")
	ErrSessionNotFound = errors.New("session not found")
)

// Sender sends one user message upstream and streams back its events.
type Sender interface {
	SendMessage(ctx context.Context, req *chatbot.ChatRequest, opts *chatbot.RequestOptions) (<-chan stream.Result, error)
}

// Session is the state a widget carries between turns.
type Session struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	Transcript     []domain.ChatTurn `json:"transcript"`
}

func sessionFrom(s *storage.Session) *Session {
	return &Session{
		ID:             s.ID,
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Transcript:     s.Turns,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTokenCounter sets the counter used for stored turns.
func WithTokenCounter(c tokens.Counter) Option {
	return func(s *Service) { s.counter = c }
}

// WithTracer sets the tracer for turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithTurnTimeout bounds each turn, including any retry.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

// WithMaxMessageLength limits user messages, in characters.
func WithMaxMessageLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// Service runs turns against the upstream chatbot.
type Service struct {
	sender      Sender
	store       storage.SessionStore
	counter     tokens.Counter
	logger      *slog.Logger
	tracer      trace.Tracer
	turnTimeout time.Duration
	maxLength   int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a Service.
func NewService(sender Sender, store storage.SessionStore, opts ...Option) *Service {
	s := &Service{
		sender:      sender,
		store:       store,
		counter:     tokens.NewEstimator(),
		logger:      slog.Default(),
		tracer:      telemetry.Tracer(),
		turnTimeout: DefaultTurnTimeout,
		maxLength:   DefaultMaxMessageLength,
		inFlight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the session with the given id, restoring its transcript, or
// creates it. An empty id creates a session with a fresh id.
func (s *Service) Open(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		sess, err := s.store.GetSession(ctx, id)
		if err == nil {
			return sessionFrom(sess), nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	} else {
		id = uuid.NewString()
	}

	sess := &storage.Session{ID: id, UserID: "user-" + uuid.NewString()}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session opened", slog.String("session_id", id))
	return sessionFrom(sess), nil
}

// Get returns an existing session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sessionFrom(sess), nil
}

// Close discards a session's transcript and conversation id.
func (s *Service) Close(ctx context.Context, id string) error {
	err := s.store.DeleteSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	s.logger.Info("session closed", slog.String("session_id", id))
	return nil
}

// Validate checks a user message before it is sent.
func (s *Service) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, s.maxLength)
	}
	return nil
}

// Send records the user turn and starts the assistant turn. Updates are
// delivered in order on the returned channel, which is closed when the turn
// ends; the caller must drain it or cancel ctx. A second Send for the same
// session fails with ErrTurnInProgress until the channel is closed.
func (s *Service) Send(ctx context.Context, sessionID, text string) (<-chan stream.Update, error) {
	if err := s.Validate(text); err != nil {
		return nil, err
	}

	if !s.acquire(sessionID) {
		return nil, ErrTurnInProgress
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		s.release(sessionID)
		return nil, err
	}

	userTurn := domain.NewUserTurn(text)
	userTurn.Tokens = tokens.CountTurn(s.counter, &userTurn)
	if err := s.store.AddTurn(ctx, sessionID, &userTurn); err != nil {
		s.release(sessionID)
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	out := make(chan stream.Update)
	go s.runTurn(ctx, sess, text, out)
	return out, nil
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// InFlight reports whether a turn is running for the session.
func (s *Service) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[id]
	return busy
}

// turn carries the per-turn state of runTurn.
type turn struct {
	svc     *Service
	sess    *Session
	parent  context.Context
	out     chan<- stream.Update
	logger  *slog.Logger
	retried bool
}

// deliver sends u unless the caller has gone away. The turn's own deadline
// does not stop delivery so the abort itself can be reported.
func (t *turn) deliver(u stream.Update) bool {
	select {
	case t.out <- u:
		return true
	case <-t.parent.Done():
		return false
	}
}

func (s *Service) runTurn(parent context.Context, sess *Session, text string, out chan<- stream.Update) {
	defer close(out)
	defer s.release(sess.ID)

	ctx, cancel := context.WithTimeout(parent, s.turnTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chat.session_id", sess.ID),
		attribute.String("chat.conversation_id", sess.ConversationID),
	))
	defer span.End()

	t := &turn{
		svc:    s,
		sess:   sess,
		parent: parent,
		out:    out,
		logger: s.logger.With(slog.String("session_id", sess.ID)),
	}
	t.logger.Info("turn started", slog.String("conversation_id", sess.ConversationID))

	events, err := t.send(ctx, text)
	span.SetAttributes(attribute.Bool("chat.retried", t.retried))
	if err != nil {
		if ctx.Err() != nil {
			t.abort(span)
			return
		}
		t.logger.Warn("turn failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.deliver(stream.Update{Kind: stream.UpdateError, Error: errorMessage(err)})
		return
	}

	asm := stream.NewAssembler()
	var readErr error
	for r := range events {
		if r.Err != nil {
			readErr = r.Err
			continue
		}
		for _, u := range asm.Handle(r.Event) {
			if !t.apply(ctx, u) {
				cancel()
			}
		}
	}

	if asm.Turn() == nil {
		switch {
		case ctx.Err() != nil:
			t.abort(span)
			return
		case readErr != nil:
			t.logger.Warn("turn failed", slog.String("error", readErr.Error()))
			span.RecordError(readErr)
			span.SetStatus(codes.Error, readErr.Error())
			t.deliver(stream.Update{Kind: stream.UpdateError, Error: failedResponseMessage})
			return
		}
		for _, u := range asm.Finish() {
			t.apply(ctx, u)
		}
	}

	if final := asm.Turn(); final != nil {
		attrs := []any{slog.String("conversation_id", asm.ConversationID())}
		if final.CardWidget != nil {
			attrs = append(attrs, slog.String("widget_type", string(final.CardWidget.Type)))
			span.SetAttributes(attribute.String("chat.widget_type", string(final.CardWidget.Type)))
		}
		t.logger.Info("turn finalized", attrs...)
	}
}

// send posts the message, retrying once without a conversation id when the
// upstream no longer knows the conversation.
func (t *turn) send(ctx context.Context, text string) (<-chan stream.Result, error) {
	events, err := t.svc.sender.SendMessage(ctx, t.request(text), nil)
	if err == nil || !domain.IsNotFound(err) || t.sess.ConversationID == "" {
		return events, err
	}

	t.logger.Warn("conversation not found, retrying",
		slog.String("conversation_id", t.sess.ConversationID))
	t.retried = true
	t.sess.ConversationID = ""
	if err := t.svc.store.SetConversationID(ctx, t.sess.ID, ""); err != nil {
		t.logger.Error("failed to clear conversation id", slog.String("error", err.Error()))
	}
	t.deliver(stream.Update{Kind: stream.UpdateConversation})

	events, err = t.svc.sender.SendMessage(ctx, t.request(text), nil)
	if err != nil {
		return nil, fmt.Errorf("retry without conversation failed: %w", err)
	}
	return events, nil
}

func (t *turn) request(text string) *chatbot.ChatRequest {
	return &chatbot.ChatRequest{
		Query:          text,
		ResponseMode:   chatbot.ResponseModeStreaming,
		ConversationID: t.sess.ConversationID,
		User:           t.sess.UserID,
	}
}

// apply persists what an update changes and forwards it. It reports false
// once the caller has gone away.
func (t *turn) apply(ctx context.Context, u stream.Update) bool {
	switch u.Kind {
	case stream.UpdateConversation:
		t.sess.ConversationID = u.ConversationID
		if err := t.svc.store.SetConversationID(ctx, t.sess.ID, u.ConversationID); err != nil {
			t.logger.Error("failed to store conversation id", slog.String("error", err.Error()))
		}
	case stream.UpdateTurn:
		u.Turn.Tokens = tokens.CountTurn(t.svc.counter, u.Turn)
		// The transcript outlives this request.
		if err := t.svc.store.AddTurn(context.WithoutCancel(ctx), t.sess.ID, u.Turn); err != nil {
			t.logger.Error("failed to store assistant turn", slog.String("error", err.Error()))
		}
	case stream.UpdateError:
		t.logger.Warn("upstream reported error", slog.String("error", u.Error))
	}
	return t.deliver(u)
}

func (t *turn) abort(span trace.Span) {
	t.logger.Info("turn aborted")
	span.SetStatus(codes.Error, "aborted")
	t.deliver(stream.Update{Kind: stream.UpdateAborted})
}

// errorMessage is the user-visible text for a failed request.
func errorMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("API error %d", apiErr.HTTPStatusCode())
	}
	return failedResponseMessage
}
