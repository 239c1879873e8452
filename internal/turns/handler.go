// Package turns exposes chat sessions over HTTP. Assistant turns are streamed
// to the caller as server-sent events, one event per update.
package turns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/chatwidget-gateway/internal/chat"
	"github.com/tjfontaine/chatwidget-gateway/internal/server"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
)

const maxBodyBytes = 64 * 1024

// Sessions is the session controller behind the handler.
type Sessions interface {
	Open(ctx context.Context, id string) (*chat.Session, error)
	Get(ctx context.Context, id string) (*chat.Session, error)
	Close(ctx context.Context, id string) error
	Send(ctx context.Context, sessionID, text string) (<-chan stream.Update, error)
}

// Handler serves the sessions and turns API.
type Handler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewHandler creates a turns handler.
func NewHandler(sessions Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// Routes mounts the API under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.HandleOpen)
		r.Get("/sessions/{id}", h.HandleGet)
		r.Delete("/sessions/{id}", h.HandleClose)
		r.Post("/turns", h.HandleTurn)
	})
}

// OpenRequest opens or restores a session.
type OpenRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// TurnRequest submits a user message.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HandleOpen handles POST /api/sessions.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, err := h.sessions.Open(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "session_id", sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

// HandleGet handles GET /api/sessions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "session_id", id)

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleClose handles DELETE /api/sessions/{id}.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "session_id", id)

	if err := h.sessions.Close(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTurn handles POST /api/turns. Each update is written as an SSE event
// named after its kind; the stream ends when the turn ends.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "session_id", req.SessionID)

	updates, err := h.sessions.Send(r.Context(), req.SessionID, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	var sent int
	for u := range updates {
		if err := writeEvent(w, u); err != nil {
			// The client went away. The turn is cancelled with the request
			// context; drain until it closes the channel.
			server.AddError(r.Context(), err)
			for range updates {
			}
			break
		}
		_ = rc.Flush()
		sent++
	}
	server.AddLogField(r.Context(), "updates", strconv.Itoa(sent))
}

func writeEvent(w io.Writer, u stream.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data)
	return err
}

var errBadRequest = errors.New("invalid request body")

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrTurnInProgress):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, typ := statusFor(err)
	server.AddError(r.Context(), err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("turns request failed",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", msg))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Type: typ, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
