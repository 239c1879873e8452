// Package relay forwards browser chat requests to the upstream chatbot so the
// API key never reaches the browser.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tjfontaine/chatwidget-gateway/internal/api/chatbot"
	"github.com/tjfontaine/chatwidget-gateway/internal/server"
)

const (
	maxBodyBytes     = 1 << 20
	copyBufferSize   = 32 * 1024
	unavailableError = "Service temporarily unavailable"
)

// Forwarder posts an encoded chat request upstream.
type Forwarder interface {
	Forward(ctx context.Context, body []byte, opts *chatbot.RequestOptions) (*http.Response, error)
}

// Handler serves POST /chat.
type Handler struct {
	upstream Forwarder
	logger   *slog.Logger
}

// NewHandler creates a relay handler.
func NewHandler(upstream Forwarder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{upstream: upstream, logger: logger}
}

// Routes mounts the relay endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

// defaults are applied to fields that are absent or null. Unknown fields pass
// through untouched.
var defaults = []struct {
	path string
	raw  string
}{
	{"inputs", `{}`},
	{"response_mode", `"` + chatbot.ResponseModeStreaming + `"`},
	{"conversation_id", `""`},
	{"files", `[]`},
}

// ApplyDefaults fills the upstream request defaults into a JSON object body.
func ApplyDefaults(body []byte) ([]byte, error) {
	var err error
	for _, d := range defaults {
		if v := gjson.GetBytes(body, d.path); v.Exists() && v.Type != gjson.Null {
			continue
		}
		body, err = sjson.SetRawBytes(body, d.path, []byte(d.raw))
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// HandleChat forwards the request, retrying once as a new conversation when
// the upstream reports the conversation missing, and streams the upstream
// answer back unchanged.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	if len(body) == 0 {
		body = []byte(`{}`)
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		h.writeError(w, r, http.StatusBadRequest, "Request body must be a JSON object", nil)
		return
	}

	body, err = ApplyDefaults(body)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, unavailableError, err)
		return
	}

	conversationID := gjson.GetBytes(body, "conversation_id").String()
	server.AddLogField(ctx, "conversation_id", conversationID)
	server.AddLogField(ctx, "user", gjson.GetBytes(body, "user").String())

	opts := &chatbot.RequestOptions{UserAgent: r.UserAgent(), RequestID: server.GetRequestID(ctx)}
	resp, err := h.upstream.Forward(ctx, body, opts)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, unavailableError, err)
		return
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		h.logger.Info("conversation not found, retrying as new conversation",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("conversation_id", conversationID))
		server.AddLogField(ctx, "retried", "true")

		body, err = sjson.SetBytes(body, "conversation_id", "")
		if err != nil {
			h.writeError(w, r, http.StatusInternalServerError, unavailableError, err)
			return
		}
		resp, err = h.upstream.Forward(ctx, body, opts)
		if err != nil {
			h.writeError(w, r, http.StatusInternalServerError, unavailableError, err)
			return
		}
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	if err := copyFlushing(w, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		// Headers are gone; the client sees a truncated stream.
		server.AddError(ctx, err)
		h.logger.Warn("relay stream interrupted",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()))
	}
}

// copyFlushing copies src to w, flushing after every chunk so server-sent
// events reach the browser as they arrive.
func copyFlushing(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("chat relay error",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
