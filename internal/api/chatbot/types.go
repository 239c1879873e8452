package chatbot

import (
	"encoding/json"
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
)

// ResponseModeStreaming asks the upstream to answer with server-sent events.
const ResponseModeStreaming = "streaming"

// File is an attachment reference forwarded with a message.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// ChatRequest is the body of a chat-messages call.
type ChatRequest struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	Files          []File         `json:"files"`
	User           string         `json:"user"`
}

// withDefaults returns a copy with empty collections and the streaming mode
// filled in, so the encoded body never carries nulls.
func (r ChatRequest) withDefaults() ChatRequest {
	if r.Inputs == nil {
		r.Inputs = map[string]any{}
	}
	if r.ResponseMode == "" {
		r.ResponseMode = ResponseModeStreaming
	}
	if r.Files == nil {
		r.Files = []File{}
	}
	return r
}

// ErrorResponse is the upstream error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ToCanonical converts the upstream error to a canonical domain error. The
// HTTP status decides the category; a missing conversation is a 404.
func (e *ErrorResponse) ToCanonical(status int) *domain.APIError {
	if e.Status != 0 {
		status = e.Status
	}
	msg := e.Message
	if msg == "" {
		msg = strings.ReplaceAll(e.Code, "_", " ")
	}
	return domain.NewAPIError(domain.ErrorTypeForStatus(status), msg).
		WithCode(e.Code).
		WithStatusCode(status)
}

// ParseErrorResponse attempts to parse an error response from JSON.
func ParseErrorResponse(data []byte) (*ErrorResponse, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Code == "" && errResp.Message == "" {
		return nil, nil
	}
	return &errResp, nil
}
