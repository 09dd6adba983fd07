package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/chatpush/notifier/internal/domain/shared"
)

// TriggerSourceHTTP tags events produced by the HTTP trigger endpoint.
const TriggerSourceHTTP = "http"

var validate = validator.New()

// TriggerRequest is one HTTP trigger: the path parameters of the new message
// and its document as the request body.
type TriggerRequest struct {
	ChatID    string          `validate:"required,max=256,excludesall=/"`
	MessageID string          `validate:"required,max=256,excludesall=/"`
	Document  json.RawMessage `validate:"required,min=2"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %d field(s) failed validation", len(e.Fields))
}

// ParseTriggerRequest reads and validates a trigger request.
func ParseTriggerRequest(chatID, messageID string, body io.Reader) (*TriggerRequest, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	req := &TriggerRequest{ChatID: chatID, MessageID: messageID, Document: raw}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
			for _, fe := range verrs {
				out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
			}
			return nil, out
		}
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(req.Document, &obj); err != nil || obj == nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "Document", Rule: "json_object"}}}
	}

	return req, nil
}

// Event converts the request into the pipeline's trigger event.
// correlationID ties the event to the HTTP request; it may be empty.
func (r *TriggerRequest) Event(correlationID string) shared.MessageCreatedEvent {
	event := shared.NewMessageCreatedEvent(r.ChatID, r.MessageID, r.Document, TriggerSourceHTTP)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	return event
}
