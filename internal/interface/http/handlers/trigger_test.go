package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerRequest(t *testing.T) {
	tests := []struct {
		name      string
		chatID    string
		messageID string
		body      string
		wantRule  string
	}{
		{name: "valid", chatID: "c1", messageID: "m1", body: `{"text":"hi"}`},
		{name: "dotted ids", chatID: "a.b", messageID: "m.1", body: `{}`},
		{name: "slash in chat id", chatID: "a/b", messageID: "m1", body: `{}`, wantRule: "excludesall"},
		{name: "missing message id", chatID: "c1", messageID: "", body: `{}`, wantRule: "required"},
		{name: "empty body", chatID: "c1", messageID: "m1", body: ``, wantRule: "min"},
		{name: "array body", chatID: "c1", messageID: "m1", body: `[1]`, wantRule: "json_object"},
		{name: "null body", chatID: "c1", messageID: "m1", body: `null`, wantRule: "json_object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseTriggerRequest(tt.chatID, tt.messageID, strings.NewReader(tt.body))

			if tt.wantRule == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.chatID, req.ChatID)
				assert.Equal(t, tt.messageID, req.MessageID)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.wantRule, verr.Fields[0].Rule)
		})
	}
}

func TestTriggerRequest_EventCarriesCorrelationID(t *testing.T) {
	req, err := ParseTriggerRequest("c1", "m1", strings.NewReader(`{}`))
	require.NoError(t, err)

	event := req.Event("req-42")

	assert.Equal(t, "req-42", event.CorrelationID)
	assert.Equal(t, TriggerSourceHTTP, event.Source)
	assert.Equal(t, "c1", event.AggregateID())
}
