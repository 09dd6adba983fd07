package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestBuildPayload_TitleAndBody(t *testing.T) {
	tests := []struct {
		name      string
		chat      ChatContext
		text      *string
		sender    string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "named group",
			chat:      ChatContext{ChatID: "c1", IsGroup: true, GroupName: "Team"},
			text:      strPtr("Hi"),
			sender:    "Alice",
			wantTitle: "Team",
			wantBody:  "Alice: Hi",
		},
		{
			name:      "unnamed group",
			chat:      ChatContext{ChatID: "c1", IsGroup: true},
			text:      strPtr("Hi"),
			sender:    "Alice",
			wantTitle: DefaultGroupTitle,
			wantBody:  "Alice: Hi",
		},
		{
			name:      "group attachment without sender name",
			chat:      ChatContext{ChatID: "c1", IsGroup: true, GroupName: "Team"},
			text:      nil,
			sender:    "",
			wantTitle: "Team",
			wantBody:  "New Message: Sent an attachment",
		},
		{
			name:      "direct text",
			chat:      ChatContext{ChatID: "c1"},
			text:      strPtr("Hi"),
			sender:    "Alice",
			wantTitle: "Alice",
			wantBody:  "Hi",
		},
		{
			name:      "direct attachment",
			chat:      ChatContext{ChatID: "c1"},
			text:      nil,
			sender:    "Alice",
			wantTitle: "Alice",
			wantBody:  AttachmentBody,
		},
		{
			name:      "direct empty text and unknown sender",
			chat:      ChatContext{ChatID: "c1"},
			text:      strPtr(""),
			sender:    "",
			wantTitle: DefaultSenderTitle,
			wantBody:  AttachmentBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPayload(tt.chat, tt.text, tt.sender)
			assert.Equal(t, tt.wantTitle, p.Title)
			assert.Equal(t, tt.wantBody, p.Body)
		})
	}
}

func TestBuildPayload_HintsAndContextData(t *testing.T) {
	p := BuildPayload(ChatContext{ChatID: "chat-42"}, strPtr("Hi"), "Alice")

	assert.Equal(t, "high_importance_channel", p.PlatformHints.Android.ChannelID)
	assert.Equal(t, "high", p.PlatformHints.Android.Priority)
	assert.Equal(t, "public", p.PlatformHints.Android.Visibility)
	assert.Equal(t, "default", p.PlatformHints.APNs.Sound)
	assert.Equal(t, 1, p.PlatformHints.APNs.Badge)

	assert.Equal(t, map[string]string{
		"chatId":       "chat-42",
		"click_action": "FLUTTER_NOTIFICATION_CLICK",
	}, p.ContextData())
}

func TestPayload_ContextDataIsACopy(t *testing.T) {
	p := BuildPayload(ChatContext{ChatID: "c1"}, nil, "")

	data := p.ContextData()
	data["chatId"] = "tampered"

	assert.Equal(t, "c1", p.ContextData()["chatId"])
}
