// Package chat contains the chat and message model used to decide who
// receives a push notification when a new message is written.
package chat

import (
	"encoding/json"
	"strings"

	"github.com/chatpush/notifier/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Message is the content of a newly created message document.
// It is owned by the triggering event and never modified.
type Message struct {
	ID     string
	ChatID string

	SenderID        string
	Text            *string
	IsSystemMessage bool

	// ReceiverID is set by clients for direct chats.
	ReceiverID *string

	// UserDisplayName is the sender's first name copied into the message.
	UserDisplayName *string
}

// HasText reports whether the message carries non-empty text.
func (m Message) HasText() bool {
	return m.Text != nil && *m.Text != ""
}

// HasReceiver reports whether an explicit receiver is set.
func (m Message) HasReceiver() bool {
	return m.ReceiverID != nil && *m.ReceiverID != ""
}

// SenderName returns the display name of the sender, or "" if unknown.
func (m Message) SenderName() string {
	if m.UserDisplayName == nil {
		return ""
	}
	return strings.TrimSpace(*m.UserDisplayName)
}

// messageDocument mirrors the stored JSON shape of a message.
type messageDocument struct {
	SenderID        string  `json:"senderId"`
	Text            *string `json:"text"`
	IsSystemMessage bool    `json:"isSystemMessage"`
	ReceiverID      *string `json:"receiverId"`
	User            *struct {
		FirstName *string `json:"firstName"`
	} `json:"user"`
}

// DecodeMessage parses a raw message document.
func DecodeMessage(chatID, messageID string, raw []byte) (Message, error) {
	var doc messageDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Message{}, shared.WrapError("chat", "DecodeMessage", shared.ErrInvalidFormat,
			"invalid message document", err)
	}

	msg := Message{
		ID:              messageID,
		ChatID:          chatID,
		SenderID:        doc.SenderID,
		Text:            doc.Text,
		IsSystemMessage: doc.IsSystemMessage,
		ReceiverID:      doc.ReceiverID,
	}
	if doc.User != nil {
		msg.UserDisplayName = doc.User.FirstName
	}

	return msg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

// Chat is a read-only snapshot of a chat record fetched per invocation.
type Chat struct {
	ID        string
	IsGroup   bool
	GroupName *string
	MemberIDs []string
}

// DisplayName returns the group name, or "" if none is set.
func (c *Chat) DisplayName() string {
	if c == nil || c.GroupName == nil {
		return ""
	}
	return strings.TrimSpace(*c.GroupName)
}

// chatDocument mirrors the stored JSON shape of a chat.
type chatDocument struct {
	IsGroup   bool     `json:"isGroup"`
	GroupName *string  `json:"groupName"`
	Users     []string `json:"users"`
}

// DecodeChat parses a raw chat document.
func DecodeChat(chatID string, raw []byte) (*Chat, error) {
	var doc chatDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, shared.WrapError("chat", "DecodeChat", shared.ErrInvalidFormat,
			"invalid chat document", err)
	}

	return &Chat{
		ID:        chatID,
		IsGroup:   doc.IsGroup,
		GroupName: doc.GroupName,
		MemberIDs: doc.Users,
	}, nil
}
