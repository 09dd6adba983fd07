// Package notification builds chat push payloads and interprets multicast
// delivery results.
package notification

import "fmt"

// Fallback texts used when the chat or message lacks the field.
const (
	DefaultGroupTitle  = "Group Chat"
	DefaultSenderTitle = "New Message"
	AttachmentBody     = "Sent an attachment"
)

// Platform hint values sent with every chat notification.
const (
	AndroidChannelID  = "high_importance_channel"
	AndroidPriority   = "high"
	AndroidVisibility = "public"
	APNsSound         = "default"
	APNsBadge         = 1

	// ClickAction routes the tap to the chat screen in the client app.
	ClickAction = "FLUTTER_NOTIFICATION_CLICK"
)

// Context data keys.
const (
	DataKeyChatID      = "chatId"
	DataKeyClickAction = "click_action"
)

// AndroidHints carries Android-specific delivery options.
type AndroidHints struct {
	ChannelID  string
	Priority   string
	Visibility string
}

// APNsHints carries iOS-specific delivery options.
type APNsHints struct {
	Sound string
	Badge int
}

// PlatformHints groups the per-platform delivery options.
type PlatformHints struct {
	Android AndroidHints
	APNs    APNsHints
}

// Payload is the content of one multicast notification.
// It is built once per invocation and shared by every address in the batch.
type Payload struct {
	Title         string
	Body          string
	PlatformHints PlatformHints
	contextData   map[string]string
}

// ContextData returns a copy of the opaque key/value data delivered to the app.
func (p Payload) ContextData() map[string]string {
	out := make(map[string]string, len(p.contextData))
	for k, v := range p.contextData {
		out[k] = v
	}
	return out
}

// ChatContext identifies the chat a payload is built for.
type ChatContext struct {
	ChatID    string
	IsGroup   bool
	GroupName string
}

// BuildPayload constructs the notification for a message.
//
// Group chats use the group name as title and prefix the body with the
// sender; direct chats use the sender as title and the bare text as body.
func BuildPayload(chat ChatContext, text *string, senderDisplayName string) Payload {
	sender := senderDisplayName
	if sender == "" {
		sender = DefaultSenderTitle
	}

	body := AttachmentBody
	if text != nil && *text != "" {
		body = *text
	}

	var title string
	if chat.IsGroup {
		title = chat.GroupName
		if title == "" {
			title = DefaultGroupTitle
		}
		body = fmt.Sprintf("%s: %s", sender, body)
	} else {
		title = sender
	}

	return Payload{
		Title: title,
		Body:  body,
		PlatformHints: PlatformHints{
			Android: AndroidHints{
				ChannelID:  AndroidChannelID,
				Priority:   AndroidPriority,
				Visibility: AndroidVisibility,
			},
			APNs: APNsHints{
				Sound: APNsSound,
				Badge: APNsBadge,
			},
		},
		contextData: map[string]string{
			DataKeyChatID:      chat.ChatID,
			DataKeyClickAction: ClickAction,
		},
	}
}
