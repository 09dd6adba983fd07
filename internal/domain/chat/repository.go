package chat

import "context"

// Repository provides read access to chat records.
type Repository interface {
	// GetByID returns the chat with the given id.
	// Returns shared.ErrChatNotFound if the record does not exist.
	GetByID(ctx context.Context, chatID string) (*Chat, error)
}
