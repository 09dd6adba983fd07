package postgres

import (
	"context"
	"errors"

	"github.com/chatpush/notifier/internal/domain/chat"
	"github.com/chatpush/notifier/internal/domain/shared"
)

// ChatRepository implements chat.Repository over chats/{id} documents.
type ChatRepository struct {
	docs DocumentReader
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(docs DocumentReader) *ChatRepository {
	return &ChatRepository{docs: docs}
}

// GetByID returns the chat or shared.ErrChatNotFound.
func (r *ChatRepository) GetByID(ctx context.Context, chatID string) (*chat.Chat, error) {
	if chatID == "" {
		return nil, shared.ErrChatNotFound
	}

	doc, err := r.docs.Get(ctx, shared.NewDocumentPath(shared.CollectionChats, chatID))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, shared.ErrChatNotFound
		}
		return nil, shared.WrapError("chat", "Find", shared.ErrExternalService, "read chat "+chatID, err)
	}

	return chat.DecodeChat(chatID, doc.Data)
}

var _ chat.Repository = (*ChatRepository)(nil)
