package shared

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Document path value objects
// ═══════════════════════════════════════════════════════════════════════════

// Collection names used by the document store.
const (
	CollectionChats    = "chats"
	CollectionMessages = "messages"
	CollectionUsers    = "users"
)

// DocumentPath is a slash-separated store path such as
// "chats/abc" or "chats/abc/messages/m1". It always has an even number
// of segments: collection/id pairs.
type DocumentPath string

// ParseDocumentPath validates and normalizes a document path.
func ParseDocumentPath(raw string) (DocumentPath, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", NewDomainError("document", "ParsePath", ErrEmptyValue, "document path is empty")
	}

	segments := strings.Split(trimmed, "/")
	if len(segments)%2 != 0 {
		return "", NewDomainError("document", "ParsePath", ErrInvalidFormat,
			fmt.Sprintf("document path %q has an odd number of segments", raw))
	}
	for _, s := range segments {
		if s == "" {
			return "", NewDomainError("document", "ParsePath", ErrInvalidFormat,
				fmt.Sprintf("document path %q has an empty segment", raw))
		}
	}

	return DocumentPath(trimmed), nil
}

// NewDocumentPath joins collection/id pairs into a path.
func NewDocumentPath(collection, id string, rest ...string) DocumentPath {
	parts := append([]string{collection, id}, rest...)
	return DocumentPath(strings.Join(parts, "/"))
}

// MessagePath returns the path of a message inside a chat.
func MessagePath(chatID, messageID string) DocumentPath {
	return NewDocumentPath(CollectionChats, chatID, CollectionMessages, messageID)
}

// Segments returns the path split on slashes.
func (p DocumentPath) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Collection returns the collection path the document belongs to,
// e.g. "chats/abc/messages" for "chats/abc/messages/m1".
func (p DocumentPath) Collection() string {
	segs := p.Segments()
	if len(segs) < 2 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/")
}

// ID returns the last path segment.
func (p DocumentPath) ID() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// MessageParams extracts chatId and messageId from a
// chats/{chatId}/messages/{messageId} path.
func (p DocumentPath) MessageParams() (chatID, messageID string, ok bool) {
	segs := p.Segments()
	if len(segs) != 4 || segs[0] != CollectionChats || segs[2] != CollectionMessages {
		return "", "", false
	}
	return segs[1], segs[3], true
}

// String returns the string representation.
func (p DocumentPath) String() string {
	return string(p)
}
