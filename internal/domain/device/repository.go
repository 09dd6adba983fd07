package device

import "context"

// Repository provides point lookups of address book entries.
type Repository interface {
	// GetByUserID returns the entry for userID.
	// Returns shared.ErrUserNotFound if the user record does not exist.
	GetByUserID(ctx context.Context, userID string) (*Entry, error)
}
