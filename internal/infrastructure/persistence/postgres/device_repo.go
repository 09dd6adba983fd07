package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/chatpush/notifier/internal/domain/device"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/logger"
)

// userDocument is the part of users/{id} the notifier reads.
type userDocument struct {
	FCMToken json.RawMessage `json:"fcmToken"`
}

// DeviceRepository implements device.Repository over users/{id} documents.
// It never writes: stale tokens are reported by the dispatcher, not pruned.
type DeviceRepository struct {
	docs   DocumentReader
	logger *slog.Logger
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(docs DocumentReader, log *slog.Logger) *DeviceRepository {
	if log == nil {
		log = slog.Default()
	}
	return &DeviceRepository{docs: docs, logger: log.With(logger.Component("device_repo"))}
}

// GetByUserID returns the address book entry or shared.ErrUserNotFound.
func (r *DeviceRepository) GetByUserID(ctx context.Context, userID string) (*device.Entry, error) {
	if userID == "" {
		return nil, shared.ErrUserNotFound
	}

	doc, err := r.docs.Get(ctx, shared.NewDocumentPath(shared.CollectionUsers, userID))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, shared.ErrUserNotFound
		}
		return nil, shared.WrapError("device", "Find", shared.ErrExternalService, "read user "+userID, err)
	}

	// A malformed document or token field leaves the user without a usable address.
	var user userDocument
	if err := json.Unmarshal(doc.Data, &user); err != nil {
		r.logger.Debug("user document is not an object, no push address",
			logger.UserID(userID), logger.Err(err))
		return &device.Entry{UserID: userID}, nil
	}
	if len(user.FCMToken) == 0 || string(user.FCMToken) == "null" {
		return &device.Entry{UserID: userID}, nil
	}

	var token string
	if err := json.Unmarshal(user.FCMToken, &token); err != nil {
		r.logger.Debug("fcmToken is not a string, no push address",
			logger.UserID(userID), slog.String("fcm_token", string(user.FCMToken)))
		return &device.Entry{UserID: userID}, nil
	}

	return &device.Entry{UserID: userID, PushAddress: &token}, nil
}

var _ device.Repository = (*DeviceRepository)(nil)
