// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chatpush/notifier/internal/domain/chat"
	"github.com/chatpush/notifier/internal/domain/device"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVE ADDRESSES QUERY
// Maps a recipient set to the push addresses of their devices.
// One lookup per recipient, issued concurrently and joined before returning.
// ══════════════════════════════════════════════════════════════════════════════

// ResolveAddressesQuery contains the recipients to look up.
type ResolveAddressesQuery struct {
	ChatID     string
	Recipients chat.RecipientSet
}

// ResolveAddressesConfig configures the handler.
type ResolveAddressesConfig struct {
	// Concurrency caps in-flight lookups. Zero means one goroutine per recipient.
	Concurrency int
}

// ResolveAddressesHandler handles ResolveAddressesQuery.
type ResolveAddressesHandler struct {
	devices device.Repository
	logger  *slog.Logger
	config  ResolveAddressesConfig
}

// NewResolveAddressesHandler creates a new handler.
func NewResolveAddressesHandler(devices device.Repository, log *slog.Logger, config ResolveAddressesConfig) *ResolveAddressesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ResolveAddressesHandler{
		devices: devices,
		logger:  log.With("handler", "resolve_addresses"),
		config:  config,
	}
}

// Handle returns the usable push addresses of q.Recipients, in recipient order.
// Users that do not exist or have no address are skipped. Any other lookup
// error fails the whole query with shared.ErrAddressLookupFailed.
func (h *ResolveAddressesHandler) Handle(ctx context.Context, q ResolveAddressesQuery) ([]string, error) {
	if q.Recipients.IsEmpty() {
		return []string{}, nil
	}

	slots := make([]string, len(q.Recipients))

	g, gctx := errgroup.WithContext(ctx)
	if h.config.Concurrency > 0 {
		g.SetLimit(h.config.Concurrency)
	}

	for i, userID := range q.Recipients {
		g.Go(func() error {
			entry, err := h.devices.GetByUserID(gctx, userID)
			if err != nil {
				if errors.Is(err, shared.ErrUserNotFound) || shared.IsNotFound(err) {
					h.logger.Debug("recipient has no user record",
						logger.ChatID(q.ChatID),
						logger.UserID(userID),
					)
					return nil
				}
				return shared.WrapError("device", "Lookup", shared.ErrExternalService,
					"lookup user "+userID, err)
			}

			if addr, ok := entry.Address(); ok {
				slots[i] = addr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(slots))
	for _, addr := range slots {
		if addr != "" {
			addresses = append(addresses, addr)
		}
	}

	h.logger.Debug("addresses resolved",
		logger.ChatID(q.ChatID),
		logger.RecipientCount(len(q.Recipients)),
		logger.AddressCount(len(addresses)),
	)

	return addresses, nil
}
