package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/logger"
	"github.com/chatpush/notifier/pkg/retry"
)

// TriggerSourcePostgres tags events produced by the listener.
const TriggerSourcePostgres = "postgres"

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT LISTENER
// Turns NOTIFY payloads (document paths) from the document triggers into
// MessageCreatedEvents on the event bus and address cache invalidations.
// ══════════════════════════════════════════════════════════════════════════════

// AddressInvalidator drops cached push addresses for a user.
type AddressInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// ListenerConfig configures DocumentListener.
type ListenerConfig struct {
	// Channel carries new message paths. Empty disables message events.
	Channel string

	// InvalidationChannel carries changed user paths. Empty disables
	// invalidation.
	InvalidationChannel string

	// Invalidator receives user ids from InvalidationChannel.
	Invalidator AddressInvalidator

	// ReconnectDelay is the first wait after the listen connection drops.
	ReconnectDelay time.Duration
}

// DefaultListenerConfig returns the default listener configuration.
// The channels match DefaultNotifyChannels.
func DefaultListenerConfig() ListenerConfig {
	channels := DefaultNotifyChannels()
	return ListenerConfig{
		Channel:             channels.MessageCreated,
		InvalidationChannel: channels.UserChanged,
		ReconnectDelay:      time.Second,
	}
}

// Channels returns the non-empty channels to LISTEN on.
func (c ListenerConfig) Channels() []string {
	var out []string
	if c.Channel != "" {
		out = append(out, c.Channel)
	}
	if c.InvalidationChannel != "" && c.Invalidator != nil {
		out = append(out, c.InvalidationChannel)
	}
	return out
}

// DocumentListener holds one pooled connection in LISTEN mode.
type DocumentListener struct {
	conn      *Connection
	docs      DocumentReader
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    ListenerConfig
}

// NewDocumentListener creates a listener.
func NewDocumentListener(conn *Connection, docs DocumentReader, publisher shared.EventPublisher, log *slog.Logger, config ListenerConfig) *DocumentListener {
	if log == nil {
		log = slog.Default()
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultListenerConfig().ReconnectDelay
	}
	return &DocumentListener{
		conn:      conn,
		docs:      docs,
		publisher: publisher,
		logger:    log.With(logger.Component("pg_listener")),
		config:    config,
	}
}

// Run listens until ctx is done. A dropped connection is re-established.
func (l *DocumentListener) Run(ctx context.Context) error {
	if len(l.config.Channels()) == 0 {
		return errors.New("postgres: listener has no channels")
	}

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("listen connection lost, reconnecting", logger.Err(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.config.ReconnectDelay):
		}
	}
}

func (l *DocumentListener) listen(ctx context.Context) error {
	channels := l.config.Channels()

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*pgxpool.Conn, error) {
		c, err := l.conn.Pool().Acquire(ctx)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				c.Release()
				return nil, err
			}
		}
		return c, nil
	},
		retry.WithInitialDelay(l.config.ReconnectDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			l.logger.Warn("listen failed, retrying", slog.Int("attempt", attempt), logger.Latency(delay), logger.Err(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: listen %v: %w", channels, err)
	}
	// The connection is in LISTEN state; do not return it to the pool.
	pgConn := conn.Hijack()
	defer pgConn.Close(context.Background())

	l.logger.Info("listening for document changes", slog.Any("channels", channels))

	for {
		n, err := pgConn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.HandleNotification(ctx, n)
	}
}

// HandleNotification routes one notification by channel. Payloads that are
// not usable paths are logged and dropped.
func (l *DocumentListener) HandleNotification(ctx context.Context, n *pgconn.Notification) {
	path, err := shared.ParseDocumentPath(n.Payload)
	if err != nil {
		l.logger.Warn("ignoring notification with invalid path",
			slog.String("channel", n.Channel), slog.String("payload", n.Payload), logger.Err(err))
		return
	}

	if l.config.InvalidationChannel != "" && n.Channel == l.config.InvalidationChannel {
		l.invalidate(ctx, path)
		return
	}
	l.publishMessage(ctx, path)
}

func (l *DocumentListener) invalidate(ctx context.Context, path shared.DocumentPath) {
	if l.config.Invalidator == nil || path.Collection() != shared.CollectionUsers {
		return
	}
	userID := path.ID()
	if err := l.config.Invalidator.Invalidate(ctx, userID); err != nil {
		l.logger.Warn("failed to invalidate cached address", logger.UserID(userID), logger.Err(err))
		return
	}
	l.logger.Debug("cached address invalidated", logger.UserID(userID))
}

func (l *DocumentListener) publishMessage(ctx context.Context, path shared.DocumentPath) {
	chatID, messageID, ok := path.MessageParams()
	if !ok {
		l.logger.Warn("ignoring notification for non-message document", slog.String("path", path.String()))
		return
	}
	if l.publisher == nil {
		return
	}

	doc, err := l.docs.Get(ctx, path)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, ErrDocumentNotFound) {
			level = slog.LevelWarn
		}
		l.logger.Log(ctx, level, "failed to read message document",
			logger.ChatID(chatID), logger.MessageID(messageID), logger.Err(err))
		return
	}

	event := shared.NewMessageCreatedEvent(chatID, messageID, doc.Data, TriggerSourcePostgres)
	if err := l.publisher.Publish(event); err != nil {
		l.logger.Error("failed to publish message event",
			logger.ChatID(chatID), logger.MessageID(messageID), logger.Err(err))
	}
}
