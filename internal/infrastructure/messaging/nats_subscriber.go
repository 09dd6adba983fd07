package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/logger"
	"github.com/chatpush/notifier/pkg/retry"
)

// TriggerSourceNATS tags events produced by the NATS subscriber.
const TriggerSourceNATS = "nats"

// ══════════════════════════════════════════════════════════════════════════════
// NATS SUBSCRIBER
// Subjects mirror document paths: chats.{chatId}.messages.{messageId}.
// The message body is the new message document.
// ══════════════════════════════════════════════════════════════════════════════

// NATSConfig configures NATSSubscriber.
type NATSConfig struct {
	URL     string
	Subject string

	// Queue is the queue group; instances sharing it split the stream.
	Queue string

	// Name identifies the connection on the server.
	Name string

	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default subscriber configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Subject:       "chats.*.messages.*",
		Queue:         "chat-notifier",
		Name:          "chat-notifier",
		ReconnectWait: 2 * time.Second,
	}
}

// NATSSubscriber republishes message-created subjects on the event bus.
type NATSSubscriber struct {
	config    NATSConfig
	publisher shared.EventPublisher
	logger    *slog.Logger
	nc        *natspkg.Conn
}

// NewNATSSubscriber creates a subscriber. Call Connect before Run.
func NewNATSSubscriber(config NATSConfig, publisher shared.EventPublisher, log *slog.Logger) *NATSSubscriber {
	if log == nil {
		log = slog.Default()
	}
	return &NATSSubscriber{
		config:    config,
		publisher: publisher,
		logger:    log.With(logger.Component("nats_subscriber"), slog.String("subject", config.Subject)),
	}
}

// Connect dials the server, retrying with backoff. Once connected the
// client reconnects on its own.
func (s *NATSSubscriber) Connect(ctx context.Context) error {
	nc, err := retry.DoWithData(ctx, func(context.Context) (*natspkg.Conn, error) {
		return natspkg.Connect(s.config.URL,
			natspkg.Name(s.config.Name),
			natspkg.MaxReconnects(-1),
			natspkg.ReconnectWait(s.config.ReconnectWait),
			natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
				s.logger.Warn("nats disconnected", logger.Err(err))
			}),
			natspkg.ReconnectHandler(func(c *natspkg.Conn) {
				s.logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
			}),
		)
	},
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("nats connect failed, retrying", slog.Int("attempt", attempt), logger.Latency(delay), logger.Err(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("nats: connect %s: %w", s.config.URL, err)
	}
	s.nc = nc
	return nil
}

// IsConnected reports the connection status.
func (s *NATSSubscriber) IsConnected() bool {
	return s.nc != nil && s.nc.Status() == natspkg.CONNECTED
}

// Run subscribes and blocks until ctx is done, then drains the connection.
func (s *NATSSubscriber) Run(ctx context.Context) error {
	if s.nc == nil {
		return fmt.Errorf("nats: not connected")
	}

	sub, err := s.nc.QueueSubscribe(s.config.Subject, s.config.Queue, s.HandleMsg)
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", s.config.Subject, err)
	}
	s.logger.Info("subscribed to message subjects", slog.String("queue", s.config.Queue))

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		s.logger.Warn("subscription drain failed", logger.Err(err))
	}
	return s.nc.Drain()
}

// Close closes the connection without draining.
func (s *NATSSubscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// HandleMsg publishes the event for one NATS message.
// Messages on unexpected subjects or without a body are dropped.
func (s *NATSSubscriber) HandleMsg(msg *natspkg.Msg) {
	chatID, messageID, ok := ParseMessageSubject(msg.Subject)
	if !ok {
		s.logger.Warn("ignoring message on unexpected subject", slog.String("msg_subject", msg.Subject))
		return
	}
	if len(msg.Data) == 0 {
		s.logger.Warn("ignoring message without document", logger.ChatID(chatID), logger.MessageID(messageID))
		return
	}

	event := shared.NewMessageCreatedEvent(chatID, messageID, append([]byte(nil), msg.Data...), TriggerSourceNATS)
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error("failed to publish message event",
			logger.ChatID(chatID), logger.MessageID(messageID), logger.Err(err))
	}
}

// ParseMessageSubject extracts chatId and messageId from
// chats.{chatId}.messages.{messageId}.
func ParseMessageSubject(subject string) (chatID, messageID string, ok bool) {
	path, err := shared.ParseDocumentPath(strings.ReplaceAll(subject, ".", "/"))
	if err != nil {
		return "", "", false
	}
	return path.MessageParams()
}

// MessageSubject returns the subject for a message.
func MessageSubject(chatID, messageID string) string {
	return strings.Join([]string{shared.CollectionChats, chatID, shared.CollectionMessages, messageID}, ".")
}
