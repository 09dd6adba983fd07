// Package eventhandler contains handlers for domain events.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatpush/notifier/internal/application/command"
	"github.com/chatpush/notifier/internal/application/query"
	"github.com/chatpush/notifier/internal/domain/chat"
	"github.com/chatpush/notifier/internal/domain/notification"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MESSAGE CREATED HANDLER
// Runs the notification pipeline for one new message document:
//
//	Triggered -> RecipientsResolved -> AddressesResolved -> PayloadBuilt -> Dispatched
//
// Every stage may end the invocation early. The handler never reports an
// error back to the trigger source and never retries.
// ═══════════════════════════════════════════════════════════════════════════

// Stage is the last pipeline stage an invocation reached.
type Stage string

const (
	StageTriggered          Stage = "triggered"
	StageRecipientsResolved Stage = "recipients_resolved"
	StageAddressesResolved  Stage = "addresses_resolved"
	StagePayloadBuilt       Stage = "payload_built"
	StageDispatched         Stage = "dispatched"
)

// Result is how an invocation ended.
type Result string

const (
	ResultDone           Result = "done"
	ResultSystemMessage  Result = "system_message"
	ResultInvalidTrigger Result = "invalid_trigger"
	ResultChatNotFound   Result = "chat_not_found"
	ResultNoRecipients   Result = "no_recipients"
	ResultNoAddresses    Result = "no_addresses"
	ResultLookupFailed   Result = "lookup_failed"
	ResultGatewayError   Result = "gateway_error"
	ResultPanic          Result = "panic"
)

// Failed reports whether r is an error exit rather than a no-op or success.
func (r Result) Failed() bool {
	switch r {
	case ResultInvalidTrigger, ResultChatNotFound, ResultLookupFailed, ResultGatewayError, ResultPanic:
		return true
	}
	return false
}

// Outcome summarizes one invocation.
type Outcome struct {
	InvocationID string
	ChatID       string
	MessageID    string
	Source       string

	Stage  Stage
	Result Result

	// Report is set once the gateway answered.
	Report *notification.DeliveryReport
	Err    error

	Duration time.Duration
}

// InvocationRecorder receives one observation per invocation.
type InvocationRecorder interface {
	ObserveInvocation(source, stage, result string, latency time.Duration)
}

// OnMessageCreatedHandler processes MessageCreatedEvent.
type OnMessageCreatedHandler struct {
	chats      chat.Repository
	addresses  *query.ResolveAddressesHandler
	dispatcher *command.DispatchNotificationHandler
	recorder   InvocationRecorder
	logger     *slog.Logger

	newID func() string
}

// NewOnMessageCreatedHandler creates the pipeline handler. recorder is optional.
func NewOnMessageCreatedHandler(
	chats chat.Repository,
	addresses *query.ResolveAddressesHandler,
	dispatcher *command.DispatchNotificationHandler,
	recorder InvocationRecorder,
	log *slog.Logger,
) *OnMessageCreatedHandler {
	if log == nil {
		log = slog.Default()
	}

	return &OnMessageCreatedHandler{
		chats:      chats,
		addresses:  addresses,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     log.With("handler", "on_message_created"),
		newID:      func() string { return uuid.NewString() },
	}
}

// Handle implements shared.EventHandler. It always returns nil.
func (h *OnMessageCreatedHandler) Handle(event shared.Event) error {
	var msgEvent shared.MessageCreatedEvent
	switch e := event.(type) {
	case shared.MessageCreatedEvent:
		msgEvent = e
	case *shared.MessageCreatedEvent:
		if e == nil {
			return nil
		}
		msgEvent = *e
	default:
		h.logger.Warn("received non-MessageCreatedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.Process(context.Background(), msgEvent)
	return nil
}

// Process runs the pipeline for one event and returns how it ended.
// Cancellation of ctx does not abort a started invocation; only the store
// and gateway client timeouts bound it.
func (h *OnMessageCreatedHandler) Process(ctx context.Context, event shared.MessageCreatedEvent) (out Outcome) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	out = Outcome{
		InvocationID: h.newID(),
		ChatID:       event.ChatID,
		MessageID:    event.MessageID,
		Source:       event.Source,
		Stage:        StageTriggered,
	}

	log := h.logger.With(
		logger.InvocationID(out.InvocationID),
		logger.ChatID(event.ChatID),
		logger.MessageID(event.MessageID),
		logger.Source(event.Source),
	)
	if event.CorrelationID != "" {
		log = log.With(logger.CorrelationID(event.CorrelationID))
	}
	ctx = logger.WithContext(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			out.Result = ResultPanic
			out.Err = fmt.Errorf("panic in notification pipeline: %v", r)
			log.Error("notification pipeline panicked", logger.Stage(string(out.Stage)), logger.Err(out.Err))
		}
		out.Duration = time.Since(start)
		if h.recorder != nil {
			h.recorder.ObserveInvocation(out.Source, string(out.Stage), string(out.Result), out.Duration)
		}
	}()

	h.run(ctx, log, event, &out)
	return out
}

func (h *OnMessageCreatedHandler) run(ctx context.Context, log *slog.Logger, event shared.MessageCreatedEvent, out *Outcome) {
	// 1. Decode the trigger
	if err := event.Validate(); err != nil {
		h.fail(log, out, ResultInvalidTrigger, err, "invalid message trigger")
		return
	}

	msg, err := chat.DecodeMessage(event.ChatID, event.MessageID, event.Document)
	if err != nil {
		h.fail(log, out, ResultInvalidTrigger, err, "invalid message trigger")
		return
	}

	if msg.IsSystemMessage {
		log.Debug("system message, no notification")
		out.Result = ResultSystemMessage
		return
	}

	// 2. Recipients
	c, err := h.chats.GetByID(ctx, event.ChatID)
	if err != nil {
		if errors.Is(err, shared.ErrChatNotFound) {
			out.Result = ResultChatNotFound
			out.Err = err
			log.Warn("chat not found")
			return
		}
		h.fail(log, out, ResultLookupFailed, err, "chat lookup failed")
		return
	}

	recipients := chat.ResolveRecipients(c, msg)
	out.Stage = StageRecipientsResolved
	if recipients.IsEmpty() {
		log.Info("no recipients")
		out.Result = ResultNoRecipients
		return
	}

	// 3. Addresses
	addresses, err := h.addresses.Handle(ctx, query.ResolveAddressesQuery{
		ChatID:     event.ChatID,
		Recipients: recipients,
	})
	if err != nil {
		h.fail(log, out, ResultLookupFailed, err, "push address lookup failed")
		return
	}

	out.Stage = StageAddressesResolved
	if len(addresses) == 0 {
		log.Info("no push addresses", logger.RecipientCount(len(recipients)))
		out.Result = ResultNoAddresses
		return
	}

	// 4. Payload
	payload := notification.BuildPayload(notification.ChatContext{
		ChatID:    c.ID,
		IsGroup:   c.IsGroup,
		GroupName: c.DisplayName(),
	}, msg.Text, msg.SenderName())
	out.Stage = StagePayloadBuilt

	// 5. Dispatch
	report, err := h.dispatcher.Handle(ctx, command.DispatchNotificationCommand{
		ChatID:       event.ChatID,
		Addresses:    addresses,
		Payload:      payload,
		InvocationID: out.InvocationID,
	})
	if err != nil {
		// Already logged by the dispatcher.
		out.Result = ResultGatewayError
		out.Err = err
		return
	}

	out.Stage = StageDispatched
	out.Result = ResultDone
	out.Report = report

	log.Debug("notification pipeline finished",
		logger.RecipientCount(len(recipients)),
		logger.AddressCount(len(addresses)),
	)
}

func (h *OnMessageCreatedHandler) fail(log *slog.Logger, out *Outcome, result Result, err error, msg string) {
	out.Result = result
	out.Err = err
	log.Error(msg, logger.Stage(string(out.Stage)), logger.Err(err))
}
