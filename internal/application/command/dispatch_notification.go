// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chatpush/notifier/internal/domain/notification"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/circuitbreaker"
	"github.com/chatpush/notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH NOTIFICATION COMMAND
// Sends one payload to every resolved address in a single multicast request
// and reconciles the per-address results into a DeliveryReport.
// Failed addresses are reported, never pruned, and a send is never retried.
// ══════════════════════════════════════════════════════════════════════════════

// Send results reported to the recorder.
const (
	SendResultOK       = "ok"
	SendResultPartial  = "partial"
	SendResultError    = "error"
	SendResultRejected = "circuit_open"
)

// DispatchNotificationCommand contains one multicast send.
type DispatchNotificationCommand struct {
	ChatID    string
	Addresses []string
	Payload   notification.Payload

	// InvocationID ties log lines to one pipeline run.
	InvocationID string
}

// Validate validates the command.
func (c DispatchNotificationCommand) Validate() error {
	if len(c.Addresses) == 0 {
		return shared.NewDomainError("notification", "Send", shared.ErrEmptyValue, "no addresses to send to")
	}
	return nil
}

// SendRecorder receives one observation per gateway call.
type SendRecorder interface {
	ObserveSend(result string, addresses, failures int, latency time.Duration)
}

// DispatchNotificationHandler handles DispatchNotificationCommand.
type DispatchNotificationHandler struct {
	gateway  notification.Gateway
	breaker  *circuitbreaker.CircuitBreaker
	recorder SendRecorder
	logger   *slog.Logger
}

// NewDispatchNotificationHandler creates a new handler. breaker and recorder are optional.
func NewDispatchNotificationHandler(
	gateway notification.Gateway,
	breaker *circuitbreaker.CircuitBreaker,
	recorder SendRecorder,
	log *slog.Logger,
) *DispatchNotificationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchNotificationHandler{
		gateway:  gateway,
		breaker:  breaker,
		recorder: recorder,
		logger:   log.With("handler", "dispatch_notification"),
	}
}

// Handle performs exactly one multicast request.
// A transport failure or an open circuit returns an error matching
// shared.ErrGatewayUnavailable; per-address failures are part of the report.
func (h *DispatchNotificationHandler) Handle(ctx context.Context, cmd DispatchNotificationCommand) (*notification.DeliveryReport, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	log := h.logger.With(
		logger.ChatID(cmd.ChatID),
		logger.InvocationID(cmd.InvocationID),
	)

	start := time.Now()
	var resp *notification.GatewayResponse
	send := func(ctx context.Context) error {
		var err error
		resp, err = h.gateway.SendMulticast(ctx, cmd.Addresses, cmd.Payload)
		return err
	}

	var err error
	if h.breaker != nil {
		err = h.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	latency := time.Since(start)

	if err != nil {
		result := SendResultError
		if circuitbreaker.IsRejected(err) {
			result = SendResultRejected
		}
		h.observe(result, len(cmd.Addresses), len(cmd.Addresses), latency)

		log.Error("push gateway request failed",
			logger.AddressCount(len(cmd.Addresses)),
			logger.Latency(latency),
			logger.Err(err),
		)
		return nil, shared.WrapError("notification", "Send", shared.ErrExternalService,
			"push gateway request failed", err)
	}

	if resp != nil && len(resp.Responses) != len(cmd.Addresses) {
		log.Warn("gateway response count differs from submitted addresses",
			logger.AddressCount(len(cmd.Addresses)),
			slog.Int("response_count", len(resp.Responses)),
			logger.Err(shared.ErrMismatchedReport),
		)
	}

	report := notification.NewDeliveryReport(notification.PairOutcomes(cmd.Addresses, resp))

	log.Info("notification sent",
		logger.SuccessCount(report.SuccessCount),
		logger.FailureCount(report.FailureCount()),
		logger.Latency(latency),
	)

	result := SendResultOK
	if report.HasFailures() {
		result = SendResultPartial
		log.Info("failed push addresses",
			logger.FailureCount(report.FailureCount()),
			slog.Any("reasons", failureReasons(report)),
		)
	}
	h.observe(result, len(cmd.Addresses), report.FailureCount(), latency)

	return report, nil
}

func (h *DispatchNotificationHandler) observe(result string, addresses, failures int, latency time.Duration) {
	if h.recorder != nil {
		h.recorder.ObserveSend(result, addresses, failures, latency)
	}
}

// failureReasons counts failures per reason so addresses stay out of logs.
func failureReasons(report *notification.DeliveryReport) map[string]int {
	reasons := make(map[string]int)
	for _, f := range report.Failures {
		reason := f.Reason
		if reason == "" {
			reason = "unknown"
		}
		reasons[reason]++
	}
	return reasons
}

// IsGatewayError reports whether err came from the push gateway call.
func IsGatewayError(err error) bool {
	return errors.Is(err, shared.ErrGatewayUnavailable)
}
