package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpush/notifier/internal/domain/notification"
	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/pkg/circuitbreaker"
	"github.com/chatpush/notifier/pkg/logger"
)

type fakeGateway struct {
	calls [][]string
	resp  *notification.GatewayResponse
	err   error
}

func (g *fakeGateway) SendMulticast(_ context.Context, addresses []string, _ notification.Payload) (*notification.GatewayResponse, error) {
	g.calls = append(g.calls, append([]string(nil), addresses...))
	return g.resp, g.err
}

type sendObservation struct {
	result              string
	addresses, failures int
}

type fakeRecorder struct{ sends []sendObservation }

func (r *fakeRecorder) ObserveSend(result string, addresses, failures int, _ time.Duration) {
	r.sends = append(r.sends, sendObservation{result, addresses, failures})
}

func payload() notification.Payload {
	text := "Hi"
	return notification.BuildPayload(notification.ChatContext{ChatID: "c1"}, &text, "Alice")
}

func TestDispatch_PartialFailure(t *testing.T) {
	gw := &fakeGateway{resp: &notification.GatewayResponse{
		SuccessCount: 2,
		FailureCount: 1,
		Responses: []notification.SendResult{
			{Success: true, MessageID: "m1"},
			{Success: false, Reason: "registration-token-not-registered"},
			{Success: true, MessageID: "m3"},
		},
	}}
	rec := &fakeRecorder{}
	h := NewDispatchNotificationHandler(gw, nil, rec, logger.Discard())

	report, err := h.Handle(context.Background(), DispatchNotificationCommand{
		ChatID:    "c1",
		Addresses: []string{"t1", "t2", "t3"},
		Payload:   payload(),
	})

	require.NoError(t, err)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, gw.calls[0])
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, []string{"t2"}, report.FailedAddresses())
	assert.Equal(t, []sendObservation{{SendResultPartial, 3, 1}}, rec.sends)
}

func TestDispatch_GatewayError(t *testing.T) {
	transport := errors.New("dial tcp: i/o timeout")
	gw := &fakeGateway{err: transport}
	rec := &fakeRecorder{}
	h := NewDispatchNotificationHandler(gw, nil, rec, logger.Discard())

	report, err := h.Handle(context.Background(), DispatchNotificationCommand{
		Addresses: []string{"t1"},
		Payload:   payload(),
	})

	assert.Nil(t, report)
	assert.True(t, IsGatewayError(err))
	assert.ErrorIs(t, err, transport)
	assert.Equal(t, []sendObservation{{SendResultError, 1, 1}}, rec.sends)
}

func TestDispatch_OpenCircuitSkipsGateway(t *testing.T) {
	gw := &fakeGateway{err: errors.New("503")}
	cb := circuitbreaker.New("push", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithTimeout(time.Hour))
	rec := &fakeRecorder{}
	h := NewDispatchNotificationHandler(gw, cb, rec, logger.Discard())
	cmd := DispatchNotificationCommand{Addresses: []string{"t1"}, Payload: payload()}

	_, err := h.Handle(context.Background(), cmd)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, err = h.Handle(context.Background(), cmd)
	assert.True(t, IsGatewayError(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, gw.calls, 1)
	assert.Equal(t, SendResultRejected, rec.sends[1].result)
}

func TestDispatch_ShortResponseCountsMissingAsFailed(t *testing.T) {
	gw := &fakeGateway{resp: &notification.GatewayResponse{
		Responses: []notification.SendResult{{Success: true}},
	}}
	h := NewDispatchNotificationHandler(gw, nil, nil, logger.Discard())

	report, err := h.Handle(context.Background(), DispatchNotificationCommand{
		Addresses: []string{"t1", "t2"},
		Payload:   payload(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, []notification.Failure{{Address: "t2", Reason: notification.ReasonNoResponse}}, report.Failures)
}

func TestDispatch_TwiceSendsTwice(t *testing.T) {
	gw := &fakeGateway{resp: &notification.GatewayResponse{
		Responses: []notification.SendResult{{Success: true}},
	}}
	h := NewDispatchNotificationHandler(gw, nil, nil, logger.Discard())
	cmd := DispatchNotificationCommand{Addresses: []string{"t1"}, Payload: payload()}

	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Len(t, gw.calls, 2)
}

func TestDispatch_NoAddresses(t *testing.T) {
	gw := &fakeGateway{}
	h := NewDispatchNotificationHandler(gw, nil, nil, logger.Discard())

	_, err := h.Handle(context.Background(), DispatchNotificationCommand{Payload: payload()})

	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, gw.calls)
}
