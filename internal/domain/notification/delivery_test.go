package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryReport_SingleFailure(t *testing.T) {
	addresses := []string{"t1", "t2", "t3"}
	resp := &GatewayResponse{
		SuccessCount: 2,
		FailureCount: 1,
		Responses: []SendResult{
			{Success: true, MessageID: "m1"},
			{Success: false, Reason: "registration-token-not-registered"},
			{Success: true, MessageID: "m3"},
		},
	}

	report := NewDeliveryReport(PairOutcomes(addresses, resp))

	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount())
	assert.True(t, report.HasFailures())
	assert.Equal(t, []string{"t2"}, report.FailedAddresses())
	assert.Equal(t, "registration-token-not-registered", report.Failures[0].Reason)
	assert.Len(t, report.Outcomes, 3)
	assert.Equal(t, Outcome{Address: "t1", Success: true}, report.Outcomes[0])
}

func TestDeliveryReport_AllSucceeded(t *testing.T) {
	resp := &GatewayResponse{Responses: []SendResult{{Success: true}, {Success: true}}}

	report := NewDeliveryReport(PairOutcomes([]string{"a", "b"}, resp))

	assert.Equal(t, 2, report.SuccessCount)
	assert.False(t, report.HasFailures())
	assert.Empty(t, report.FailedAddresses())
}

func TestPairOutcomes_ShortResponse(t *testing.T) {
	resp := &GatewayResponse{Responses: []SendResult{{Success: true}}}

	outcomes := PairOutcomes([]string{"a", "b"}, resp)

	assert.Equal(t, []Outcome{
		{Address: "a", Success: true},
		{Address: "b", Success: false, Reason: ReasonNoResponse},
	}, outcomes)
}

func TestPairOutcomes_SurplusResponsesIgnored(t *testing.T) {
	resp := &GatewayResponse{Responses: []SendResult{{Success: true}, {Success: false, Reason: "x"}}}

	outcomes := PairOutcomes([]string{"a"}, resp)

	assert.Equal(t, []Outcome{{Address: "a", Success: true}}, outcomes)
}
