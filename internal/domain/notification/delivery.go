package notification

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// SendResult is the gateway's verdict for one submitted address.
type SendResult struct {
	Success   bool
	MessageID string
	Reason    string
}

// GatewayResponse is the raw multicast response. Responses[i] belongs to
// the i-th submitted address.
type GatewayResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResult
}

// Gateway sends one payload to many push addresses in a single request.
type Gateway interface {
	SendMulticast(ctx context.Context, addresses []string, payload Payload) (*GatewayResponse, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY REPORT
// ══════════════════════════════════════════════════════════════════════════════

// ReasonNoResponse is recorded for an address the gateway did not answer for.
const ReasonNoResponse = "no response from gateway"

// Outcome pairs a submitted address with its delivery verdict.
type Outcome struct {
	Address string
	Success bool
	Reason  string
}

// Failure is a failed address and why it failed.
type Failure struct {
	Address string
	Reason  string
}

// DeliveryReport summarizes one multicast send.
type DeliveryReport struct {
	SuccessCount int
	Failures     []Failure
	Outcomes     []Outcome
}

// PairOutcomes zips submitted addresses with the gateway responses by
// position. Addresses without a matching response are counted as failed;
// surplus responses are ignored.
func PairOutcomes(addresses []string, resp *GatewayResponse) []Outcome {
	outcomes := make([]Outcome, len(addresses))
	for i, addr := range addresses {
		outcomes[i] = Outcome{Address: addr, Reason: ReasonNoResponse}
		if resp == nil || i >= len(resp.Responses) {
			continue
		}
		r := resp.Responses[i]
		outcomes[i].Success = r.Success
		outcomes[i].Reason = ""
		if !r.Success {
			outcomes[i].Reason = r.Reason
		}
	}
	return outcomes
}

// NewDeliveryReport builds a report from paired outcomes, keeping failures
// in submission order.
func NewDeliveryReport(outcomes []Outcome) *DeliveryReport {
	report := &DeliveryReport{
		Outcomes: outcomes,
		Failures: make([]Failure, 0),
	}
	for _, o := range outcomes {
		if o.Success {
			report.SuccessCount++
			continue
		}
		report.Failures = append(report.Failures, Failure{Address: o.Address, Reason: o.Reason})
	}
	return report
}

// FailureCount returns the number of failed addresses.
func (r *DeliveryReport) FailureCount() int {
	return len(r.Failures)
}

// HasFailures reports a partial (or total) delivery failure.
func (r *DeliveryReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// FailedAddresses returns the failed addresses in submission order.
func (r *DeliveryReport) FailedAddresses() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Address
	}
	return out
}
