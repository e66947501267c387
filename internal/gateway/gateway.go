// Package gateway abstracts the physical SMS transport. The core treats the
// carrier as an opaque capability: one call per recipient, failures reported
// per call, never thrown across unrelated recipients.
package gateway

import "context"

// SendResult is the provider's answer to a single outbound send.
type SendResult struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    int    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Gateway sends one SMS from an E.164 number to an E.164 number. A non-nil
// error means the attempt failed; the caller owns any retry policy.
type Gateway interface {
	SendSMS(ctx context.Context, from, to, body string) (*SendResult, error)
}
