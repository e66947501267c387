package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MockGateway is a simulated SMS gateway for tests and development. Failures
// can be scripted per recipient number.
type MockGateway struct {
	mu sync.Mutex

	// failFor maps recipient numbers to the error message their delivery
	// should fail with.
	failFor map[string]string

	// Calls records every send in order of arrival.
	Calls []MockCall
}

// MockCall records one SendSMS invocation.
type MockCall struct {
	From string
	To   string
	Body string
}

// NewMockGateway creates a gateway that succeeds for every recipient.
func NewMockGateway() *MockGateway {
	return &MockGateway{failFor: make(map[string]string)}
}

// FailFor scripts a failure for the given recipient number.
func (g *MockGateway) FailFor(to, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failFor[to] = reason
}

// SendSMS records the call and returns a scripted or simulated-success result.
func (g *MockGateway) SendSMS(ctx context.Context, from, to, body string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.Calls = append(g.Calls, MockCall{From: from, To: to, Body: body})
	reason, fail := g.failFor[to]
	g.mu.Unlock()

	if fail {
		log.Warn().Str("to", to).Str("reason", reason).Msg("mock gateway: simulated failure")
		return nil, fmt.Errorf("mock gateway: %s", reason)
	}

	return &SendResult{
		SID:    "SM" + uuid.NewString(),
		Status: "queued",
	}, nil
}

// SentTo returns the recipients of all recorded calls.
func (g *MockGateway) SentTo() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	to := make([]string, len(g.Calls))
	for i, c := range g.Calls {
		to[i] = c.To
	}
	return to
}
