// Package stub provides a scripted payment provider for tests and the
// in-memory dev mode.
package stub

import (
	"context"
	"fmt"
	"sync"

	"contest-settlement/internal/provider"
)

// Provider replays scripted results in order. When the script is exhausted it
// succeeds with a generated transfer id. Every request is recorded.
type Provider struct {
	mu       sync.Mutex
	script   []Step
	requests []provider.TransferRequest
	seq      int
}

// Step is one scripted response. Err, when set, is returned as an unexpected
// adapter failure instead of a classified result.
type Step struct {
	Result provider.TransferResult
	Err    error
}

// New creates a Provider that plays steps in order.
func New(steps ...Step) *Provider {
	return &Provider{script: steps}
}

// Succeed scripts a successful call.
func Succeed(transferID string) Step {
	return Step{Result: provider.Succeeded(transferID)}
}

// Fail scripts a classified failure.
func Fail(c provider.Classification, reason string) Step {
	return Step{Result: provider.Failed(c, reason)}
}

// Then appends steps to the script.
func (p *Provider) Then(steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, steps...)
	return p
}

// CreateTransfer returns the next scripted step.
func (p *Provider) CreateTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if err := ctx.Err(); err != nil {
		return provider.Classify(err), nil
	}

	if len(p.script) == 0 {
		p.seq++
		return provider.Succeeded(fmt.Sprintf("tr_stub_%d", p.seq)), nil
	}

	step := p.script[0]
	p.script = p.script[1:]
	return step.Result, step.Err
}

// Requests returns a copy of every request received.
func (p *Provider) Requests() []provider.TransferRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.TransferRequest(nil), p.requests...)
}

// Calls returns the number of requests received.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
