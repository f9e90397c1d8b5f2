// Package mock provides a test double for the grader.Provider interface.
//
// Use Provider to return fixture grading results and to verify the audio,
// question, and style passed to the backend.
package mock

import (
	"context"
	"sync"

	"github.com/opicoach/opicoach/pkg/provider/grader"
)

// GradeCall records a single invocation of Grade.
type GradeCall struct {
	// Ctx is the context passed to Grade.
	Ctx context.Context
	// Req is the request passed to Grade.
	Req grader.Request
}

// Provider is a mock implementation of grader.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Grade when Err is nil.
	Result *grader.Result

	// Err, if non-nil, is returned from Grade.
	Err error

	// GradeFunc, if set, overrides Result/Err entirely.
	GradeFunc func(ctx context.Context, req grader.Request) (*grader.Result, error)

	// --- Call records ---

	// GradeCalls records every call to Grade in order.
	GradeCalls []GradeCall
}

// Grade records the call and returns the configured response.
func (p *Provider) Grade(ctx context.Context, req grader.Request) (*grader.Result, error) {
	p.mu.Lock()
	p.GradeCalls = append(p.GradeCalls, GradeCall{Ctx: ctx, Req: req})
	fn := p.GradeFunc
	result, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return result, err
}

// Calls returns a snapshot of recorded calls. Thread-safe.
func (p *Provider) Calls() []GradeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GradeCall, len(p.GradeCalls))
	copy(out, p.GradeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GradeCalls = nil
}

// Ensure Provider implements grader.Provider at compile time.
var _ grader.Provider = (*Provider)(nil)
