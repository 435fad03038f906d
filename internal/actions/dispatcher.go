package actions

import (
	"context"

	"github.com/quillagent/quill/pkg/schema"
)

// Gate screens executions before they reach a handler. Satisfied by
// policy.Guard.
type Gate interface {
	Check(ctx context.Context, action string, params map[string]any) error
}

// Dispatcher wraps a Registry with an optional execution gate. Denials come
// back as ordinary error envelopes so callers see one uniform shape.
type Dispatcher struct {
	reg  *Registry
	gate Gate
}

// NewDispatcher creates a Dispatcher. A nil gate allows everything.
func NewDispatcher(reg *Registry, gate Gate) *Dispatcher {
	return &Dispatcher{reg: reg, gate: gate}
}

// Execute checks the gate and then dispatches through the registry.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]any) Response {
	if d.gate != nil {
		if err := d.gate.Check(ctx, name, params); err != nil {
			return Response{
				Status: StatusError,
				Error:  err.Error(),
				Code:   schema.CodeOf(err),
			}
		}
	}
	return d.reg.Execute(ctx, name, params)
}
