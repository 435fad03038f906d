package actions

import "context"

// Envelope statuses. Every execution returns exactly one of these.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Handler is the invocable body of an action. It receives the caller's
// loosely-typed parameter bag and returns a result mapping or an error.
// Handlers validate their own required fields; the registry never checks
// params against the declared inputs.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// PropertyDef describes one named, typed property of a type descriptor.
type PropertyDef struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// TypeDef is a named record type published for discovery. It describes the
// shape of structured action inputs/outputs to a schema-less remote caller
// (an external planner); it is never enforced at execution time.
type TypeDef struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Properties  []PropertyDef `json:"properties"`
}

// IO is one named input or output of an action. Kind is a primitive tag
// (string, number, boolean, array, object) or the name of a registered TypeDef.
type IO struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Descriptor is the immutable metadata describing an action.
//
// Preconditions and postconditions are opaque tags consumed by an external
// planner to sequence actions. Cost and Value are scoring hints for the same
// planner. CanRerun=false marks an action whose side effect is unsafe to
// repeat with the same arguments (e.g. creating a post); the registry does
// not enforce it.
type Descriptor struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Inputs         []IO     `json:"inputs"`
	Outputs        []IO     `json:"outputs"`
	Preconditions  []string `json:"preconditions"`
	Postconditions []string `json:"postconditions"`
	Cost           float64  `json:"cost"`
	Value          float64  `json:"value"`
	CanRerun       bool     `json:"can_rerun"`
}

// Registered pairs a descriptor with its handler. The handler is supplied by
// the registering code and owned by the registry for the process lifetime.
type Registered struct {
	Descriptor Descriptor
	Handler    Handler
}

// Request asks the registry to execute one action by name.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Response is the uniform execution envelope. Result is present iff the
// status is success, Error iff it is error. Code carries the structured
// error code for transport status mapping and is never serialized.
type Response struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Code   string         `json:"-"`
}
