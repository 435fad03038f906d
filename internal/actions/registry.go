package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quillagent/quill/internal/logging"
	"github.com/quillagent/quill/pkg/schema"
)

// Registry is the process-wide catalog of actions and type descriptors.
// Registration happens during start-up wiring, strictly before the transport
// layer begins dispatching; Execute and the listing methods are safe for
// concurrent use at any time, and Reset exists for test isolation.
//
// Duplicate registration (action or type) is rejected with a CONFLICT error:
// a catalog collision is a programming error and must abort process start,
// never silently replace an entry.
type Registry struct {
	mu          sync.RWMutex
	actions     map[string]*Registered
	actionOrder []string
	types       map[string]TypeDef
	typeOrder   []string
	logger      *slog.Logger
}

// NewRegistry creates an empty Registry. The logger is optional.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actions: make(map[string]*Registered),
		types:   make(map[string]TypeDef),
		logger:  logger,
	}
}

// Register adds an action to the catalog. Returns error on empty name,
// nil handler, or duplicate name.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if desc.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "action name is empty")
	}
	if handler == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "action %q has nil handler", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[desc.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", desc.Name)
	}

	r.actions[desc.Name] = &Registered{Descriptor: desc, Handler: handler}
	r.actionOrder = append(r.actionOrder, desc.Name)
	return nil
}

// RegisterType adds a type descriptor to the catalog. Returns error on
// empty or duplicate name.
func (r *Registry) RegisterType(def TypeDef) error {
	if def.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "type name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "type %q already registered", def.Name)
	}

	r.types[def.Name] = def
	r.typeOrder = append(r.typeOrder, def.Name)
	return nil
}

// Get retrieves a registered action by exact name.
func (r *Registry) Get(name string) (*Registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.actions[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not found", name)
	}
	return reg, nil
}

// ListActions returns all registered descriptors in registration order.
// Handlers are never exposed.
func (r *Registry) ListActions() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.actionOrder))
	for _, name := range r.actionOrder {
		descs = append(descs, r.actions[name].Descriptor)
	}
	return descs
}

// ListTypes returns all registered type descriptors in registration order.
func (r *Registry) ListTypes() []TypeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]TypeDef, 0, len(r.typeOrder))
	for _, name := range r.typeOrder {
		defs = append(defs, r.types[name])
	}
	return defs
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Execute dispatches one action by name and wraps the outcome in a uniform
// envelope. It never lets a handler fault escape: an unknown name, a handler
// error, and a handler panic all become a well-formed error envelope. The
// catalog is never mutated per call.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (resp Response) {
	execID := uuid.New().String()
	ctx = logging.WithExecutionID(ctx, execID)
	ctx = logging.WithActionName(ctx, name)

	r.mu.RLock()
	reg, ok := r.actions[name]
	r.mu.RUnlock()
	if !ok {
		return Response{
			Status: StatusError,
			Error:  fmt.Sprintf("action %q not found", name),
			Code:   schema.ErrCodeNotFound,
		}
	}

	if params == nil {
		params = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "action handler panicked", slog.Any("panic", p))
			resp = Response{
				Status: StatusError,
				Error:  fmt.Sprintf("action %q panicked: %v", name, p),
				Code:   schema.ErrCodeExecution,
			}
		}
	}()

	r.logger.DebugContext(ctx, "executing action")
	result, err := reg.Handler(ctx, params)
	if err != nil {
		r.logger.WarnContext(ctx, "action failed", slog.String("error", err.Error()))
		return Response{
			Status: StatusError,
			Error:  err.Error(),
			Code:   schema.CodeOf(err),
		}
	}

	if result == nil {
		result = map[string]any{}
	}
	r.logger.DebugContext(ctx, "action succeeded")
	return Response{Status: StatusSuccess, Result: result}
}

// Reset clears both catalogs. Used for test isolation and for rebuilding
// the process-wide default instance without a restart.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]*Registered)
	r.actionOrder = nil
	r.types = make(map[string]TypeDef)
	r.typeOrder = nil
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
// Repeated calls return the identical instance until ResetDefault.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(nil)
	}
	return defaultRegistry
}

// ResetDefault clears the process-wide registry. Safe to call between tests
// sharing a process.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Reset()
	}
}
