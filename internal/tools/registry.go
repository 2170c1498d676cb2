// Package tools implements the Tool Registry: it maps tool name to handler,
// exposes a capability summary to the Planner, validates resolved
// parameters against each tool's declared JSON Schema, and routes Execute
// calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/solace-ai/orchestrator/internal/tools/toolerrors"
)

// Ident is the strong type for tool names, avoiding accidental mixing with
// free-form strings.
type Ident string

// Context carries per-invocation data every tool handler receives: the
// cancel signal (via ctx.Done), a bounded deadline, and identifiers for
// correlating telemetry.
type Context struct {
	context.Context
	SessionID     string
	InteractionID string
}

// Result is what a Handler returns on success. Handlers that fail return a
// *toolerrors.ToolError as the error value; Result itself carries no error
// shape. The Registry also converts unknown-tool and invalid-argument
// failures into a ToolError here.
type Result struct {
	Payload any
}

// Handler is the contract every tool backend implements.
type Handler interface {
	Execute(ctx Context, params map[string]any) (Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx Context, params map[string]any) (Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx Context, params map[string]any) (Result, error) {
	return f(ctx, params)
}

// Spec describes one tool's metadata: capability-summary fields for the
// Planner plus a compiled JSON Schema for parameter validation.
type Spec struct {
	// Name is the tool identifier the Planner and Plan Validator reference.
	Name Ident
	// Description is the one-line summary surfaced in the capability list.
	Description string
	// ParameterSchema is the raw JSON Schema document (draft 2020-12)
	// describing the tool's parameters.
	ParameterSchema json.RawMessage
	// DeliveryTerminal marks tools that satisfy a delivery intent (e.g.
	// compose_email).
	DeliveryTerminal bool
	// Pure marks tools with no side effects, safe to retry freely.
	Pure bool
	// ConcurrencySafe marks tools the Executor may run concurrently with
	// their dependency-independent siblings.
	ConcurrencySafe bool
	// NewHandler lazily constructs the handler on first use, guarded by a
	// per-tool sync.Once, giving each tool a lazily-built singleton instance.
	NewHandler func() (Handler, error)

	schema *jsonschema.Schema
}

// Capability is the planner-facing summary for one registered tool.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

type entry struct {
	spec    Spec
	once    sync.Once
	handler Handler
	buildErr error
}

// Registry holds the set of known tool handlers. It is immutable after
// initialization: Register must not be called concurrently with
// Execute/Capabilities, but those two are safe for concurrent use once
// registration is complete.
type Registry struct {
	mu      sync.RWMutex
	entries map[Ident]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[Ident]*entry)}
}

// Register compiles spec's parameter schema and adds it to the registry.
// Register panics if the schema fails to compile, since a malformed
// registration is a programming error, not a runtime condition (mirrors the
// teacher's fail-fast stance on malformed workflow/activity definitions).
func (r *Registry) Register(spec Spec) {
	if spec.Name == "" {
		panic("tools: spec.Name is required")
	}
	if spec.NewHandler == nil {
		panic(fmt.Sprintf("tools: %s: NewHandler is required", spec.Name))
	}
	compiled, err := compileSchema(spec.Name, spec.ParameterSchema)
	if err != nil {
		panic(fmt.Sprintf("tools: %s: %v", spec.Name, err))
	}
	spec.schema = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[spec.Name]; dup {
		panic(fmt.Sprintf("tools: %s already registered", spec.Name))
	}
	r.entries[spec.Name] = &entry{spec: spec}
}

func compileSchema(name Ident, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal parameter schema: %w", err)
	}
	resource := fmt.Sprintf("tool:%s", name)
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name Ident) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Spec returns the registered spec for name.
func (r *Registry) Spec(name Ident) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Spec{}, false
	}
	return e.spec, true
}

// Capabilities returns the capability summary for every registered tool,
// sorted by name, for injection into planner prompts.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Capability{
			Name:        string(e.spec.Name),
			Description: e.spec.Description,
			Parameters:  parameterNames(e.spec.ParameterSchema),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parameterNames(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var doc struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Properties))
	for k := range doc.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Execute validates params against the tool's declared schema, lazily
// constructs the handler exactly once, and invokes it.
func (r *Registry) Execute(ctx Context, name Ident, params map[string]any) (Result, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, toolerrors.Classify(toolerrors.KindToolUnavailable, fmt.Sprintf("unknown tool %q", name), false)
	}

	if e.spec.schema != nil {
		if err := validateParams(e.spec.schema, params); err != nil {
			return Result{}, toolerrors.Classify(toolerrors.KindInvalidArguments, err.Error(), true)
		}
	}

	e.once.Do(func() {
		e.handler, e.buildErr = e.spec.NewHandler()
	})
	if e.buildErr != nil {
		return Result{}, toolerrors.Classify(toolerrors.KindToolUnavailable, e.buildErr.Error(), false)
	}

	return e.handler.Execute(ctx, params)
}

func validateParams(schema *jsonschema.Schema, params map[string]any) error {
	// jsonschema/v6 validates against decoded JSON values (map[string]any,
	// []any, float64, ...), which matches the Executor's resolved parameter
	// representation directly.
	if err := schema.Validate(map[string]any(params)); err != nil {
		return fmt.Errorf("parameter validation: %w", err)
	}
	return nil
}
