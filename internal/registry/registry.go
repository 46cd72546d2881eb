// Package registry holds the catalog of business functions the decision maker
// may call. A Registry is built once from a fixed list of functions and is
// read-only afterwards, so lookups need no locking.
//
// Every function may name the permission required to call it. Execute checks
// that permission again at call time and validates parameters against the
// function's JSON Schema before the handler runs.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Errors for registry operations.
var (
	ErrFunctionNotFound  = errors.New("function not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrDuplicateFunction = errors.New("duplicate function name")
	ErrHandlerPanic      = errors.New("function handler panicked")
)

// Principal is the caller a function runs on behalf of.
type Principal struct {
	UserID      string
	TenantID    string
	Permissions []string
}

// Has reports whether p was granted perm.
func (p Principal) Has(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}

// Handler runs a function. params have already passed schema validation.
type Handler func(ctx context.Context, params map[string]any, p Principal) (any, error)

// Function is one catalog entry.
type Function struct {
	Name        string
	Description string
	// Parameters is a JSON Schema document. Empty accepts any object.
	Parameters string
	// RequiredPermission is empty when anyone may call the function.
	RequiredPermission string
	Handler            Handler
}

// Definition is the serialisable description of a function handed to the
// decision maker and listed over HTTP.
type Definition struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Parameters         json.RawMessage `json:"parameters,omitempty"`
	RequiredPermission string          `json:"required_permission,omitempty"`
}

// Definition returns the serialisable form of f.
func (f Function) Definition() Definition {
	def := Definition{
		Name:               f.Name,
		Description:        f.Description,
		RequiredPermission: f.RequiredPermission,
	}
	if f.Parameters != "" {
		def.Parameters = json.RawMessage(f.Parameters)
	}
	return def
}

// Definitions maps fns to their definitions.
func Definitions(fns []Function) []Definition {
	out := make([]Definition, 0, len(fns))
	for _, f := range fns {
		out = append(out, f.Definition())
	}
	return out
}

type entry struct {
	fn     Function
	schema *jsonschema.Schema
}

// Registry is an immutable function catalog.
type Registry struct {
	entries []*entry
	byName  map[string]*entry
}

// New builds a registry. It fails on duplicate or empty names, missing
// handlers and schemas that do not compile.
func New(fns ...Function) (*Registry, error) {
	r := &Registry{
		entries: make([]*entry, 0, len(fns)),
		byName:  make(map[string]*entry, len(fns)),
	}
	for _, fn := range fns {
		if fn.Name == "" {
			return nil, errors.New("function name is required")
		}
		if _, ok := r.byName[fn.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.Name)
		}
		if fn.Handler == nil {
			return nil, fmt.Errorf("function %s: handler is required", fn.Name)
		}
		e := &entry{fn: fn}
		if fn.Parameters != "" {
			schema, err := compileSchema(fn.Name, fn.Parameters)
			if err != nil {
				return nil, err
			}
			e.schema = schema
		}
		r.entries = append(r.entries, e)
		r.byName[fn.Name] = e
	}
	return r, nil
}

// MustNew is New that panics on error. Intended for static catalogs.
func MustNew(fns ...Function) *Registry {
	r, err := New(fns...)
	if err != nil {
		panic(err)
	}
	return r
}

func compileSchema(name, doc string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://ledgerd.schemas.local/functions/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("function %s: load schema: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("function %s: compile schema: %w", name, err)
	}
	return schema, nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	e, ok := r.byName[name]
	if !ok {
		return Function{}, false
	}
	return e.fn, true
}

// All returns every function in registration order.
func (r *Registry) All() []Function {
	out := make([]Function, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.fn)
	}
	return out
}

// Len reports the number of registered functions.
func (r *Registry) Len() int {
	return len(r.entries)
}

// ForPermissions returns, in registration order, the functions that need no
// permission or whose permission is in granted.
func (r *Registry) ForPermissions(granted []string) []Function {
	out := make([]Function, 0, len(r.entries))
	for _, e := range r.entries {
		if e.fn.RequiredPermission == "" || slices.Contains(granted, e.fn.RequiredPermission) {
			out = append(out, e.fn)
		}
	}
	return out
}

// Execute runs the named function for p. The permission check is repeated
// here regardless of any earlier filtering. A panicking handler is reported as
// ErrHandlerPanic.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, p Principal) (result any, err error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if perm := e.fn.RequiredPermission; perm != "" && !p.Has(perm) {
		return nil, fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, name, perm)
	}
	if params == nil {
		params = map[string]any{}
	}
	if e.schema != nil {
		if err := validate(e.schema, params); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameters, name, err)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%w: %s: %v\n%s", ErrHandlerPanic, name, rec, debug.Stack())
		}
	}()
	return e.fn.Handler(ctx, params, p)
}

// validate checks params in their JSON form so Go-typed values (ints, typed
// slices) are judged the same way a decoded payload would be.
func validate(schema *jsonschema.Schema, params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
