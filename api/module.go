// Package api defines public API contracts for plugin-lifecycle.
package api

import "context"

// Module is the capability set every lifecycle unit exposes.
//
// Implementations usually embed *module.Base, which answers every call with
// module.ErrNotImplemented, and override the subset they support.
type Module interface {
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
	Update(ctx context.Context) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Record is a module instance together with the identity it is registered under.
// Records handed out by the Manager must not be mutated by callers.
type Record struct {
	Name     string
	Metadata map[string]any
	Instance Module
}

// Ref identifies the target of a lifecycle operation: either a module name that
// still has to be resolved, or an already instantiated handle.
type Ref struct {
	name   string
	handle *Record
}

// ByName refers to a module by its registry name.
func ByName(name string) Ref {
	return Ref{name: name}
}

// ByHandle refers to an instantiated module. Operations on a handle never load
// anything and bypass the registry lookup.
func ByHandle(r *Record) Ref {
	if r == nil {
		return Ref{}
	}
	return Ref{name: r.Name, handle: r}
}

// Name returns the registry key of the reference.
func (r Ref) Name() string {
	return r.name
}

// Handle returns the referenced record and true when r was built by ByHandle.
func (r Ref) Handle() (*Record, bool) {
	return r.handle, r.handle != nil
}

func (r Ref) String() string {
	return r.name
}
