// Package api defines public API contracts for plugin-lifecycle.
package api

import "context"

// InstallOptions controls Lifecycle.Install.
type InstallOptions struct {
	// Path overrides the module location derived from the base directory.
	Path string
	// Activate activates the module once the install succeeded.
	Activate bool
}

// UninstallOptions controls Lifecycle.Uninstall.
type UninstallOptions struct {
	Path string
}

// ActivateOptions controls Lifecycle.Activate.
type ActivateOptions struct {
	Path string
}

// UpdateOptions controls Lifecycle.Update.
type UpdateOptions struct {
	Path     string
	Activate bool
	// KeepActive reactivates the module only if it was active when the
	// update started. The check happens under the same lock as the update.
	KeepActive bool
}

// Lifecycle defines the interface for module lifecycle management.
//
// Failures raised by a module while running one of its capabilities are
// reported through the manager's event channel and are not returned. The
// returned error is reserved for modules that could not be resolved at all.
type Lifecycle interface {
	Install(ctx context.Context, ref Ref, opts InstallOptions) error
	Uninstall(ctx context.Context, ref Ref, opts UninstallOptions) error
	Activate(ctx context.Context, ref Ref, opts ActivateOptions) error
	Deactivate(ctx context.Context, ref Ref) error
	Update(ctx context.Context, ref Ref, opts UpdateOptions) error
}
