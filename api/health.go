// Package api defines public API contracts for plugin-lifecycle.
package api

import "context"

// HealthChecker is implemented by modules that can report their own health.
// Readiness probes call Health on every active module that implements it.
type HealthChecker interface {
	Health(ctx context.Context) error
}
