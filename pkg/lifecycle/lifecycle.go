/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle provides the Manager driving modules through install,
// activation, deactivation, update and uninstall.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/plugin-lifecycle/api"
	iaudit "github.com/srediag/plugin-lifecycle/internal/audit"
	ilifecycle "github.com/srediag/plugin-lifecycle/internal/lifecycle"
	"github.com/srediag/plugin-lifecycle/pkg/audit"
	"github.com/srediag/plugin-lifecycle/pkg/loader"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

// Manager owns the registry of active modules. It is safe for concurrent use;
// operations targeting the same module name are serialized.
type Manager struct {
	cfg      Config
	loader   loader.Loader
	registry cmap.ConcurrentMap[string, *api.Record]
	locks    *ilifecycle.KeyedMutex
	options  module.Config
	sink     audit.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics
	pool     *ants.Pool

	initialDone chan struct{}
}

var _ api.Lifecycle = (*Manager)(nil)

// New creates a Manager resolving modules through l. When the configuration
// lists initial modules, their activation starts in the background before New
// returns; InitialDone and Config.OnInitialComplete signal its end.
func New(config *Config, l loader.Loader) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errors.New("lifecycle: loader is nil")
	}

	m := &Manager{
		cfg:         *config,
		loader:      l,
		registry:    cmap.New[*api.Record](),
		locks:       ilifecycle.NewKeyedMutex(),
		sink:        config.Sink,
		logger:      config.Logger,
		tracer:      config.Tracer,
		initialDone: make(chan struct{}),
	}
	if m.sink == nil {
		m.sink = audit.Discard
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.tracer == nil {
		m.tracer = noop.NewTracerProvider().Tracer("")
	}

	var err error
	if m.metrics, err = newMetrics(config.Registerer); err != nil {
		return nil, fmt.Errorf("lifecycle: register metrics: %w", err)
	}

	m.options = make(module.Config, len(config.SharedOptions)+1)
	maps.Copy(m.options, config.SharedOptions)
	if config.PassBackReference {
		m.options[module.ParentKey] = m
	}

	m.pool, err = ants.NewPool(config.Workers, ants.WithPanicHandler(func(p any) {
		m.logger.Error("Background task panicked.", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create worker pool: %w", err)
	}

	initial := append([]Descriptor(nil), config.InitialModules...)
	if err := m.pool.Submit(func() { m.activateAll(context.Background(), initial) }); err != nil {
		m.pool.Release()
		return nil, fmt.Errorf("lifecycle: schedule initial activation: %w", err)
	}
	return m, nil
}

// activateAll activates the descriptors strictly one after another. Each
// failure is already reported by Activate, so the batch always runs to the end.
func (m *Manager) activateAll(ctx context.Context, list []Descriptor) {
	defer close(m.initialDone)
	for _, d := range list {
		if err := m.Activate(ctx, api.ByName(d.Name), api.ActivateOptions{Path: d.Path}); err != nil {
			m.logger.Debug("Initial activation skipped.", "module", d.Name, "error", err)
		}
	}
	if m.cfg.OnInitialComplete != nil {
		m.cfg.OnInitialComplete(CompletionMarker)
	}
}

// InitialDone is closed once the initial module list has been processed.
func (m *Manager) InitialDone() <-chan struct{} {
	return m.initialDone
}

// Active returns the names of the active modules in sorted order.
func (m *Manager) Active() []string {
	names := m.registry.Keys()
	sort.Strings(names)
	return names
}

// Lookup returns the active record registered under name.
func (m *Manager) Lookup(name string) (*api.Record, bool) {
	return m.registry.Get(name)
}

// Shutdown waits for the initial batch, deactivates every active module and
// releases the worker pool. Deactivation failures are reported like any other.
// When ctx ends before the initial batch, the pool is released and the active
// modules are left as they are.
func (m *Manager) Shutdown(ctx context.Context) error {
	select {
	case <-m.initialDone:
	case <-ctx.Done():
		m.pool.Release()
		return ctx.Err()
	}
	for _, name := range m.Active() {
		if err := m.Deactivate(ctx, api.ByName(name)); err != nil {
			m.logger.Warn("Deactivation during shutdown failed.", "module", name, "error", err)
		}
	}
	m.pool.Release()
	return nil
}

// Submit runs task on the manager's worker pool.
func (m *Manager) Submit(task func()) error {
	return m.pool.Submit(task)
}

// begin opens the span of a public operation and takes the per-name lock.
// The returned function must be called with the operation's returned error.
func (m *Manager) begin(ctx context.Context, op string, ref api.Ref) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(
		attribute.String("module.name", ref.Name()),
	))
	unlock := m.locks.Lock(ref.Name())
	return ctx, func(err error) {
		unlock()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		m.metrics.since(op, start)
	}
}

// report emits the event for a single transition. Successful transitions
// are only emitted when logging is enabled.
func (m *Manager) report(ctx context.Context, op, name string, err error) {
	e := audit.Event{Time: time.Now(), Operation: op, Module: name, Outcome: audit.Succeeded, Err: err}
	if err != nil {
		e.Outcome = audit.Failed
	}
	m.metrics.observe(op, e.Outcome)

	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("operation", op)))
		m.logger.ErrorContext(ctx, iaudit.Message(e), "module", name, "operation", op)
	} else {
		if !m.cfg.Logging {
			return
		}
		m.logger.InfoContext(ctx, iaudit.Message(e), "module", name, "operation", op)
	}
	if serr := m.sink.LogEvent(ctx, e); serr != nil {
		m.logger.Warn("Audit sink rejected event.", "module", name, "operation", op, "error", serr)
	}
}

// resolve turns ref into a record. Handles are returned as they are; names
// are loaded through the loader with a fresh copy of the shared options, so
// a module replacing a top-level key does not leak it to later loads.
func (m *Manager) resolve(ctx context.Context, ref api.Ref, path string) (rec *api.Record, err error) {
	if h, ok := ref.Handle(); ok {
		return h, nil
	}
	name := ref.Name()
	if name == "" {
		return nil, &ResolutionError{Module: name, Err: errors.New("empty module name")}
	}

	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, &ResolutionError{Module: name, Err: fmt.Errorf("loader panic: %v", r)}
		}
	}()
	manifest, inst, err := m.loader.Load(ctx, loader.Request{
		Name:          name,
		Path:          path,
		BaseDirectory: m.cfg.BaseDirectory,
		Options:       maps.Clone(m.options),
	})
	if err != nil {
		return nil, &ResolutionError{Module: name, Err: err}
	}
	if inst == nil {
		return nil, &ResolutionError{Module: name, Err: errors.New("loader returned no instance")}
	}
	if manifest == nil {
		manifest = loader.Manifest{}
	}
	return &api.Record{Name: name, Metadata: manifest, Instance: inst}, nil
}

// registered returns the registry entry ref points at. A handle only
// matches the entry holding the same instance.
func (m *Manager) registered(ref api.Ref) (*api.Record, bool) {
	cur, ok := m.registry.Get(ref.Name())
	if !ok {
		return nil, false
	}
	if h, isHandle := ref.Handle(); isHandle && h.Instance != cur.Instance {
		return nil, false
	}
	return cur, true
}

// invoke calls one capability of rec, turning failures and panics into an
// *OperationError.
func (m *Manager) invoke(ctx context.Context, op string, rec *api.Record, call func(api.Module, context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &OperationError{Module: rec.Name, Operation: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if rec.Instance == nil {
		return &OperationError{Module: rec.Name, Operation: op, Err: errors.New("record has no instance")}
	}
	if cerr := call(rec.Instance, ctx); cerr != nil {
		return &OperationError{Module: rec.Name, Operation: op, Err: cerr}
	}
	return nil
}
