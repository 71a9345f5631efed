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

package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

// Factory constructs a module from its configuration.
type Factory func(cfg module.Config) (api.Module, error)

// Factories loads modules compiled into the binary. The entry point declared
// by the manifest selects the factory; without a manifest the module name is
// used. Module directories are optional for this loader.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var _ Loader = (*Factories)(nil)

// NewFactories creates an empty factory registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register registers a factory under an entry point name. Registering the
// same name twice is a programming error and panics.
func (f *Factories) Register(entry string, factory Factory) {
	if entry == "" || factory == nil {
		panic("loader: factory registration requires an entry point and a factory")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.factories[entry]; exists {
		panic(fmt.Sprintf("loader: factory for entry point '%s' already registered", entry))
	}
	slog.Debug("Registering module factory.", "entry", entry)
	f.factories[entry] = factory
}

// Entries returns the registered entry points in sorted order.
func (f *Factories) Entries() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.factories))
	for k := range f.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load implements Loader.
func (f *Factories) Load(_ context.Context, req Request) (Manifest, api.Module, error) {
	manifest, err := ReadManifest(req.Dir())
	if err != nil {
		return nil, nil, err
	}
	entry := manifest.Main()
	if entry == "" {
		entry = req.Name
	}

	f.mu.RLock()
	factory, ok := f.factories[entry]
	f.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrEntryPointNotFound, entry)
	}

	m, err := factory(req.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("construct %s: %w", entry, err)
	}
	return manifest, m, nil
}
