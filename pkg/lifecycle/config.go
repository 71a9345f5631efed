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

package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/plugin-lifecycle/pkg/audit"
)

const (
	defaultBaseDirectory = "modules"
	defaultWorkers       = 4
)

// CompletionMarker is handed to Config.OnInitialComplete once the initial
// module list has been processed.
const CompletionMarker = "finished"

// Descriptor names a module to activate at construction time. Path is
// optional and overrides the location derived from the base directory.
type Descriptor struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Names builds descriptors for bare module names.
func Names(names ...string) []Descriptor {
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, Descriptor{Name: n})
	}
	return out
}

// Config is used to tune the Manager.
type Config struct {
	// BaseDirectory is where the loader looks for a module given by bare name.
	BaseDirectory string

	// Logging enables reporting of successful transitions. Failures are
	// always reported.
	Logging bool

	// SharedOptions is handed to every module constructor. It is copied once
	// by New and must be treated as read-only afterwards.
	SharedOptions map[string]any

	// PassBackReference injects the Manager into the shared options under
	// module.ParentKey so that modules can call back into it.
	PassBackReference bool

	// InitialModules are activated one after another, in order, right after
	// construction.
	InitialModules []Descriptor

	// OnInitialComplete fires exactly once, with CompletionMarker, after the
	// initial list has been processed, whatever the individual outcomes.
	OnInitialComplete func(marker string)

	// Sink receives lifecycle events. Defaults to audit.Discard.
	Sink audit.Sink

	// Logger defaults to a logger discarding everything.
	Logger *slog.Logger

	// Registerer, when set, receives the manager's Prometheus collectors.
	Registerer prometheus.Registerer

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer

	// Workers sizes the pool running background tasks.
	Workers int
}

// DefaultConfig is used to return a default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseDirectory:     defaultBaseDirectory,
		PassBackReference: true,
		Workers:           defaultWorkers,
	}
}

// VerifyConfig is used to verify the sanity of configuration.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("lifecycle: config is nil")
	}
	if config.BaseDirectory == "" {
		return errors.New("lifecycle: BaseDirectory must not be empty")
	}
	if config.Workers < 1 {
		return fmt.Errorf("lifecycle: Workers must be at least 1, got %d", config.Workers)
	}
	for i, d := range config.InitialModules {
		if d.Name == "" {
			return fmt.Errorf("lifecycle: InitialModules[%d] has no name", i)
		}
	}
	return nil
}
