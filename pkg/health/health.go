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

// Package health exposes liveness and readiness of a module manager over HTTP.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plugin-lifecycle/api"
)

const (
	defaultMaxGoroutines = 10000
	defaultCheckTimeout  = 2 * time.Second
	defaultNamespace     = "plugin"
)

// Source is the part of the manager the checks look at.
type Source interface {
	InitialDone() <-chan struct{}
	Active() []string
	Lookup(name string) (*api.Record, bool)
}

// Options tunes NewHandler. The zero value is usable.
type Options struct {
	// Registerer, when set, receives one gauge per check.
	Registerer prometheus.Registerer
	Namespace  string

	// MaxGoroutines fails liveness once the process runs more goroutines.
	MaxGoroutines int

	// CheckTimeout bounds the module health checks.
	CheckTimeout time.Duration

	// Readiness holds additional readiness checks, e.g. adapter.MemoryCheck.
	Readiness map[string]healthcheck.Check
}

// NewHandler builds the handler serving /live and /ready for src.
func NewHandler(src Source, opts Options) healthcheck.Handler {
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = defaultMaxGoroutines
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}
	if opts.Namespace == "" {
		opts.Namespace = defaultNamespace
	}

	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, opts.Namespace)
	} else {
		h = healthcheck.NewHandler()
	}

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	h.AddReadinessCheck("initial-modules", InitialModulesCheck(src))
	h.AddReadinessCheck("modules", healthcheck.Timeout(ModulesCheck(src, opts.CheckTimeout), opts.CheckTimeout))
	for name, check := range opts.Readiness {
		h.AddReadinessCheck(name, check)
	}
	return h
}

// InitialModulesCheck fails until the initial module list has been processed.
func InitialModulesCheck(src Source) healthcheck.Check {
	return func() error {
		select {
		case <-src.InitialDone():
			return nil
		default:
			return errors.New("initial modules are still being activated")
		}
	}
}

// ModulesCheck asks every active module implementing api.HealthChecker for
// its health and joins the failures.
func ModulesCheck(src Source, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, name := range src.Active() {
			rec, ok := src.Lookup(name)
			if !ok {
				continue
			}
			hc, ok := rec.Instance.(api.HealthChecker)
			if !ok {
				continue
			}
			if err := hc.Health(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	}
}
