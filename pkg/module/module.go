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

// Package module provides the base implementation every lifecycle module builds on.
package module

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/srediag/plugin-lifecycle/api"
)

var (
	// ErrMissingConfiguration is returned by New when no configuration mapping is given.
	ErrMissingConfiguration = errors.New("module: configuration missing")
	// ErrNotImplemented is returned by every capability a module does not override.
	ErrNotImplemented = errors.New("module: function not implemented")
)

// ParentKey is the configuration key under which the manager injects itself.
const ParentKey = "parent"

// Config is the configuration mapping a module is constructed from.
type Config map[string]any

// Base answers every lifecycle capability with ErrNotImplemented and exposes
// the construction-time configuration. Concrete modules embed *Base.
type Base struct {
	config Config
}

var _ api.Module = (*Base)(nil)

// New copies every key of cfg onto a new Base. The copy is shallow: nested
// maps and slices stay shared with the caller. A nil cfg fails with
// ErrMissingConfiguration; an empty one is valid.
func New(cfg Config) (*Base, error) {
	if cfg == nil {
		return nil, ErrMissingConfiguration
	}
	c := make(Config, len(cfg))
	for k, v := range cfg {
		c[k] = v
	}
	return &Base{config: c}, nil
}

// Get returns the value stored under key.
func (b *Base) Get(key string) (any, bool) {
	v, ok := b.config[key]
	return v, ok
}

// String returns the value stored under key when it is a string.
func (b *Base) String(key string) string {
	s, _ := b.config[key].(string)
	return s
}

// Bool returns the value stored under key when it is a bool.
func (b *Base) Bool(key string) bool {
	v, _ := b.config[key].(bool)
	return v
}

// Int returns the value stored under key converted to int. Floats are
// truncated, anything else yields 0.
func (b *Base) Int(key string) int {
	switch v := b.config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Keys returns the configuration keys in sorted order.
func (b *Base) Keys() []string {
	keys := make([]string, 0, len(b.config))
	for k := range b.config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Config returns a shallow copy of the configuration.
func (b *Base) Config() Config {
	c := make(Config, len(b.config))
	for k, v := range b.config {
		c[k] = v
	}
	return c
}

// Parent returns the manager back-reference, if one was injected. The module
// does not own the manager and must not retain it beyond its own lifetime.
func (b *Base) Parent() (api.Lifecycle, bool) {
	p, ok := b.config[ParentKey].(api.Lifecycle)
	return p, ok
}

func (b *Base) Install(context.Context) error    { return notImplemented("install") }
func (b *Base) Uninstall(context.Context) error  { return notImplemented("uninstall") }
func (b *Base) Update(context.Context) error     { return notImplemented("update") }
func (b *Base) Activate(context.Context) error   { return notImplemented("activate") }
func (b *Base) Deactivate(context.Context) error { return notImplemented("deactivate") }

func notImplemented(op string) error {
	return fmt.Errorf("%s: %w", op, ErrNotImplemented)
}
