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

// Package loader turns module names and paths into instantiated modules.
//
// The manager only depends on the Loader interface. Two implementations are
// provided: Factories, which instantiates modules compiled into the binary,
// and Lua, which runs module scripts with gopher-lua. Both discover an
// optional manifest in the module directory to find the entry point.
package loader

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

var (
	// ErrModuleNotFound is returned when the module directory does not exist
	// and the loader needs one.
	ErrModuleNotFound = errors.New("loader: module not found")
	// ErrEntryPointNotFound is returned when the entry point cannot be located.
	ErrEntryPointNotFound = errors.New("loader: entry point not found")
)

// Manifest is the optional metadata shipped with a module. Absence of a
// manifest yields an empty, non-nil Manifest.
type Manifest map[string]any

// MainKey is the manifest key naming the module entry point.
const MainKey = "main"

// Main returns the declared entry point, or "" when none is declared.
func (m Manifest) Main() string {
	s, _ := m[MainKey].(string)
	return s
}

// Request describes the module to load.
type Request struct {
	// Name is the module name.
	Name string
	// Path is an explicit module directory; it wins over BaseDirectory.
	Path string
	// BaseDirectory is joined with Name when Path is empty.
	BaseDirectory string
	// Options is handed to the module constructor.
	Options module.Config
}

// Dir returns the directory the module is loaded from.
func (r Request) Dir() string {
	if r.Path != "" {
		return filepath.Clean(r.Path)
	}
	return filepath.Join(r.BaseDirectory, r.Name)
}

// Loader instantiates a module and returns it together with its manifest.
type Loader interface {
	Load(ctx context.Context, req Request) (Manifest, api.Module, error)
}

// Func adapts a function to the Loader interface.
type Func func(ctx context.Context, req Request) (Manifest, api.Module, error)

func (f Func) Load(ctx context.Context, req Request) (Manifest, api.Module, error) {
	return f(ctx, req)
}
