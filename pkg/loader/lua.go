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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/module"
)

// DefaultLuaEntry is the script executed when the manifest declares no entry point.
const DefaultLuaEntry = "init.lua"

// Lua loads modules implemented as Lua scripts.
//
// The entry script runs in a fresh interpreter with two globals: `config`,
// a table holding the primitive configuration values, and `log(msg)`. The
// script must return a table; its install, uninstall, update, activate,
// deactivate and health functions become the module capabilities and are
// called with the table as first argument. Raising a Lua error fails the
// call.
type Lua struct {
	logger *slog.Logger
}

var _ Loader = (*Lua)(nil)

// NewLua creates a Lua loader. Script log output goes to logger.
func NewLua(logger *slog.Logger) *Lua {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lua{logger: logger}
}

// Load implements Loader.
func (l *Lua) Load(ctx context.Context, req Request) (Manifest, api.Module, error) {
	dir := req.Dir()
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrModuleNotFound, dir)
		}
		return nil, nil, err
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	entry := manifest.Main()
	if entry == "" {
		entry = DefaultLuaEntry
	}
	script := filepath.Join(dir, entry)
	if _, err := os.Stat(script); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrEntryPointNotFound, script)
		}
		return nil, nil, err
	}

	if req.Options == nil {
		return nil, nil, module.ErrMissingConfiguration
	}

	m, err := l.instantiate(ctx, req.Name, script, req.Options)
	if err != nil {
		return nil, nil, err
	}
	return manifest, m, nil
}

func (l *Lua) instantiate(ctx context.Context, name, script string, cfg module.Config) (*luaModule, error) {
	L := lua.NewState()
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.SetGlobal("config", configTable(L, cfg))
	logger := l.logger.With("module", name)
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logger.Info(L.CheckString(1))
		return 0
	}))

	if err := L.DoFile(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", script, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%s must return a table, got %s", script, ret.Type())
	}
	// Configuration keys are readable as self.<key> unless the script defines them.
	for k, v := range cfg {
		lv, ok := toLua(v)
		if ok && tbl.RawGetString(k) == lua.LNil {
			tbl.RawSetString(k, lv)
		}
	}
	return &luaModule{state: L, self: tbl}, nil
}

// configTable exposes the primitive configuration values to the script.
// Values Lua cannot represent, such as the manager back-reference, are skipped.
func configTable(L *lua.LState, cfg module.Config) *lua.LTable {
	tbl := L.NewTable()
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := toLua(cfg[k]); ok {
			tbl.RawSetString(k, v)
		}
	}
	return tbl
}

func toLua(v any) (lua.LValue, bool) {
	switch x := v.(type) {
	case string:
		return lua.LString(x), true
	case bool:
		return lua.LBool(x), true
	case int:
		return lua.LNumber(x), true
	case int64:
		return lua.LNumber(x), true
	case float64:
		return lua.LNumber(x), true
	default:
		return nil, false
	}
}

// ErrModuleClosed is returned by capabilities of a closed script module.
var ErrModuleClosed = errors.New("loader: module closed")

// luaModule adapts a Lua table to api.Module. A gopher-lua state is not safe
// for concurrent use, so every call holds mu.
type luaModule struct {
	mu     sync.Mutex
	state  *lua.LState
	self   *lua.LTable
	closed bool
}

var (
	_ api.Module        = (*luaModule)(nil)
	_ api.HealthChecker = (*luaModule)(nil)
	_ io.Closer         = (*luaModule)(nil)
)

func (m *luaModule) call(ctx context.Context, fn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%s: %w", fn, ErrModuleClosed)
	}

	f, ok := m.state.GetField(m.self, fn).(*lua.LFunction)
	if !ok {
		return fmt.Errorf("%s: %w", fn, module.ErrNotImplemented)
	}
	m.state.SetContext(ctx)
	defer m.state.RemoveContext()
	if err := m.state.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, m.self); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

func (m *luaModule) Install(ctx context.Context) error    { return m.call(ctx, "install") }
func (m *luaModule) Uninstall(ctx context.Context) error  { return m.call(ctx, "uninstall") }
func (m *luaModule) Update(ctx context.Context) error     { return m.call(ctx, "update") }
func (m *luaModule) Activate(ctx context.Context) error   { return m.call(ctx, "activate") }
func (m *luaModule) Deactivate(ctx context.Context) error { return m.call(ctx, "deactivate") }

// Health calls the script's health function. Scripts without one are healthy.
func (m *luaModule) Health(ctx context.Context) error {
	err := m.call(ctx, "health")
	if errors.Is(err, module.ErrNotImplemented) {
		return nil
	}
	return err
}


// Close releases the interpreter. Calling it again is a no-op.
func (m *luaModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.state.Close()
	}
	return nil
}
