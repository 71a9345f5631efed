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

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/plugin-lifecycle/api"
)

const (
	defaultDebounce      = 200 * time.Millisecond
	defaultReloadWorkers = 2
)

// Reloader is the part of the manager HotReload drives.
type Reloader interface {
	Update(ctx context.Context, ref api.Ref, opts api.UpdateOptions) error
}

// HotReloadOptions tunes NewHotReload. The zero value is usable.
type HotReloadOptions struct {
	// Debounce is how long a module directory must stay quiet before the
	// module is updated.
	Debounce time.Duration
	Workers  int
	Logger   *slog.Logger
}

// HotReload updates a module whenever a file under <base>/<name>/ changes.
// Modules that were active when the update fires are reactivated.
type HotReload struct {
	base     string
	target   Reloader
	debounce time.Duration
	logger   *slog.Logger
	pool     *ants.Pool
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHotReload creates a watcher for base. Nothing is watched until Start.
func NewHotReload(base string, target Reloader, opts HotReloadOptions) (*HotReload, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultReloadWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	h := &HotReload{
		base:     filepath.Clean(base),
		target:   target,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		h.logger.Error("Hot reload task panicked.", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create reload pool: %w", err)
	}
	h.pool = pool
	return h, nil
}

// Start watches the base directory and every module directory in it.
func (h *HotReload) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(h.base); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", h.base, err)
	}
	entries, err := os.ReadDir(h.base)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("read %s: %w", h.base, err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			if err := w.Add(filepath.Join(h.base, e.Name())); err != nil {
				h.logger.Warn("Could not watch module directory.", "module", e.Name(), "error", err)
			}
		}
	}

	h.watcher = w
	ctx, h.cancel = context.WithCancel(ctx)
	go h.loop(ctx)
	h.logger.Info("Watching modules for changes.", "dir", h.base)
	return nil
}

func (h *HotReload) loop(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handle(ctx, e)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("Watcher error.", "error", err)
		}
	}
}

func (h *HotReload) handle(ctx context.Context, e fsnotify.Event) {
	name := h.moduleFor(e.Name)
	if name == "" {
		return
	}
	if e.Has(fsnotify.Create) && filepath.Dir(e.Name) == h.base {
		if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
			if err := h.watcher.Add(e.Name); err != nil {
				h.logger.Warn("Could not watch module directory.", "module", name, "error", err)
			}
		}
	}
	if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		h.schedule(ctx, name)
	}
}

// schedule (re)arms the debounce timer of name.
func (h *HotReload) schedule(ctx context.Context, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if t, ok := h.timers[name]; ok {
		t.Reset(h.debounce)
		return
	}
	h.timers[name] = time.AfterFunc(h.debounce, func() { h.fire(ctx, name) })
}

func (h *HotReload) fire(ctx context.Context, name string) {
	h.mu.Lock()
	delete(h.timers, name)
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	err := h.pool.Submit(func() {
		h.logger.Debug("Reloading module.", "module", name)
		if err := h.target.Update(ctx, api.ByName(name), api.UpdateOptions{KeepActive: true}); err != nil {
			h.logger.Error("Reload failed.", "module", name, "error", err)
		}
	})
	if err != nil {
		h.logger.Error("Could not schedule reload.", "module", name, "error", err)
	}
}

// moduleFor maps a path below the base directory to its module name.
func (h *HotReload) moduleFor(path string) string {
	rel, err := filepath.Rel(h.base, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	name := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if hidden(name) {
		return ""
	}
	return name
}

// Close stops watching and waits for running reloads.
func (h *HotReload) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	h.mu.Unlock()

	var err error
	if h.watcher != nil {
		h.cancel()
		err = h.watcher.Close()
		<-h.done
	}
	if rerr := h.pool.ReleaseTimeout(5 * time.Second); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
