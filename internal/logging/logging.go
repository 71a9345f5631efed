/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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

// Package logging provides the slog handler used by the host process.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// EnvLevel is the environment variable read by LevelFromEnv.
const EnvLevel = "PLUGIN_LOG_LEVEL"

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.Level(-8)

const timeFormat = "2006-01-02 15:04:05.999999"

var (
	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}

	levels = []slog.Level{
		LevelTrace,
		slog.LevelDebug,
		slog.LevelInfo,
		slog.LevelWarn,
		slog.LevelError,
	}
)

// ParseLevel accepts a level name or its index, 0 (trace) to 4 (error).
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(levels) {
			return 0, fmt.Errorf("log level %d out of range 0-%d", n, len(levels)-1)
		}
		return levels[n], nil
	}
	if s == "warning" {
		s = "warn"
	}
	for i, name := range levelName {
		if strings.ToLower(name) == s {
			return levels[i], nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// LevelFromEnv returns the level set in EnvLevel, or def when it is unset
// or invalid.
func LevelFromEnv(def slog.Level) slog.Level {
	v := os.Getenv(EnvLevel)
	if v == "" {
		return def
	}
	l, err := ParseLevel(v)
	if err != nil {
		return def
	}
	return l
}

// Options configures a Handler.
type Options struct {
	Level     slog.Leveler
	Color     bool
	AddSource bool
	// Name is printed after the source location, like a logger name.
	Name string
}

// Handler renders records as "Level time file:line name msg k=v" lines.
type Handler struct {
	opts  Options
	mu    *sync.Mutex
	out   io.Writer
	attrs []byte
	group string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler writing to w. A nil opts logs at Info.
func NewHandler(w io.Writer, opts *Options) *Handler {
	h := &Handler{mu: &sync.Mutex{}, out: w}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

// New builds a logger for the given format: "pretty" (colored), "text" or
// "json".
func New(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	switch format {
	case "", "pretty":
		return slog.New(NewHandler(w, &Options{Level: level, Color: true, AddSource: true})), nil
	case "text":
		return slog.New(NewHandler(w, &Options{Level: level, AddSource: true})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	idx := levelIndex(r.Level)
	if h.opts.Color {
		_, _ = buf.WriteString(colors[idx])
	}
	_, _ = buf.WriteString(levelName[idx])
	_ = buf.WriteByte(' ')
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	_, _ = buf.WriteString(t.Format(timeFormat))
	_ = buf.WriteByte(' ')
	if h.opts.AddSource {
		_, _ = buf.WriteString(location(r.PC))
		_ = buf.WriteByte(' ')
	}
	if h.opts.Name != "" {
		_, _ = buf.WriteString(h.opts.Name)
		_ = buf.WriteByte(' ')
	}
	_, _ = buf.WriteString(r.Message)
	_, _ = buf.Write(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(buf, h.group, a)
		return true
	})
	if h.opts.Color {
		_, _ = buf.WriteString(reset)
	}
	_ = buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.B)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, a := range attrs {
		appendAttr(buf, h.group, a)
	}
	h2 := *h
	h2.attrs = append(append([]byte(nil), h.attrs...), buf.B...)
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = join(h.group, name)
	return &h2
}

func appendAttr(buf *bytebufferpool.ByteBuffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		g := group
		if a.Key != "" {
			g = join(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, g, ga)
		}
		return
	}
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(join(group, a.Key))
	_ = buf.WriteByte('=')
	var v string
	if a.Value.Kind() == slog.KindTime {
		v = a.Value.Time().Format(timeFormat)
	} else {
		v = a.Value.String()
	}
	if strings.ContainsAny(v, " \t\n\"=") || v == "" {
		v = strconv.Quote(v)
	}
	_, _ = buf.WriteString(v)
}

func join(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func levelIndex(l slog.Level) int {
	switch {
	case l < slog.LevelDebug:
		return 0
	case l < slog.LevelInfo:
		return 1
	case l < slog.LevelWarn:
		return 2
	case l < slog.LevelError:
		return 3
	default:
		return 4
	}
}

func location(pc uintptr) string {
	if pc == 0 {
		return "???:0"
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	return filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
}
