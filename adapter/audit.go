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

// Package adapter connects the lifecycle manager to external systems.
package adapter

import (
	"context"
	"log/slog"

	iaudit "github.com/srediag/plugin-lifecycle/internal/audit"
	"github.com/srediag/plugin-lifecycle/pkg/audit"
)

// SlogSink writes lifecycle events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

var _ audit.Sink = (*SlogSink)(nil)

// NewSlogSink creates a sink logging to l.
func NewSlogSink(l *slog.Logger) *SlogSink {
	return &SlogSink{logger: l}
}

// LogEvent logs e at Info, or at Error when it describes a failure.
func (s *SlogSink) LogEvent(ctx context.Context, e audit.Event) error {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("module", e.Module),
		slog.String("operation", e.Operation),
		slog.String("outcome", string(e.Outcome)),
		slog.Time("at", e.Time),
	}
	if e.Failed() {
		level = slog.LevelError
		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}
	}
	s.logger.LogAttrs(ctx, level, iaudit.Message(e), attrs...)
	return nil
}
