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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/srediag/plugin-lifecycle/pkg/audit"
)

// EventCounterName is the OpenTelemetry instrument OTelSink records to.
const EventCounterName = "plugin.lifecycle.events"

// OTelSink counts lifecycle events with an OpenTelemetry counter.
type OTelSink struct {
	events metric.Int64Counter
}

var _ audit.Sink = (*OTelSink)(nil)

// NewOTelSink creates the counter on meter.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	c, err := meter.Int64Counter(EventCounterName,
		metric.WithDescription("Lifecycle events by module, operation and outcome."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", EventCounterName, err)
	}
	return &OTelSink{events: c}, nil
}

func (s *OTelSink) LogEvent(ctx context.Context, e audit.Event) error {
	s.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", e.Module),
		attribute.String("operation", e.Operation),
		attribute.String("outcome", string(e.Outcome)),
	))
	return nil
}
