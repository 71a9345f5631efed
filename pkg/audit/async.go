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

package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
)

const defaultAsyncBatch = 64

// Async decouples the manager from a slow sink. Events are queued and
// delivered to the downstream sink by a single drain goroutine, in order.
type Async struct {
	next   Sink
	q      *queue.Queue
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

// NewAsync starts draining queued events into next. hint sizes the queue's
// initial capacity; the queue itself is unbounded.
func NewAsync(next Sink, hint int64, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Async{
		next:   next,
		q:      queue.New(hint),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

// LogEvent enqueues e. It fails once the sink has been closed.
func (a *Async) LogEvent(_ context.Context, e Event) error {
	if err := a.q.Put(e); err != nil {
		return errors.Join(ErrSinkClosed, err)
	}
	return nil
}

// ErrSinkClosed is returned when logging to a closed Async sink.
var ErrSinkClosed = errors.New("audit: sink closed")

func (a *Async) drain() {
	defer close(a.done)
	for {
		items, err := a.q.Get(defaultAsyncBatch)
		if err != nil {
			// disposed
			return
		}
		a.deliver(items)
	}
}

func (a *Async) deliver(items []interface{}) {
	for _, item := range items {
		e, ok := item.(Event)
		if !ok {
			continue
		}
		if err := a.next.LogEvent(context.Background(), e); err != nil {
			a.logger.Warn("Audit sink rejected event.", "operation", e.Operation, "module", e.Module, "error", err)
		}
	}
}

// Pending returns the number of queued, undelivered events.
func (a *Async) Pending() int64 {
	return a.q.Len()
}

// Close stops accepting events, delivers what is still queued and waits for
// the drain goroutine to exit.
func (a *Async) Close() {
	a.once.Do(func() {
		rest := a.q.Dispose()
		<-a.done
		a.deliver(rest)
	})
}
