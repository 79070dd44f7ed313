// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentrusty/staffgate/internal/id"
)

// EmitterConfig configures the async emitter.
type EmitterConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// AsyncEmitter queues events on a buffered channel and writes them to a sink
// from a background worker. Emit never blocks: when the buffer is full the
// event is dropped and counted.
type AsyncEmitter struct {
	sink    Sink
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	ch      chan SecurityEvent
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncEmitter creates and starts an async emitter.
func NewAsyncEmitter(sink Sink, cfg EmitterConfig) *AsyncEmitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	e := &AsyncEmitter{
		sink:    sink,
		timeout: cfg.WriteTimeout,
		now:     time.Now,
		ch:      make(chan SecurityEvent, cfg.BufferSize),
	}

	e.wg.Add(1)
	go e.worker()

	return e
}

// Emit enqueues an event, stamping its ID and timestamp when missing.
func (e *AsyncEmitter) Emit(_ context.Context, event SecurityEvent) {
	if event.ID == "" {
		event.ID = id.NewUUIDv7()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		slog.Warn("audit emitter closed, dropping event", slog.String("audit_type", event.Type))
		return
	}

	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
		slog.Warn("audit buffer full, dropping event", slog.String("audit_type", event.Type))
	}
}

// Dropped returns the number of events discarded because the buffer was full
// or the emitter was closed.
func (e *AsyncEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Failed returns the number of events the sink refused.
func (e *AsyncEmitter) Failed() int64 {
	return e.failed.Load()
}

// Close stops accepting events and waits until the queue is drained.
func (e *AsyncEmitter) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

func (e *AsyncEmitter) worker() {
	defer e.wg.Done()
	for event := range e.ch {
		e.write(event)
	}
}

func (e *AsyncEmitter) write(event SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			slog.Error("audit sink panicked", slog.Any("panic", r), slog.String("audit_type", event.Type))
		}
	}()

	if err := e.sink.Record(ctx, event); err != nil {
		e.failed.Add(1)
		slog.Error("audit write failed",
			slog.String("error", err.Error()),
			slog.String("audit_id", event.ID),
			slog.String("audit_type", event.Type),
		)
	}
}
