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

// Package ratelimit implements a per-key fixed-window counter held in process
// memory. Limits are per instance and reset on restart.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 100
	DefaultMaxKeys     = 10000
)

// Config holds limiter configuration
type Config struct {
	Window      time.Duration
	MaxRequests int
	// MaxKeys bounds the number of tracked keys. The least recently used key
	// is dropped first and starts a fresh window when it returns.
	MaxKeys int
}

type counter struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window limiter. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	now      func() time.Time
	counters *simplelru.LRU[string, *counter]
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a new limiter. Zero config values fall back to the defaults.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}

	// NewLRU only fails for a non-positive size.
	counters, _ := simplelru.NewLRU[string, *counter](cfg.MaxKeys, nil)

	l := &Limiter{
		window:   cfg.Window,
		max:      cfg.MaxRequests,
		now:      time.Now,
		counters: counters,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request for key and reports whether it is within the
// limit. Every call counts, including the one that trips the limit. An
// expired window is reset lazily on the next call.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters.Get(key)
	if !ok || !now.Before(c.resetAt) {
		l.counters.Add(key, &counter{count: 1, resetAt: now.Add(l.window)})
		return true
	}

	c.count++
	return c.count <= l.max
}

// Remaining returns how many more requests key may make in its current
// window and when that window ends. It does not count as a request.
func (l *Limiter) Remaining(key string) (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters.Peek(key)
	if !ok || !now.Before(c.resetAt) {
		return l.max, now.Add(l.window)
	}
	return max(l.max-c.count, 0), c.resetAt
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters.Len()
}
