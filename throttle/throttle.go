// Package throttle limits failed access code attempts. A key that collects
// Limit failures within Window is refused until the window lapses.
package throttle

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 15 * time.Minute

	// DefaultPageLimit bounds failures for one page across all clients.
	DefaultPageLimit = 100
)

// Memory is an in-process limiter. It is only correct for a single process.
type Memory struct {
	Limit  int64
	Window time.Duration

	// Now returns the current time.
	Now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	swept   time.Time
}

type window struct {
	failures int64
	expires  time.Time
}

// NewMemory returns a Memory limiter with default settings.
func NewMemory() *Memory {
	return &Memory{
		Limit:   DefaultLimit,
		Window:  DefaultWindow,
		Now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow reports whether key has failures left.
func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.current(key)
	return w == nil || w.failures < m.Limit, nil
}

// Fail records a failure for key.
func (m *Memory) Fail(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	w := m.current(key)
	if w == nil {
		w = &window{expires: m.Now().Add(m.Window)}
		m.windows[key] = w
	}
	w.failures++
	return nil
}

// current returns the live window for key, dropping an expired one. m.mu
// must be held.
func (m *Memory) current(key string) *window {
	w, ok := m.windows[key]
	if !ok {
		return nil
	}
	if !m.Now().Before(w.expires) {
		delete(m.windows, key)
		return nil
	}
	return w
}

// sweep drops every expired window, at most once per Window. m.mu must be
// held.
func (m *Memory) sweep() {
	now := m.Now()
	if now.Before(m.swept.Add(m.Window)) {
		return
	}
	m.swept = now
	for key, w := range m.windows {
		if !now.Before(w.expires) {
			delete(m.windows, key)
		}
	}
}
