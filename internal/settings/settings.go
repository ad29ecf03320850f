// Package settings stores the user's extension settings and notifies
// listeners when they change.
package settings

import (
	"context"
	"sync"
)

// Settings is the synchronized configuration the popup edits.
type Settings struct {
	APIKey      string `json:"apiKey"`
	AutoAnalyze bool   `json:"autoAnalyze"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return Settings{AutoAnalyze: true}
}

// Store loads and saves settings. Watch delivers the new settings after
// every Save until ctx ends, then closes the channel.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Watch(ctx context.Context) (<-chan Settings, error)
}

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu       sync.Mutex
	current  Settings
	watchers map[chan Settings]struct{}
}

// NewMemoryStore creates a store holding initial.
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{current: initial, watchers: make(map[chan Settings]struct{})}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = next
	for ch := range s.watchers {
		deliverLatest(ch, next)
	}
	return nil
}

// Watch implements Store.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Settings, error) {
	ch := make(chan Settings, 1)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// deliverLatest replaces any undelivered value so a slow watcher only ever
// sees the newest settings. Callers must be the channel's only sender.
func deliverLatest(ch chan Settings, s Settings) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
