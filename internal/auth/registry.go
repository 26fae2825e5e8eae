package auth

import (
	"context"
	"sync"
	"time"

	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/google/uuid"
)

// Registry maps browser-session ids to their providers. Providers idle for
// longer than the idle timeout are closed by Sweep, which stands in for the
// browser tab going away.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory func() *Provider
	idle    time.Duration
	now     func() time.Time
}

type registryEntry struct {
	provider *Provider
	lastSeen time.Time
}

func NewRegistry(factory func() *Provider, idle time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		factory: factory,
		idle:    idle,
		now:     time.Now,
	}
}

// Open creates and starts a provider for a new browser session.
// accessToken is the session cookie's token, if any, for silent restore.
func (r *Registry) Open(ctx context.Context, accessToken string) (string, *Provider) {
	id := uuid.NewString()
	p := r.factory()
	p.Start(ctx, accessToken)

	r.mu.Lock()
	r.entries[id] = &registryEntry{provider: p, lastSeen: r.now()}
	size := len(r.entries)
	r.mu.Unlock()

	metrics.BrowserSessions.Set(float64(size))
	return id, p
}

// Get returns the provider for id and marks it as recently used.
func (r *Registry) Get(id string) (*Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if r.idle > 0 && r.now().Sub(entry.lastSeen) > r.idle {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.provider, true
}

// Close removes id and closes its provider.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	size := len(r.entries)
	r.mu.Unlock()

	if ok {
		entry.provider.Close()
	}
	metrics.BrowserSessions.Set(float64(size))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes providers idle for longer than the idle timeout and returns
// how many were removed.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}

	r.mu.Lock()
	now := r.now()
	var expired []*Provider
	for id, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.idle {
			expired = append(expired, entry.provider)
			delete(r.entries, id)
		}
	}
	size := len(r.entries)
	r.mu.Unlock()

	for _, p := range expired {
		p.Close()
	}
	metrics.BrowserSessions.Set(float64(size))
	metrics.BrowserSessionsExpired.Add(float64(len(expired)))
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes every provider.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.closeAll()
			return
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.provider.Close()
	}
	metrics.BrowserSessions.Set(0)
}
