package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages registered providers and routes chat requests. Requests are
// keyed by an arbitrary caller key (a thread id or a role like "builder") so
// different consumers can be bound to different backends.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // key -> providerID
	fallbacks map[string][]string // key -> fallback provider chain
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault overrides the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// Bind routes all requests under key to a specific provider.
func (r *Router) Bind(key, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[key] = providerID
}

// SetFallbacks configures a fallback chain for a key.
func (r *Router) SetFallbacks(key string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[key] = providerIDs
}

// Available reports whether at least one provider is registered.
func (r *Router) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Route sends a chat request through the bound provider, falling back through
// the key's fallback chain on error.
func (r *Router) Route(ctx context.Context, key string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.resolve(key)
	if primary == nil {
		return nil, fmt.Errorf("no provider available for %q", key)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("key", key), zap.Error(err))

	for _, fbID := range r.fallbacks[key] {
		fb, ok := r.providers[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}
	return nil, fmt.Errorf("all providers failed for %q: %w", key, err)
}

// RouteStream sends a streaming chat request through the bound provider.
func (r *Router) RouteStream(ctx context.Context, key string, req *ChatRequest) (<-chan *StreamChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.resolve(key)
	if primary == nil {
		return nil, fmt.Errorf("no provider available for %q", key)
	}
	return primary.ChatStream(ctx, req)
}

func (r *Router) resolve(key string) Provider {
	if pid, ok := r.bindings[key]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	return r.providers[r.defaults]
}
