// Package harmony provides a client for the Epsilon Harmony profiles API.
//
// Harmony is Epsilon's cross-channel marketing platform. Customer profiles are
// stored as records keyed by CustomerKey and managed through the v4 REST API,
// authenticated with an OAuth2 password-grant bearer token.
//
// Every outbound HTTP request, including the token request, is written to the
// call log before the operation returns, so failures can always be traced to a
// log entry.
package harmony

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/config"
	httpclient "github.com/natserract/harmony/pkg/http"
	"go.uber.org/zap"
)

// Harmony is the main client for interacting with the Epsilon Harmony API
type Harmony struct {
	config     *config.Config
	httpClient *httpclient.Client
	tokenCache *TokenCache
	settings   config.Store
	calls      *calllog.Logger
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TokenCache holds the bearer token shared by every client built on it.
type TokenCache struct {
	mu    sync.RWMutex
	state TokenState
}

func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// State returns a consistent copy of the cached token state.
func (c *TokenCache) State() TokenState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *TokenCache) store(state TokenState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// seed installs persisted state unless the cache already holds a newer token.
func (c *TokenCache) seed(state TokenState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state.IssuedAt >= c.state.IssuedAt {
		c.state = state
	}
}

// Option customises a Harmony client.
type Option func(*Harmony)

// WithTokenCache shares a token cache between clients.
func WithTokenCache(cache *TokenCache) Option {
	return func(h *Harmony) { h.tokenCache = cache }
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(h *Harmony) { h.httpClient = c }
}

// WithMetrics enables prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(h *Harmony) { h.metrics = m }
}

// WithClock overrides time.Now, for token freshness checks.
func WithClock(now func() time.Time) Option {
	return func(h *Harmony) { h.now = now }
}

// NewHarmony creates a new Harmony client with default production logger
func NewHarmony(cfg *config.Config, calls *calllog.Logger, settings config.Store, opts ...Option) *Harmony {
	logger, _ := zap.NewProduction()
	return NewHarmonyWithLogger(cfg, calls, settings, logger, opts...)
}

// NewHarmonyWithLogger creates a new Harmony client with a custom logger.
// settings may be nil, in which case refreshed tokens only live in process.
func NewHarmonyWithLogger(cfg *config.Config, calls *calllog.Logger, settings config.Store, logger *zap.Logger, opts ...Option) *Harmony {
	h := &Harmony{
		config:   cfg,
		settings: settings,
		calls:    calls,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.httpClient == nil {
		h.httpClient = httpclient.NewClientWithLogger(logger)
	}
	if h.tokenCache == nil {
		h.tokenCache = NewTokenCache()
	}
	h.tokenCache.seed(TokenState{AccessToken: cfg.AccessToken, IssuedAt: cfg.TokenTimeout})
	return h
}

// TokenState returns the current cached token state.
func (h *Harmony) TokenState() TokenState {
	return h.tokenCache.State()
}

type correlationKey struct{}

// withCorrelation makes sure every record written for one operation shares an id.
func withCorrelation(ctx context.Context) context.Context {
	if correlationFrom(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, uuid.NewString())
}

func correlationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// logCall persists one call record and counts it.
func (h *Harmony) logCall(ctx context.Context, entry calllog.Entry, outcome string) (*calllog.Record, error) {
	h.metrics.observeCall(entry.Method, entry.StatusCode, outcome)
	return h.calls.Log(ctx, entry)
}
