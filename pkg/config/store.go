package config

import (
	"context"
	"sync"
)

// Store persists settings. Save upserts only the keys it is given.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, settings Settings) error
}

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu       sync.RWMutex
	settings Settings
}

// NewMemoryStore creates a store seeded with initial.
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{settings: Merge(nil, initial)}
}

func (m *MemoryStore) Load(ctx context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Merge(nil, m.settings), nil
}

func (m *MemoryStore) Save(ctx context.Context, settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range settings {
		m.settings[k] = v
	}
	return nil
}

// tokenKeys are the settings written back after every token acquisition.
var tokenKeys = map[string]bool{
	KeyAccessToken:  true,
	KeyTokenTimeout: true,
}

// LayeredStore keeps the token state in a separate store from the credentials,
// so several workers can share one token while credentials stay in the database.
type LayeredStore struct {
	Base   Store
	Tokens Store
}

// Load reads the base settings and overlays the token state.
func (l *LayeredStore) Load(ctx context.Context) (Settings, error) {
	base, err := l.Base.Load(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := l.Tokens.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := Merge(nil, base)
	for k := range tokenKeys {
		if v, ok := tokens[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Save routes token keys to Tokens and the rest to Base.
func (l *LayeredStore) Save(ctx context.Context, settings Settings) error {
	base, tokens := Settings{}, Settings{}
	for k, v := range settings {
		if tokenKeys[k] {
			tokens[k] = v
		} else {
			base[k] = v
		}
	}

	if len(base) > 0 {
		if err := l.Base.Save(ctx, base); err != nil {
			return err
		}
	}
	if len(tokens) > 0 {
		return l.Tokens.Save(ctx, tokens)
	}
	return nil
}
