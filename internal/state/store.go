// Package state persists client state: the interview result snapshots that
// live for one practice session and the auth session that outlives it.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/rehearse/internal/config"
)

// Fixed keys shared by the pipeline, report and auth flows.
const (
	KeyInterviewResults      = "interviewResults"
	KeyStoredDataForAnalysis = "storedDataForAnalysis"

	KeyToken      = "token"
	KeyExpiration = "expiration"
	KeyUser       = "user"
)

// SessionKeys are dropped by "logout --all".
var SessionKeys = []string{KeyInterviewResults, KeyStoredDataForAnalysis}

// LocalKeys hold the auth session.
var LocalKeys = []string{KeyToken, KeyExpiration, KeyUser}

// Store is a JSON key/value store. A zero ttl means no expiry.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Open selects the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "", "file":
		return NewFileStore(cfg.StateDir)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis store")
		}
		return NewRedisStore(ctx, cfg.RedisURL)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Namespace prefixes keys and applies a default ttl to writes.
type Namespace struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// Session is the per-practice namespace; entries expire after ttl.
func Session(s Store, ttl time.Duration) *Namespace {
	return &Namespace{store: s, prefix: "session:", ttl: ttl}
}

// Local is the long-lived namespace.
func Local(s Store) *Namespace {
	return &Namespace{store: s, prefix: "local:"}
}

func (n *Namespace) Get(ctx context.Context, key string, dst any) (bool, error) {
	return n.store.GetJSON(ctx, n.prefix+key, dst)
}

func (n *Namespace) Set(ctx context.Context, key string, val any) error {
	return n.store.SetJSON(ctx, n.prefix+key, val, n.ttl)
}

func (n *Namespace) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.prefix + k
	}
	return n.store.Del(ctx, full...)
}
