package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/database"
)

// KV is the persistence port of the order ledger: opaque values under string keys.
// Writes replace whole values; there is no compare-and-set, so concurrent
// writers sharing one store can lose each other's updates. Run one writing
// process (API or seed) per store at a time.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ErrNotFound indicates the key has never been written or was deleted.
var ErrNotFound = errors.New("key not found")

// Module provides the configured KV store to the Fx graph.
var Module = fx.Provide(New)

// Params defines dependencies for constructing the store.
type Params struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Config      config.Config
	Logger      *zap.Logger
	Connections *database.Connections
}

// New initialises the configured store driver (memory, redis or sql).
func New(p Params) (KV, error) {
	var kv KV
	switch p.Config.Store.Driver {
	case "memory":
		p.Logger.Info("using in-memory order store; state is lost on restart")
		kv = NewMemory()
	case "redis":
		kv = newRedisStore(p.Lifecycle, p.Config.Store, p.Logger)
	case "sql":
		if p.Connections == nil || p.Connections.Writer == nil {
			return nil, errors.New("sql store requires database connections")
		}
		kv = NewSQL(p.Connections.Writer, p.Connections.Reader)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", p.Config.Store.Driver)
	}
	return WithPrefix(kv, p.Config.Store.KeyPrefix), nil
}

type prefixed struct {
	next   KV
	prefix string
}

// WithPrefix namespaces every key of kv. An empty prefix returns kv unchanged.
func WithPrefix(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	return prefixed{next: kv, prefix: prefix}
}

func (p prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}
