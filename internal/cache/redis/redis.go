package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/jalgreatworks0/clientforge-auth/internal/cache"
)

// Cache distribuido sobre Redis. Todas las keys llevan prefijo.
type Cache struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

func New(addr string, db int, prefix string, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		c:          rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

// NewFromClient permite inyectar un cliente ya construido (p.ej. compartido con el rate limiter).
func NewFromClient(c *rdb.Client, prefix string, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{c: c, prefix: prefix, defaultTTL: defaultTTL}
}

var _ cache.Cache = (*Cache)(nil)

func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.c.Get(ctx, r.prefix+k).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	_ = r.c.Set(ctx, r.prefix+k, v, ttl).Err()
}

func (r *Cache) Delete(ctx context.Context, k string) { _ = r.c.Del(ctx, r.prefix+k).Err() }

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// Client expone el cliente subyacente (rate limiter comparte la conexión).
func (r *Cache) Client() *rdb.Client { return r.c }
