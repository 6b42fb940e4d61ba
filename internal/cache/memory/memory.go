package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jalgreatworks0/clientforge-auth/internal/cache"
)

// Mem es un cache in-process respaldado por go-cache.
type Mem struct {
	c      *gocache.Cache
	prefix string
}

func New(prefix string, defaultTTL time.Duration) *Mem {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute), prefix: prefix}
}

var _ cache.Cache = (*Mem)(nil)

func (m *Mem) Get(_ context.Context, k string) ([]byte, bool) {
	v, ok := m.c.Get(m.prefix + k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(_ context.Context, k string, v []byte, ttl time.Duration) {
	m.c.Set(m.prefix+k, v, ttl)
}

func (m *Mem) Delete(_ context.Context, k string) { m.c.Delete(m.prefix + k) }

func (m *Mem) Ping(context.Context) error { return nil }
