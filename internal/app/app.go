// Package app arma el contenedor de dependencias del servicio.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/cache"
	memcache "github.com/jalgreatworks0/clientforge-auth/internal/cache/memory"
	redcache "github.com/jalgreatworks0/clientforge-auth/internal/cache/redis"
	"github.com/jalgreatworks0/clientforge-auth/internal/config"
	"github.com/jalgreatworks0/clientforge-auth/internal/email"
	jwtx "github.com/jalgreatworks0/clientforge-auth/internal/jwt"
	"github.com/jalgreatworks0/clientforge-auth/internal/mfa"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/rate"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/pg"
)

// Container agrupa todas las dependencias ya conectadas.
type Container struct {
	Cfg   *config.Config
	Store *pg.Store
	Repo  core.Repository
	Cache cache.Cache

	Issuer   *jwtx.Issuer
	SSO      *sso.Service
	MFA      *mfa.Service
	Limiter  rate.Limiter
	Notifier *email.Notifier // nil si email.enabled=false

	RefreshTTL time.Duration
}

// New conecta Postgres, el cache y los services. El caller es dueño del
// ciclo de vida (Close al apagar).
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	st, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	c := &Container{
		Cfg:        cfg,
		Store:      st,
		Repo:       st,
		RefreshTTL: config.Dur(cfg.JWT.RefreshTTL, 30*24*time.Hour),
		Limiter:    rate.Noop{},
	}

	switch cfg.Cache.Kind {
	case "redis":
		rc := redcache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix, 10*time.Minute)
		c.Cache = rc
		if cfg.Rate.Enabled {
			c.Limiter = rate.NewRedisLimiter(rc.Client(), "rl:")
		}
	default:
		c.Cache = memcache.New(cfg.Cache.Redis.Prefix, config.Dur(cfg.Cache.Memory.DefaultTTL, 10*time.Minute))
		if cfg.Rate.Enabled {
			logger.L().Warn("rate limiting requiere cache redis; deshabilitado")
		}
	}

	issuer, err := jwtx.NewIssuerFromEnv(cfg.JWT.Issuer, config.Dur(cfg.JWT.AccessTTL, 15*time.Minute))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("jwt issuer: %w", err)
	}
	c.Issuer = issuer

	if cfg.Email.Enabled {
		c.Notifier = email.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	}

	c.SSO = sso.NewService(c.Repo, c.Cache, config.Dur(cfg.SSO.StateTTL, 10*time.Minute))
	c.MFA = mfa.NewService(c.Repo, c.Cache, c.Notifier, mfa.Config{
		Issuer:       cfg.MFA.TOTPIssuer,
		Window:       cfg.MFA.TOTPWindow,
		ChallengeTTL: config.Dur(cfg.MFA.ChallengeTTL, 5*time.Minute),
	})
	return c, nil
}

// Close libera conexiones. Seguro de llamar más de una vez.
func (c *Container) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}
