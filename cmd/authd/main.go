// authd es el servicio de autenticación SSO+MFA de ClientForge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jalgreatworks0/clientforge-auth/internal/app"
	"github.com/jalgreatworks0/clientforge-auth/internal/config"
	httpapi "github.com/jalgreatworks0/clientforge-auth/internal/http"
	"github.com/jalgreatworks0/clientforge-auth/internal/metrics"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", "config.yaml", "ruta del YAML de configuración")
		migrate = flag.Bool("migrate", true, "aplicar migraciones al arrancar")
	)
	flag.Parse()

	// .env es opcional (dev); en prod el entorno viene del orquestador
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authd"})
	defer func() { _ = logger.Sync() }()
	if err := metrics.Register(nil); err != nil {
		logger.L().Warn("registro de métricas", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if *migrate {
		if err := c.Store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.NewRouter(c))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return refreshTokenJanitor(ctx, c) })

	logger.L().Info("authd arrancado",
		logger.String("env", cfg.App.Env),
		logger.String("addr", cfg.Server.Addr),
		logger.String("cache", cfg.Cache.Kind))
	return g.Wait()
}

// refreshTokenJanitor purga refresh tokens expirados/revocados cada hora.
func refreshTokenJanitor(ctx context.Context, c *app.Container) error {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := c.Repo.PurgeExpiredRefreshTokens(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				logger.L().Warn("purge refresh tokens", logger.Err(err))
				continue
			}
			if n > 0 {
				logger.L().Info("refresh tokens purgados", logger.Int("purged", int(n)))
			}
		}
	}
}
